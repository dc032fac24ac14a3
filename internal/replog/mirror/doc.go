// Package mirror keeps a local, index-preserving copy of a remote log by
// tailing a logmux server's replication service.
package mirror
