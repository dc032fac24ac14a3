// Package id generates sortable 128-bit identifiers.
//
// An ID is a millisecond timestamp followed by a sequence number, both
// big-endian, so byte order matches generation order. The HTTP server stamps
// every request with one (X-Request-Id) and carries it into the access log.
//
//	g := id.NewGenerator()
//	rid := g.Next()
//	fmt.Println(rid, rid.Time())
package id
