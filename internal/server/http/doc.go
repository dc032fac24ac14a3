// Package httpserver is the REST gateway of a logmux node: stream inserts and
// reads, SSE subscriptions, node status, health and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default(), Spec: catalog.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7080")
package httpserver
