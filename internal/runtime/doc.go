// Package runtime wires one logmux node: the pebble store, the replicated
// log selected by the config's replication mode (local, raft or mirror) and
// the stream layer on top of it.
//
// Example:
//
//	cfg := config.Default()
//	rt, err := runtime.Open(runtime.Options{Config: cfg, Spec: catalog.Default()})
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//	mux, _ := rt.Multiplexer()
//	notes, _ := streams.ProducerFor[string](mux, catalog.Notes)
//	idx, _ := notes.Insert(ctx, "hello")
//	c, _ := streams.ConsumerFor[string](rt.Demultiplexer(), catalog.Notes)
//	res, _ := c.WaitFor(idx).Wait(ctx)
package runtime
