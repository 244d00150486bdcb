// Package sink provides batch destinations for pool.ResultHooks.
//
// Every sink exposes a Write method with the pool.SinkFunc signature:
//
//	s := sink.NewRedis(client, "job:42", func(r records.Record) string { return r.ID })
//	_ = p.ResultHooks(s.Write, 500)
package sink
