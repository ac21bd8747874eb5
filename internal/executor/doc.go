// Package executor provides the event loop that sessions run their state
// transitions on.
//
// An Executor owns a fixed pool of worker goroutines. Work is posted to a
// Strand; each strand is a serial execution context, so tasks posted to the
// same strand never overlap and run in posting order, while different strands
// run in parallel across the pool. The server gives every connection its own
// strand.
//
// The executor is constructed and shut down explicitly:
//
//	ex := executor.New(executor.Options{Workers: 4})
//	strand := ex.NewStrand()
//	strand.Post(func() { ... })
//	...
//	err := ex.Shutdown(ctx)
//
// Blocking I/O never runs on a worker. Callers run it on a goroutine and post
// the completion back to their strand.
package executor
