// Package tasks drives asynchronous remote work: submission, the bounded
// status poll loop, and caller-initiated cancellation.
//
// Every poll invocation is one cancellable unit of work. Terminal writes go
// through the job store's compare-and-set so a concurrent webhook reconcile
// for the same job cannot double-apply; whichever side loses the race adopts
// the winner's outcome.
package tasks
