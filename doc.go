// Package intcode runs *Intcode* programs, and wires them into rings of
// *amplifiers*.
//
// An Intcode program is a list of signed integers which is both the code
// and the data of a `Machine`. Each `Machine` owns a private copy of the
// program, reads its inputs from a `flow.Reader` and writes its outputs
// to a `flow.Writer`. That is the only state machines share.
//
// ## How it works
//
// A `Network` instantiates one `Machine` per *phase setting*. Machine `i`
// reads from queue `i` and writes to queue `(i+1) mod N`, so the last
// machine feeds the first one back. Each queue first receives its phase
// setting, then queue 0 receives the external *seed* (0 by default).
//
// The network runs until every machine halts, and the *signal* it
// produces is the last value left in queue 0.
//
// Machines can be scheduled in two ways:
//
// * `Sequential`, one after another on the caller goroutine. This only
// terminates if no machine waits for a value produced later in the ring.
// * `Concurrent`, one goroutine per machine, which lets feedback loops make
// progress. The first faulting machine cancels the whole run.
//
// Finally, `Network.Search` tries every ordering of a set of phase
// settings and reports the one producing the strongest signal.
//
// ## Crossing process boundaries
//
// Queues are local, but a `Transport` can carry the same flow of integers
// across a QUIC connection secured by mTLS. A process `Export`s a named
// input, and another `Dial`s it to get a writer. Both sides are regular
// flows, so a ring can be split between hosts without the machines
// noticing.
//
// ## Observability
//
// Every component accepts a `slog.Handler` and a `metrics.MetricSink`
// from [`hashicorp/go-metrics`][dep-gm]. Machines count executed
// instructions, halts and faults, networks count runs and their duration.
//
// [dep-gm]: https://pkg.go.dev/github.com/hashicorp/go-metrics
package intcode
