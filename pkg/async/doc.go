// Package async provides small generic helpers for running computations
// concurrently and collecting their results.
//
// The central type is Future, the eventual result of a function started with
// Async. Await blocks until completion; WaitAll gathers a batch of futures in
// order, which is what the delivery service uses to fan out batch sends while
// preserving input order.
//
// All helpers are context-aware: a context cancelled before the computation
// starts completes the Future with the context error.
package async
