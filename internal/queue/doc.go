// Package queue distributes pipeline jobs to workers.
//
// Two backends implement Queue: MemoryQueue, an in-process channel with a
// fixed worker pool, and SQSQueue, which uses Amazon SQS so several
// processes can share the work. Both deliver at least once, retry failed
// jobs with capped exponential backoff up to RetryPolicy.MaxAttempts, and
// report every attempt through a ResultFunc.
//
// Every Job has an explicit idempotency key (kind:video:param). MemoryQueue
// drops an Enqueue whose key is already pending or running; with SQS,
// duplicates are absorbed by the executor's per-key lock and by the
// rename-on-completion outputs.
//
// Handlers mark errors that retrying cannot fix with Permanent.
package queue
