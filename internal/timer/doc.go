// Package timer implements the in-process timer engine that fires scheduled
// tweets. A single goroutine owns a min-heap of jobs ordered by fire time and
// registration order. Every mutation reaches it through a non-blocking
// mailbox, so callbacks running on the loop may schedule and cancel freely.
// Sleeps are capped at maxSleepCap. Handles are only meaningful for the
// lifetime of the process.
package timer
