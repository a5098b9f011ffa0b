// Package channel reconciles a channel's remote video listing with a
// persisted per-channel catalog and drives batch downloads over the
// pending rows. The catalog keeps its stored order across runs, so a job
// can be interrupted and resumed without losing track of what is done.
package channel
