// Package pipeline runs extraction jobs through a sequence of steps.
//
// A Job names a session, a strategy and a grid. Each job becomes a Run that
// passes through the configured steps: the extraction itself, then
// bookkeeping such as the history database and metrics. Extraction failures
// are recorded on the Run rather than aborting the pipeline, so later steps
// still see them.
//
// BatchProcessor executes many jobs. Jobs of the same session run strictly
// one after another because they drive the same client window; different
// sessions run concurrently with errgroup.
package pipeline
