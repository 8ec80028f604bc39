// Package pipeline wires the per-frame classification stages together.
//
// # Stages
//
// A Classifier runs one frame through the stages strictly in sequence:
//
//	frame.Decode -> tensor.Packer -> model.Executor -> scores.Top
//
// It is built once at startup from the configuration, the label table and
// a loaded executor, and is immutable afterwards apart from its snapshot
// counter. Construction fails with scores.ErrLabelCountMismatch when the
// executor's output length disagrees with the label table, so the check is
// never repeated per frame.
//
// # Frame Delivery
//
// A Worker owns the Classifier and a single-slot mailbox. Frame suppliers
// call Submit, which never blocks: a frame that has not been picked up yet
// is replaced by the newer one and counted as dropped. The worker processes
// one frame at a time and hands each Result to a Sink.
//
// Run connects a Source to a Worker under one errgroup. Cancelling the
// context stops both between frames.
//
// # Error Handling
//
// Malformed frames are logged at debug level, counted and skipped. Engine
// and sink failures are logged and counted; the worker keeps going.
package pipeline
