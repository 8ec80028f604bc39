// Package server implements an MCP (Model Context Protocol) tool server for
// the shape classifier.
//
// The server lets MCP clients classify shapes in image files and raw camera
// frames with the same pipeline the camera loop runs, which makes it easy to
// check a model and preset against known images.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
//   - shape_classify: Best label, score and top-n ranking for an image or a
//     region of it
//   - shape_rank: Every label with its score, optionally as softmax
//     probabilities
//   - shape_classify_frame: Classify a raw gray/i420/nv21/nv12 frame file
//   - pipeline_info: Tensor shape, preprocessing options, label table and
//     call counts
//
// # Image Caching
//
// Images are decoded once and cached by path for the lifetime of the
// server process.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: The Go error string
//
// Logs go to the zap logger passed to New, never to stdout.
//
// # Usage
//
//	srv := server.New(classifier, version, logger)
//	if err := srv.Run(); err != nil {
//	    logger.Fatal("server failed", zap.Error(err))
//	}
package server
