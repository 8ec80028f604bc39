// Package frame decodes planar camera frames into RGB pixel buffers.
//
// A camera capture arrives as one to three 8-bit planes: a luma plane and,
// for colour captures, two chroma planes subsampled 2x2 (4:2:0). Each plane
// carries its own row stride and pixel stride, so both fully planar (I420)
// and semi-planar (NV21, NV12) buffers can be described without copying.
//
// # Colour Modes
//
//   - Grayscale: only the luma plane is read. Every luma byte is replicated
//     into the R, G and B channels of the output pixel.
//   - ColorYUV: all three planes are read in camera order (Y, U, V), packed
//     into a single NV21 buffer (Y, then interleaved V/U pairs) and converted
//     to RGB with the full-range BT.601 (JFIF) transform.
//
// # Output
//
// Decode always returns an *image.NRGBA with exactly Width x Height pixels and
// opaque alpha. The buffer is freshly allocated and owned by the caller.
//
// # Error Handling
//
// Frames whose declared geometry cannot be satisfied by the plane data are
// rejected with an error wrapping ErrMalformedFrame:
//   - non-positive width or height
//   - missing planes for the requested colour mode
//   - a row stride shorter than one row of samples
//   - a plane holding fewer bytes than its geometry requires
//
// Decode never retains references to plane data after it returns.
package frame
