// Package tensor packs decoded pixel buffers into flat float32 model inputs.
//
// A Packer is configured once with a Spec and then applied to every frame.
// Packing resizes the pixel buffer to a square of Spec.Side pixels, walks the
// result in row-major order and writes Spec.Channels normalized values per
// pixel into a buffer of exactly Side*Side*Channels float32 values.
//
// # Interpolation
//
// The resampling filter changes the values the network sees, so it is fixed
// per configuration:
//   - nearest: nearest-neighbour, equivalent to unfiltered bitmap scaling
//   - bilinear: linear (tent) filter
//   - lanczos: Lanczos-3
//
// When PreserveAspect is set the image is scaled to cover the square and
// center-cropped instead of being stretched.
//
// # Normalization
//
//   - zero_one:    value = raw / 255            range [0, 1]
//   - signed_unit: value = raw / 127.5 - 1      range [-1, 1]
//
// # Layout
//
//   - hwc: channel-minor (R,G,B,R,G,B,...), the NHWC order TFLite models use
//   - chw: channel-major (all R, then all G, then all B), the NCHW order
//     common to ONNX exports
//
// Single-channel packing uses ITU-R BT.601 luma in 16.16 fixed point, which
// is exact for gray pixels.
package tensor
