// Package source supplies camera frames to the classification pipeline.
//
// Two sources stand in for the camera:
//
//   - Images reads still images (a file or every image in a directory),
//     converts each into the planes a camera would deliver and emits them
//     at a fixed interval, optionally looping forever.
//
//   - Raw reads fixed-size planar frames (gray, i420, nv21, nv12) from a
//     file or stdin, for example piped from ffmpeg:
//
//     ffmpeg -i cam.mp4 -f rawvideo -pix_fmt nv21 -s 640x480 - | shape-classifier run --source.kind raw ...
//
// Both implement pipeline.Source. Frames carry a sequence number starting
// at 1 and the time they were produced. A frame's planes are never written
// after it is sent.
package source
