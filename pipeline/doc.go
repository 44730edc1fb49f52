// Package pipeline implements the photo-to-3D orchestration core: three
// stage executors (face fusion, body compositing, image-to-3D) chained
// by a coordinator that persists intermediate artifacts and reports
// terminal success or structured failure with partial results.
//
// The pipeline never interprets image or mesh content; it only manages
// the asynchronous workflow around opaque remote jobs.
package pipeline
