// Package upload publishes source images so remote inference providers
// can fetch them by URL. It mirrors the upload ladder of the original
// workflow: the provider's files API first, an inline data URL as the
// terminal fallback, with an optional content-addressed Redis cache in
// front.
package upload
