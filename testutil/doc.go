// Package testutil provides shared test helpers: a scripted stub
// implementation of job.Client and small context utilities.
package testutil
