// Package job models asynchronous remote inference jobs: the submit /
// poll / await-result contract shared by every provider client. Providers
// are submit-now-result-later; the only blocking primitive offered here
// is AwaitResult's cancellable fixed-interval polling loop.
package job
