// Package providers holds the configuration structs shared by the remote
// inference provider clients. The clients themselves live in
// subpackages, one per provider.
package providers
