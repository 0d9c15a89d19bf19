// Package watcher rebuilds a plugin archive whenever its source tree changes.
package watcher
