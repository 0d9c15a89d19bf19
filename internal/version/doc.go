// Package version exposes build metadata for plugin-packager.
//
// Version, Commit and BuildTime are injected at build time via Go ldflags.
// The short version is also recorded in every manifest the packager writes.
package version
