// Package common holds helpers shared by several services.
//
// It detects the current system actor (hostname/username) recorded in
// manifests and provides the destination lock that serialises packaging
// runs targeting the same archive.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
