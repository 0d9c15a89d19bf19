// Package rules decides which paths of a plugin source tree are left out of
// an archive.
//
// Patterns use shell glob syntax and are tested against every contiguous
// window of a slash-separated relative path: the whole path, each segment
// and each sub-path. That gives the familiar zip -x behaviour:
//   - "*.pyc" excludes compiled files at any depth,
//   - "__pycache__/*" excludes everything inside any __pycache__ directory,
//   - "*.git*" excludes VCS metadata wherever it appears.
//
// Rules are a set: a path is excluded if any pattern matches, so the order
// in which patterns are supplied never changes a decision.
package rules
