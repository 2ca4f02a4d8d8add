// Package shared holds helpers used across CinePulse packages that belong to
// no single layer. Its testutil subpackage provides a capturing slog handler
// for asserting on structured log output in tests.
package shared
