// Package config loads and validates fieldsync configuration.
//
// Configuration is sourced from a TOML file (~/.config/fieldsync/config.toml
// by default, with a repo-local fieldsync.toml fallback) layered over
// compiled-in defaults. Load expands home-relative paths, normalizes
// endpoint strings, and validates every section before returning; callers
// can rely on a returned Config being internally consistent.
//
// Retry and scheduler constants live here rather than in their consuming
// packages so that a single file governs delivery timing across the
// daemon, the CLI, and tests.
package config
