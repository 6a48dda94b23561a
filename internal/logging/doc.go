// Package logging builds the slog loggers used throughout fieldsync.
//
// Two output formats are supported: a compact console format for
// interactive use (colored level labels when stdout is a terminal) and
// line-delimited JSON for file or machine consumption. Attr helpers and
// the shared Field* key constants keep log fields consistent between the
// scheduler, pipeline, and store so delivery traces can be correlated by
// item_id and pass_id.
package logging
