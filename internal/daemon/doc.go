// Package daemon assembles the queue store, submission pipeline,
// scheduler, and retention sweep into a single-instance background
// process guarded by a data-directory file lock.
package daemon
