// Package queue persists submission items in SQLite and defines their
// delivery state machines.
//
// Items live in two logical partitions: "active" for anything not yet
// delivered to both backends, and "completed" for the archive. Each
// partition is one JSON document rewritten in full on every mutation, so
// durable state is always a consistent snapshot and a crash mid-update
// leaves the previous snapshot intact. An internal mutex serializes
// writers; the store is otherwise safe for concurrent readers.
//
// Every item carries three independent ServiceState machines (ledger,
// proof, linking). Treat this package as the single source of truth for
// queue semantics; status derivation lives on Item.RecomputeStatus and
// retry bookkeeping on ServiceState.
package queue
