// Package repositories implements SQLite persistence for the run journal.
//
// Key Implementations:
//   - [RunRepository] : one row per engine run with endpoints, strategy, status and counts
//   - [RecordMappingRepository] : copy outcome per source record (destination id and url, or the error)
//   - [RelationLinkRepository] : link outcome per forward relation
//   - [RunJournal] : adapts the repositories to tasks.RunRecorder so the engine can journal a run between phases
//
// Sequence numbers provide stable, human-readable run references (e.g. run #42) independent of UUIDs.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
// Deleting a run cascades to its record and relation entries.
package repositories
