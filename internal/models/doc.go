// Package models defines domain entities and persistence interfaces for witx.
//
// The package contains two categories of types:
//
// 1. Backend values: records and references as exchanged with a tracking backend
//   - [WorkRecord] : a work item with its fields and relations
//   - [Relation] : a directed link to a target record referenced by URL
//   - [Handle] : a reference to a record within one backend instance
//
// 2. Persistent Entities: the run journal written to SQLite
//   - [MigrationRun] : one invocation of the transfer engine with its counts and status
//   - [RecordMapping] : source record to destination record outcome
//   - [RelationLink] : forward relation outcome
//
// All persistent entities implement the Model interface providing IDs, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
