// package tasks implements the work item transfer engine.
//
// The core abstraction is [MigrationEngine], which runs a migration in three phases:
//
//  1. Fetch queries every record of the source project.
//  2. Copy creates one destination record per source record, carrying the title, description and remaining work
//     plus a tag derived from the assignee and iteration path. Returned handles populate an [IDMap].
//  3. Link recreates each forward hierarchy relation between the destination copies once Copy has fully finished.
//
// Copy and Link are cohorts of independent units run by a bounded pool (errgroup with SetLimit) and paced by a
// token bucket limiter. A failing unit never cancels its siblings: each phase returns a report with one outcome per
// unit plus the joined error of the failures, and [MigrationEngine.Run] applies the on_error policy between phases.
//
// Link resolves endpoints through a [Resolver]. [MappingResolver] consults the id map from Copy. [LookupResolver]
// re-queries the destination by title and type and fails on zero or several matches.
//
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks
