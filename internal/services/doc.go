// Package services defines the [Tracker] interface for work item tracking backends and implements it for Azure
// DevOps Services and Team Foundation Server.
//
// # Tracker Interface
//
// The transfer engine only needs three remote operations: run a query, create a record and append a relation.
// Any backend offering those can act as a source or destination.
//
// # Azure DevOps Implementation
//
// [AzureDevOpsService] talks to the work item tracking REST API (version 7.0):
//   - Query posts the WIQL expression to _apis/wit/wiql, then fetches matches with $expand=all in batches of 200
//   - Create posts a JSON-patch document to {project}/_apis/wit/workitems/${type}
//   - AddRelation patches _apis/wit/workitems/{id} with an add /relations/- operation
//
// A service is bound to a collection or organization URL, never to a project, so one instance serves every project
// on that server.
//
// # Authentication
//
// Personal access tokens are sent as basic auth with an empty user name. Bearer tokens go through an
// [oauth2.StaticTokenSource]. Anonymous access is allowed for on-premises servers behind other auth.
//
// # Retries
//
// 429, 502, 503 and 504 responses are retried with exponential backoff up to MaxRetries times. Transport errors are
// only retried for reads since a create may already have been applied.
//
// # Error Handling
//
// Failures wrap typed errors from the shared package:
//   - [shared.ErrRemoteQuery] : malformed query or failed read
//   - [shared.ErrRemoteWrite] : failed create or relation
//
// Non-2xx responses are [StatusError] values carrying the service message.
package services
