// Package relay brokers streamed model responses to any number of observer channels.
//
// Ownership model:
//   - Store holds every in-flight and recently finished Request. Only Controller mutates
//     request content and status.
//   - Registry holds the per-request channel sets. Only Registry mutates attachments.
//   - Cleanup is the only path that deletes a Request, after DefaultGraceWindow.
//
// Each request record carries its own lock. Applying an event and broadcasting it happen
// under that lock, and so do Attach and its replay, so a late subscriber sees every event
// exactly once. Observers are fed from a queue by a single worker, off the request lock.
package relay
