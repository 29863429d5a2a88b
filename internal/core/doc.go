// Package core provides the business logic for importing sales CSV exports.
//
// This package holds the import pipeline independent of any transport. It is
// driven by the HTTP server, the queue worker and the salesctl command
// without modification.
//
// # Pipeline
//
// A run resolves the platform config, then streams the source through
// these stages with O(batch_size) memory regardless of file size:
//
//  1. [RowReader] skips a BOM, repairs invalid UTF-8 and yields header-keyed
//     records with their line numbers.
//  2. [RowMapper] turns a record into canonical customer, product, order,
//     order item and delivery records using the platform's field mapping.
//  3. [BatchAccumulator] deduplicates customers and products within a batch
//     and flushes every batch_size rows.
//  4. [BulkLoader] writes a batch in one transaction, in dependency order.
//     Natural-key conflicts are skipped and counted, never updated.
//
// [Importer] ties the stages together and returns a [RunSummary].
// [JobRunner] wraps it for queued jobs: it opens the stored source, retries
// retryable failures from the start of the file and records run history.
//
// # Error Handling
//
// Failures are one of [ConfigurationError], [ParsingError] or
// [PersistenceError]; see errors.go. [MapError] turns any error into a
// user-facing message with a support code:
//
//   - CFG001-CFG003: Platform configuration
//   - PARSE001-PARSE002: Row values that do not parse
//   - DB001-DB007: Database errors
//   - FILE001-FILE005: Uploaded files
//   - QUE001-QUE003: Job queue
//
// Because conflicts are skipped, re-running a file that already committed
// some batches is safe.
package core
