// Package ingestion rebuilds the event index from raw source rows.
// A run proceeds through these stages:
//   - Normalize: map source columns onto RawRecords, drop excluded and untitled rows
//   - Canonicalize: merge records sharing a normalized title into one entity
//   - Build: render each entity's embedding text and metadata
//   - Write: recreate the collection and embed and store documents in batches
// Batches are embedded concurrently on a worker pool and written by a single
// writer. Any batch failure fails the whole run; ingestion is not resumable.
package ingestion
