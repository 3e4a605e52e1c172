// Package reembed re-embeds the documents of an existing collection with
// a new or updated embedding model, without re-reading the event sources.
//
// This package supports batch processing of documents, progress tracking,
// retry logic with exponential backoff, and vector normalization to ensure
// compatibility with cosine distance search. The new model must produce
// vectors of the collection's existing size; a different size needs a
// full re-ingestion.
package reembed
