// Package sources reads conference event exports into ingestion rows.
//
// A Manifest lists the source files in the order their rows are
// concatenated, together with the column Schema and the Exclusions the
// ingestion run should apply. Manifests are YAML:
//
//	schema:
//	  abstract: neurips_abstract
//	exclusions:
//	  session_substrings: [mexico]
//	  start_time_prefixes: ["2025-12-01"]
//	sources:
//	  - path: papercopilot_neurips2025_merged_openreview.csv
//	  - path: neurips_2025_enriched_events.csv
//	    optional: true
//
// Relative paths are resolved against the manifest's directory. Missing
// optional files are skipped; a missing required file fails the load.
package sources
