// Package docgap finds documentation gaps in source trees and, optionally,
// proposes documentation that closes them.
//
// # Pipeline
//
// A run walks a project root, analyzes each matching file with the
// tree-sitter analyzer registered for its extension, and classifies the
// gaps of every entity it finds:
//
//  1. Walk: include/exclude globs select files (exclude wins). Hidden and
//     vendored directories are pruned. git ls-files is used when enabled.
//
//  2. Analyze: entities are served from the SQLite cache when the file's
//     sha256 fingerprint is unchanged, and re-extracted otherwise.
//
//  3. Detect: the gap detector and any custom Risor rule scripts produce
//     gaps, filtered by the configured severity floor.
//
//  4. Generate (optional): gaps are sent to a documentation generator with
//     bounded concurrency, retry and a generation cache.
//
//  5. Aggregate: statistics are computed and the run is recorded in the
//     run history.
//
// # Usage
//
//	e, err := docgap.New("docgap.db", docgap.WithConfig(cfg))
//	if err != nil { ... }
//	defer e.Close()
//
//	report, err := e.Run(ctx, "path/to/project")
//	for _, g := range report.Gaps {
//	    fmt.Println(g.Entity, g.Type, g.Severity)
//	}
//
// Generated documentation is written back only when the engine was built
// with WithWrite(true):
//
//	applied, err := e.Apply(ctx, report)
package docgap
