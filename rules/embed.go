// Package rules embeds the built-in Risor rule scripts shipped with docgap.
// Pass FS to docgap.WithRulesFS to enable them.
package rules

import "embed"

//go:embed *.risor
var FS embed.FS
