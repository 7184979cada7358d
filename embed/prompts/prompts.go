package prompts

import _ "embed"

// Breakdown is the template for the task breakdown prompt.
//
//go:embed breakdown.md
var Breakdown string
