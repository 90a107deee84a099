// Package patterns provides embedded default recognizer definitions.
// The YAML file in this directory uses the Presidio-compatible recognizer
// format with Veil extensions (sensitivity, validation).
package patterns

import _ "embed"

//go:embed pii.yaml
var piiYAML []byte

// PIIYAML returns the embedded default PII recognizer definitions.
func PIIYAML() []byte { return piiYAML }
