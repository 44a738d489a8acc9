package stacks

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	honeycombKeyPlaceholder   = "##HONEYCOMB_API_KEY##"
	traceExportersPlaceholder = "##TRACE_EXPORTERS##"
)

// RenderedOtelConfig is a collector configuration document with placeholders
// substituted, plus the fingerprint used for change detection.
type RenderedOtelConfig struct {
	Content string
	// Hash is the SHA-256 hex digest of Content. It is injected into the
	// container environment so that any config change produces a new task
	// definition; the collector itself never reads it.
	Hash string
}

// RenderOtelConfig substitutes the API key and trace exporter placeholders
// in the collector config template and fingerprints the result. Identical
// inputs always produce the identical fingerprint.
func RenderOtelConfig(template []byte, honeycombAPIKey, traceExporters string) (RenderedOtelConfig, error) {
	content := strings.ReplaceAll(string(template), honeycombKeyPlaceholder, honeycombAPIKey)
	content = strings.ReplaceAll(content, traceExportersPlaceholder, traceExporters)

	var doc map[string]any
	if err := yaml.Unmarshal([]byte(content), &doc); err != nil {
		return RenderedOtelConfig{}, fmt.Errorf("rendered collector config is not valid YAML: %w", err)
	}

	sum := sha256.Sum256([]byte(content))
	return RenderedOtelConfig{
		Content: content,
		Hash:    hex.EncodeToString(sum[:]),
	}, nil
}
