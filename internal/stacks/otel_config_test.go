package stacks

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

const testTemplate = `
exporters:
  awsxray:
  otlphttp/honeycomb:
    headers:
      x-honeycomb-team: "##HONEYCOMB_API_KEY##"
service:
  pipelines:
    traces:
      exporters: [##TRACE_EXPORTERS##]
`

func TestRenderOtelConfigSubstitution(t *testing.T) {
	rendered, err := RenderOtelConfig([]byte(testTemplate), "hc-key", "awsxray")
	require.NoError(t, err)

	require.Contains(t, rendered.Content, "hc-key")
	require.Contains(t, rendered.Content, "[awsxray]")
	require.NotContains(t, rendered.Content, "##HONEYCOMB_API_KEY##")
	require.NotContains(t, rendered.Content, "##TRACE_EXPORTERS##")
	require.Len(t, rendered.Hash, 64)
}

func TestRenderOtelConfigDeterministic(t *testing.T) {
	a, err := RenderOtelConfig([]byte(testTemplate), "hc-key", "awsxray")
	require.NoError(t, err)
	b, err := RenderOtelConfig([]byte(testTemplate), "hc-key", "awsxray")
	require.NoError(t, err)

	require.Equal(t, a.Content, b.Content)
	require.Equal(t, a.Hash, b.Hash)
}

func TestRenderOtelConfigFingerprintSensitivity(t *testing.T) {
	base, err := RenderOtelConfig([]byte(testTemplate), "hc-key", "awsxray")
	require.NoError(t, err)

	for name, tt := range map[string]struct {
		template  string
		apiKey    string
		exporters string
	}{
		"api key":   {testTemplate, "hc-keX", "awsxray"},
		"exporters": {testTemplate, "hc-key", "awsxraY"},
		"template":  {testTemplate + "\n", "hc-key", "awsxray"},
	} {
		changed, err := RenderOtelConfig([]byte(tt.template), tt.apiKey, tt.exporters)
		require.NoError(t, err, name)
		require.NotEqual(t, base.Hash, changed.Hash, "changing the %s must change the fingerprint", name)
	}
}

func TestRenderOtelConfigInvalidYAML(t *testing.T) {
	_, err := RenderOtelConfig([]byte("exporters: [unclosed"), "hc-key", "awsxray")
	require.Error(t, err)
	require.ErrorContains(t, err, "YAML")
}

func TestRenderShippedTemplate(t *testing.T) {
	template, err := os.ReadFile("../../otel/otel-config.yaml")
	require.NoError(t, err)

	rendered, err := RenderOtelConfig(template, "hc-key", "awsxray")
	require.NoError(t, err)
	require.Contains(t, rendered.Content, "x-honeycomb-team: \"hc-key\"")
	require.Contains(t, rendered.Content, "exporters: [awsxray]")
}

func TestCollectorEnv(t *testing.T) {
	env := collectorEnv("us-west-2", "abc123")

	require.Equal(t, map[string]string{
		"AWS_REGION":               "us-west-2",
		"OTEL_CONFIG_HASH":         "abc123",
		"OTEL_METRICS_EXPORTER":    "none",
		"OTEL_TRACES_EXPORTER":     "otlp",
		"OTEL_PROPAGATORS":         "xray",
		"OTEL_PYTHON_ID_GENERATOR": "xray",
		"OTEL_LOGS_EXPORTER":       "otlp",
	}, env)
}
