package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/convobot-go/internal/connector"
)

const sampleDeclarations = `
bots:
  - id: support
    namespace: acme
    nlpModel: support
    locale: en
connectors:
  - connectorId: support-rest
    type: REST
    path: /io/support/rest
    parameters:
      greeting: hi
  - type: none
`

func TestParseDeclarations(t *testing.T) {
	d, err := ParseDeclarations([]byte(sampleDeclarations))
	require.NoError(t, err)

	require.Len(t, d.Bots, 1)
	assert.Equal(t, "acme", d.Bots[0].Namespace)

	cfgs := d.ToConfigurations()
	require.Len(t, cfgs, 2)
	assert.Equal(t, connector.TypeRest, cfgs[0].Type)
	assert.Equal(t, "hi", cfgs[0].Parameter("greeting", ""))
	assert.False(t, cfgs[1].HasExplicitID())
	assert.Equal(t, "support-rest", cfgs[0].ConnectorID)
}

func TestParseDeclarations_Empty(t *testing.T) {
	d, err := ParseDeclarations([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, d.ToConfigurations())
}

func TestParseDeclarations_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing type", "connectors:\n  - connectorId: c1\n", "Type"},
		{"relative path", "connectors:\n  - type: rest\n    path: io/x\n", "startswith"},
		{"bad base url", "connectors:\n  - type: rest\n    baseUrl: not a url\n", "url"},
		{"bot without namespace", "bots:\n  - id: b1\n", "Namespace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDeclarations([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDeclarations(t *testing.T) {
	d, err := LoadDeclarations("")
	require.NoError(t, err)
	assert.Empty(t, d.Connectors)

	path := filepath.Join(t.TempDir(), "connectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDeclarations), 0o600))
	d, err = LoadDeclarations(path)
	require.NoError(t, err)
	assert.Len(t, d.Connectors, 2)

	_, err = LoadDeclarations(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
