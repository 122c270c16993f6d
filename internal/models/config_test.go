package models

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
models:
  - type: toxicity
    name: tox-server
    kind: remote
    url: http://models.internal/tox
    timeout: 5s
    default: true
  - type: dti
    name: affinity-v2
    kind: heuristic
`

func TestLoadConfigAndBuildRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, 5*time.Second, cfg.Models[0].Timeout)

	reg, err := BuildRegistry(cfg)
	require.NoError(t, err)

	c, ok := reg.Resolve("toxicity", "")
	require.True(t, ok)
	assert.Equal(t, "tox-server", c.Name())

	c, ok = reg.Resolve("interaction-affinity", "affinity-v2")
	require.True(t, ok)
	assert.Equal(t, "interaction-affinity", c.ModelType())

	_, ok = reg.Resolve("solubility", HeuristicName)
	assert.True(t, ok)
}

func TestParseConfigRejectsBadEntries(t *testing.T) {
	_, err := ParseConfig([]byte("models:\n  - type: toxicity\n    name: x\n    kind: remote\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("models:\n  - type: toxicity\n    name: x\n    kind: grpc\n"))
	assert.Error(t, err)
	_, err = ParseConfig([]byte("models:\n  - name: x\n"))
	assert.Error(t, err)
}

func TestBuildRegistryWithoutHeuristics(t *testing.T) {
	cfg, err := ParseConfig([]byte("include_heuristics: false\nmodels: []\n"))
	require.NoError(t, err)
	reg, err := BuildRegistry(cfg)
	require.NoError(t, err)
	assert.Empty(t, reg.Types())

	reg, err = BuildRegistry(nil)
	require.NoError(t, err)
	assert.Len(t, reg.Types(), 3)
}
