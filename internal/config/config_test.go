package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "PERSONAS_PATH", "ROUTING_CONFIG", "GCP_PROJECT_ID", "GCP_PROJECT_NUMBER",
		"GCP_REGION", "ENDPOINT_MAP", "INFERENCE_BACKEND", "GEN_TEMPERATURE",
		"GEN_MAX_OUTPUT_TOKENS", "GEN_TOP_K", "SESSION_IDLE_TIMEOUT", "AUDIT_DB_PATH",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "json/personas_gemini.json", cfg.Personas.Path)
	assert.Equal(t, "us-central1", cfg.Routing.Region)
	assert.Equal(t, BackendVertex, cfg.AI.Backend)
	assert.InDelta(t, 0.8, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 1042, cfg.AI.MaxOutputTokens)
	assert.Equal(t, 70, cfg.AI.TopK)
	assert.Equal(t, 30*time.Minute, cfg.Session.IdleTimeout)
	assert.Empty(t, cfg.Session.AuditDBPath)
}

func TestLoadRoutingFromYAMLWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
projectId: syntheticpersonas
projectNumber: "541997184461"
region: us-central1
clusterToEndpointId:
  Security_Seeker: "6954726605520371712"
`), 0o644))

	t.Setenv("ROUTING_CONFIG", path)
	t.Setenv("GCP_PROJECT_NUMBER", "")
	t.Setenv("GCP_PROJECT_ID", "")
	t.Setenv("GCP_REGION", "europe-west4")
	t.Setenv("ENDPOINT_MAP", "Pragmatic_Guardian=4205454954871128065, Security_Seeker=1")

	table, err := loadRoutingConfig()
	require.NoError(t, err)

	assert.Equal(t, "syntheticpersonas", table.ProjectID)
	assert.Equal(t, "541997184461", table.ProjectNumber)
	assert.Equal(t, "europe-west4", table.Region)
	assert.Equal(t, map[string]string{
		"Security_Seeker":    "1",
		"Pragmatic_Guardian": "4205454954871128065",
	}, table.Endpoints)
}

func TestLoadRoutingMissingFile(t *testing.T) {
	t.Setenv("ROUTING_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := loadRoutingConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestParseEndpointMapRejectsBadEntries(t *testing.T) {
	for _, raw := range []string{"Security_Seeker", "=123", "Security_Seeker="} {
		_, err := parseEndpointMap(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadAIConfigOverrides(t *testing.T) {
	t.Setenv("INFERENCE_BACKEND", "ARK")
	t.Setenv("GEN_TEMPERATURE", "0.3")
	t.Setenv("GEN_MAX_OUTPUT_TOKENS", "2048")
	t.Setenv("GEN_TOP_K", "50")
	t.Setenv("ARK_API_KEY", " key ")

	cfg, err := loadAIConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendArk, cfg.Backend)
	assert.InDelta(t, 0.3, cfg.Temperature, 1e-9)
	assert.Equal(t, 2048, cfg.MaxOutputTokens)
	assert.Equal(t, 50, cfg.TopK)
	assert.True(t, cfg.Ark.Enabled())
}

func TestLoadAIConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"backend":     {"INFERENCE_BACKEND", "openai"},
		"temperature": {"GEN_TEMPERATURE", "warm"},
		"max tokens":  {"GEN_MAX_OUTPUT_TOKENS", "0"},
		"top k":       {"GEN_TOP_K", "many"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := loadAIConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadSessionConfig(t *testing.T) {
	t.Setenv("SESSION_IDLE_TIMEOUT", "90s")
	t.Setenv("AUDIT_DB_PATH", "/tmp/audit.db")

	cfg, err := loadSessionConfig()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.IdleTimeout)
	assert.Equal(t, "/tmp/audit.db", cfg.AuditDBPath)

	t.Setenv("SESSION_IDLE_TIMEOUT", "-1m")
	_, err = loadSessionConfig()
	assert.Error(t, err)
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)

	t.Setenv("PORT", "80 80")
	_, err = loadServerConfig()
	assert.Error(t, err)
}
