package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Default configuration ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "agents", cfg.Agents.DefinitionsDir)
	assert.Equal(t, time.Hour, cfg.Agents.CacheTTL)
	assert.True(t, cfg.Agents.Watch)

	assert.Equal(t, "orchestrator", cfg.KV.Namespace)

	assert.Equal(t, 20, cfg.Tools.MaxCallsPerRun)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

// --- Loader tests ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "agents", cfg.Agents.DefinitionsDir)
	assert.Equal(t, "orchestrator", cfg.KV.Namespace)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
agents:
  definitions_dir: "custom-agents"
  cache_ttl: 30m
  watch: false
  communication_language: "Spanish"

providers:
  claude-worker:
    name: "claude-worker"
    model: "claude-3-haiku"
    api_key_env: "ANTHROPIC_API_KEY"
    enabled: true
    rpm: 60
    burst: 60
    tokens_per_minute: 100000
    tier: "worker"

chains:
  architect:
    primary: "claude-worker"

kv:
  url: "redis://localhost:6379/0"
  namespace: "test-ns"

log:
  level: "debug"
  format: "console"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "custom-agents", cfg.Agents.DefinitionsDir)
	assert.Equal(t, 30*time.Minute, cfg.Agents.CacheTTL)
	assert.False(t, cfg.Agents.Watch)
	assert.Equal(t, "Spanish", cfg.Agents.CommunicationLanguage)

	require.Contains(t, cfg.Providers, "claude-worker")
	assert.Equal(t, "claude-3-haiku", cfg.Providers["claude-worker"].Model)
	assert.Equal(t, 60, cfg.Providers["claude-worker"].RPM)

	require.Contains(t, cfg.Chains, "architect")
	assert.Equal(t, "claude-worker", cfg.Chains["architect"].Primary)

	assert.Equal(t, "redis://localhost:6379/0", cfg.KV.URL)
	assert.Equal(t, "test-ns", cfg.KV.Namespace)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"ORCHESTRATOR_AGENTS_DEFINITIONS_DIR": "env-agents",
		"ORCHESTRATOR_AGENTS_WATCH":           "false",
		"ORCHESTRATOR_KV_URL":                 "redis://env-host:6379/0",
		"ORCHESTRATOR_LOG_LEVEL":              "warn",
	}

	for k, v := range envVars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range envVars {
			os.Unsetenv(k)
		}
	}()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "env-agents", cfg.Agents.DefinitionsDir)
	assert.False(t, cfg.Agents.Watch)
	assert.Equal(t, "redis://env-host:6379/0", cfg.KV.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
agents:
  definitions_dir: "yaml-agents"
log:
  level: "info"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	os.Setenv("ORCHESTRATOR_LOG_LEVEL", "error")
	defer os.Unsetenv("ORCHESTRATOR_LOG_LEVEL")

	cfg, err := NewLoader().
		WithConfigPath(configPath).
		Load()
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.Log.Level)
	// YAML value should survive where no env override exists
	assert.Equal(t, "yaml-agents", cfg.Agents.DefinitionsDir)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	os.Setenv("MYAPP_LOG_LEVEL", "debug")
	defer os.Unsetenv("MYAPP_LOG_LEVEL")

	cfg, err := NewLoader().
		WithEnvPrefix("MYAPP").
		Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoader_WithValidator(t *testing.T) {
	validator := func(cfg *Config) error {
		if cfg.Agents.DefinitionsDir == "" {
			return assert.AnError
		}
		return nil
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("agents:\n  definitions_dir: \"\"\n"), 0644))

	_, err := NewLoader().
		WithConfigPath(configPath).
		WithValidator(validator).
		Load()
	assert.Error(t, err)
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/config.yaml").
		Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "agents", cfg.Agents.DefinitionsDir)
}

func TestLoader_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
agents:
  definitions_dir: [invalid
  this is not valid yaml
`
	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	_, err = NewLoader().
		WithConfigPath(configPath).
		Load()
	assert.Error(t, err)
}

// --- Config.Validate ---

func TestConfig_Validate(t *testing.T) {
	validProvider := ProviderConfig{
		Name:            "claude-worker",
		Model:           "claude-3-haiku",
		APIKeyEnv:       "ANTHROPIC_API_KEY",
		Enabled:         true,
		RPM:             60,
		Burst:           60,
		TokensPerMinute: 100000,
		Tier:            "worker",
	}

	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Providers["claude-worker"] = validProvider
		cfg.Chains["architect"] = AgentChain{Primary: "claude-worker"}
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "provider with zero rpm",
			modify: func(c *Config) {
				p := c.Providers["claude-worker"]
				p.RPM = 0
				c.Providers["claude-worker"] = p
			},
			wantErr: true,
		},
		{
			name: "provider burst below rpm",
			modify: func(c *Config) {
				p := c.Providers["claude-worker"]
				p.Burst = 1
				c.Providers["claude-worker"] = p
			},
			wantErr: true,
		},
		{
			name: "provider with zero tokens_per_minute",
			modify: func(c *Config) {
				p := c.Providers["claude-worker"]
				p.TokensPerMinute = 0
				c.Providers["claude-worker"] = p
			},
			wantErr: true,
		},
		{
			name: "enabled provider without api_key_env",
			modify: func(c *Config) {
				p := c.Providers["claude-worker"]
				p.APIKeyEnv = ""
				c.Providers["claude-worker"] = p
			},
			wantErr: true,
		},
		{
			name: "chain missing primary",
			modify: func(c *Config) {
				c.Chains["architect"] = AgentChain{}
			},
			wantErr: true,
		},
		{
			name: "chain references unknown provider",
			modify: func(c *Config) {
				c.Chains["architect"] = AgentChain{Primary: "ghost-provider"}
			},
			wantErr: true,
		},
		{
			name: "chain with duplicate provider entries",
			modify: func(c *Config) {
				c.Chains["architect"] = AgentChain{
					Primary:   "claude-worker",
					Fallbacks: []string{"claude-worker"},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProviderConfig_APIKey(t *testing.T) {
	os.Setenv("TEST_PROVIDER_KEY", "sk-test-123")
	defer os.Unsetenv("TEST_PROVIDER_KEY")

	p := ProviderConfig{APIKeyEnv: "TEST_PROVIDER_KEY"}
	assert.Equal(t, "sk-test-123", p.APIKey())

	empty := ProviderConfig{}
	assert.Empty(t, empty.APIKey())
}

func TestAgentChain_Providers(t *testing.T) {
	chain := AgentChain{
		Primary:   "claude-worker",
		Fallbacks: []string{"openai-fallback", "deepseek-fallback"},
	}

	assert.Equal(t, []string{"claude-worker", "openai-fallback", "deepseek-fallback"}, chain.Providers())
}

// --- MustLoad ---

func TestMustLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
log:
  level: "info"
`
	err := os.WriteFile(configPath, []byte(yamlContent), 0644)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		cfg := MustLoad(configPath)
		assert.Equal(t, "info", cfg.Log.Level)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	err := os.WriteFile(configPath, []byte("invalid: [yaml"), 0644)
	require.NoError(t, err)

	assert.Panics(t, func() {
		MustLoad(configPath)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	os.Setenv("ORCHESTRATOR_LOG_LEVEL", "error")
	defer os.Unsetenv("ORCHESTRATOR_LOG_LEVEL")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
}
