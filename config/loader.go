// =============================================================================
// 📦 Orchestrator 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ORCHESTRATOR").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config is the orchestrator core's full configuration surface. It covers
// exactly the three logical sources spec.md §6 names as the configuration
// boundary (rate limits, providers, agent chains) plus the ambient stack
// (agent definitions location, KV connection, tool sandbox, logging,
// telemetry). There is deliberately no HTTP/gRPC server section, no
// database/vector-store section: those belong to the entry-point surface
// spec.md §1 places out of scope.
type Config struct {
	// Agents locates and governs the agent-definition source files.
	Agents AgentsConfig `yaml:"agents" env:"AGENTS"`

	// Providers is keyed by provider name (e.g. "openai", "anthropic").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Chains is keyed by agent id; each entry is that agent's ordered
	// provider fallback chain (spec.md §3 "AgentChain").
	Chains map[string]AgentChain `yaml:"chains"`

	// KV configures the KV store abstraction's backing connection.
	KV KVConfig `yaml:"kv" env:"KV"`

	// Tools configures the Tool Registry & Executor's sandbox.
	Tools ToolsConfig `yaml:"tools" env:"TOOLS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// AgentsConfig locates agent-definition source files and controls reload.
type AgentsConfig struct {
	// DefinitionsDir is scanned at startup for agent definition files.
	DefinitionsDir string `yaml:"definitions_dir" env:"DEFINITIONS_DIR"`
	// CacheTTL is how long a loaded definition stays valid in KV (spec.md
	// §4.12: "caches the structured form in KV under agent:{id} with
	// 1-hour TTL").
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
	// Watch enables a file watcher that re-parses and hot-swaps a
	// definition on change.
	Watch bool `yaml:"watch" env:"WATCH"`
	// CommunicationLanguage is the runtime-config input the Prompt
	// Builder's rules section (spec.md §4.12 step 4) renders.
	CommunicationLanguage string `yaml:"communication_language" env:"COMMUNICATION_LANGUAGE"`
}

// ProviderConfig is spec.md §3's "ProviderConfig" entity: immutable per
// process generation, identified by Name.
type ProviderConfig struct {
	Name      string        `yaml:"name"`
	Enabled   bool          `yaml:"enabled"`
	Model     string        `yaml:"model"`
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	Timeout   time.Duration `yaml:"timeout"`

	// Rate bounds, consulted by the Rate Gate's composite layers.
	RPM             int `yaml:"rpm"`
	Burst           int `yaml:"burst"`
	TokensPerMinute int `yaml:"tokens_per_minute"`

	// Tier influences Quality Validator thresholds and chain placement
	// (spec.md GLOSSARY "Tier"): worker | boss | creative | fallback.
	Tier string `yaml:"tier"`
}

// APIKey resolves the provider's API key from its configured env var. It
// returns empty if the var is unset — callers decide whether that's fatal.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// AgentChain is spec.md §3's "AgentChain" entity: the ordered
// [primary, fallback_1, fallback_2, ...] provider-name list for one agent.
type AgentChain struct {
	Primary   string   `yaml:"primary"`
	Fallbacks []string `yaml:"fallbacks,omitempty"`
}

// Providers returns the chain as a single ordered slice: primary first,
// then fallbacks in order.
func (c AgentChain) Providers() []string {
	out := make([]string, 0, 1+len(c.Fallbacks))
	out = append(out, c.Primary)
	out = append(out, c.Fallbacks...)
	return out
}

// KVConfig configures the KV store's backing connection.
type KVConfig struct {
	// URL e.g. "redis://localhost:6379/0". Empty means use the
	// in-process fallback store.
	URL       string `yaml:"url" env:"URL"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// ToolsConfig governs the Tool Registry & Executor's sandbox (spec.md
// §4.11).
type ToolsConfig struct {
	// ProjectRoot anchors every relative path argument.
	ProjectRoot string `yaml:"project_root" env:"PROJECT_ROOT"`
	// ReadWhitelist is the set of path prefixes reads may resolve under.
	ReadWhitelist []string `yaml:"read_whitelist" env:"READ_WHITELIST"`
	// WriteWhitelist is the stricter set of prefixes writes may target.
	WriteWhitelist []string `yaml:"write_whitelist" env:"WRITE_WHITELIST"`
	// MaxFileSizeBytes caps a single read (default 10 MiB).
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes" env:"MAX_FILE_SIZE_BYTES"`
	// MaxCallsPerRun caps tool invocations per orchestrator run (default 20).
	MaxCallsPerRun int `yaml:"max_calls_per_run" env:"MAX_CALLS_PER_RUN"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ORCHESTRATOR",
		validators: []func(*Config) error{(*Config).Validate},
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置（仅覆盖标量字段，Providers/Chains 两张 map
// 只能通过文件配置）
func (l *Loader) loadFromEnv(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	return l.setFieldsFromEnv(v, l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the cross-validation rules spec.md §6 requires at
// startup: every chain provider is present in the provider set; enabled
// providers have a non-empty api-key env var; burst >= rpm; no duplicates
// in any chain.
func (c *Config) Validate() error {
	var errs []string

	for name, p := range c.Providers {
		if p.RPM <= 0 {
			errs = append(errs, fmt.Sprintf("provider %s: rpm must be positive", name))
		}
		if p.Burst < p.RPM {
			errs = append(errs, fmt.Sprintf("provider %s: burst must be >= rpm", name))
		}
		if p.TokensPerMinute <= 0 {
			errs = append(errs, fmt.Sprintf("provider %s: tokens_per_minute must be positive", name))
		}
		if p.Enabled && p.APIKeyEnv == "" {
			errs = append(errs, fmt.Sprintf("provider %s: enabled but api_key_env is empty", name))
		}
	}

	for agentID, chain := range c.Chains {
		if chain.Primary == "" {
			errs = append(errs, fmt.Sprintf("chain %s: primary is required", agentID))
			continue
		}
		seen := make(map[string]bool)
		for _, name := range chain.Providers() {
			if seen[name] {
				errs = append(errs, fmt.Sprintf("chain %s: duplicate provider %q", agentID, name))
			}
			seen[name] = true
			if _, ok := c.Providers[name]; !ok {
				errs = append(errs, fmt.Sprintf("chain %s: provider %q not in provider set", agentID, name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
