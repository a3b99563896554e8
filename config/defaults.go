// =============================================================================
// 📦 Orchestrator 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Agents:    DefaultAgentsConfig(),
		Providers: map[string]ProviderConfig{},
		Chains:    map[string]AgentChain{},
		KV:        DefaultKVConfig(),
		Tools:     DefaultToolsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultAgentsConfig 返回默认 Agent 加载配置
func DefaultAgentsConfig() AgentsConfig {
	return AgentsConfig{
		DefinitionsDir:        "agents",
		CacheTTL:              time.Hour,
		Watch:                 true,
		CommunicationLanguage: "English",
	}
}

// DefaultKVConfig 返回默认 KV 配置
func DefaultKVConfig() KVConfig {
	return KVConfig{
		URL:       "",
		Namespace: "orchestrator",
	}
}

// DefaultToolsConfig 返回默认工具沙箱配置
func DefaultToolsConfig() ToolsConfig {
	return ToolsConfig{
		ProjectRoot:      ".",
		ReadWhitelist:    []string{".bmad/", "docs/", "config/"},
		WriteWhitelist:   []string{"docs/", ".bmad/tmp/"},
		MaxFileSizeBytes: 10 * 1024 * 1024,
		MaxCallsPerRun:   20,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "orchestrator",
		SampleRate:   0.1,
	}
}
