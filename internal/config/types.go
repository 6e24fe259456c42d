package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Collector modes.
const (
	ModeMock = "mock"
	ModeLive = "live"
)

// Config is the full application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Collector     CollectorConfig     `yaml:"collector"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Alerting      AlertingConfig      `yaml:"alerting"`
	AI            AIConfig            `yaml:"ai"`
	Logger        LoggerConfig        `yaml:"logger"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

type CollectorConfig struct {
	Mode             string `yaml:"mode"`              // mock | live
	ConnectionString string `yaml:"connection_string"` // SQL Server DSN, required for live mode
	SQLInstance      string `yaml:"sql_instance"`      // ambient instance identity stamped on events
	HostName         string `yaml:"host_name"`         // ambient host identity stamped on events
	SamplePath       string `yaml:"sample_path"`       // JSONL replay input for mock mode
	IntervalSeconds  int    `yaml:"interval_seconds"`  // 0 disables the periodic scheduler
	ChunkSize        int    `yaml:"chunk_size"`        // bulk indexing batch size
}

type ElasticsearchConfig struct {
	Addresses    []string `yaml:"addresses"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password"`
	APIKey       string   `yaml:"api_key"`
	MetricsIndex string   `yaml:"metrics_index"`
	AlertsIndex  string   `yaml:"alerts_index"`
}

type AlertingConfig struct {
	RulesPath string `yaml:"rules_path"`
}

type AIConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`   // Ollama base URL
	Model          string `yaml:"model"` // e.g. llama3.2
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&config)

	return &config, nil
}

// Load builds configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:     getEnv("HOST", "0.0.0.0"),
			HTTPPort: getEnvInt("HTTP_PORT", 8000),
		},
		Collector: CollectorConfig{
			Mode:             getEnv("COLLECTOR_MODE", ModeMock),
			ConnectionString: getEnv("SQL_CONNECTION_STRING", ""),
			SQLInstance:      getEnv("SQL_INSTANCE", "unknown"),
			HostName:         getEnv("HOST_NAME", "localhost"),
			SamplePath:       getEnv("SAMPLE_INPUT_PATH", "sample_inputs/sample_metrics.jsonl"),
			IntervalSeconds:  getEnvInt("COLLECTOR_INTERVAL", 0),
			ChunkSize:        getEnvInt("COLLECTOR_CHUNK_SIZE", 200),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses:    getEnvSlice("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:     getEnv("ES_USERNAME", ""),
			Password:     getEnv("ES_PASSWORD", ""),
			APIKey:       getEnv("ES_API_KEY", ""),
			MetricsIndex: getEnv("ES_INDEX_METRICS", "dbmon-metrics"),
			AlertsIndex:  getEnv("ES_INDEX_ALERTS", "dbmon-alerts"),
		},
		Alerting: AlertingConfig{
			RulesPath: getEnv("ALERT_RULES_PATH", "alerting/rules.yaml"),
		},
		AI: AIConfig{
			Enabled:        getEnvBool("USE_AI_ANALYSIS", true),
			URL:            getEnv("OLLAMA_URL", "http://localhost:11434"),
			Model:          getEnv("OLLAMA_MODEL", "llama3.2"),
			TimeoutSeconds: getEnvInt("OLLAMA_TIMEOUT", 30),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
	setDefaults(cfg)
	return cfg
}

func setDefaults(config *Config) {
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Server.HTTPPort == 0 {
		config.Server.HTTPPort = 8000
	}
	if config.Collector.Mode == "" {
		config.Collector.Mode = ModeMock
	}
	if config.Collector.SQLInstance == "" {
		config.Collector.SQLInstance = "unknown"
	}
	if config.Collector.HostName == "" {
		config.Collector.HostName = "localhost"
	}
	if config.Collector.SamplePath == "" {
		config.Collector.SamplePath = "sample_inputs/sample_metrics.jsonl"
	}
	if config.Collector.ChunkSize == 0 {
		config.Collector.ChunkSize = 200
	}
	if len(config.Elasticsearch.Addresses) == 0 {
		config.Elasticsearch.Addresses = []string{"http://localhost:9200"}
	}
	if config.Elasticsearch.MetricsIndex == "" {
		config.Elasticsearch.MetricsIndex = "dbmon-metrics"
	}
	if config.Elasticsearch.AlertsIndex == "" {
		config.Elasticsearch.AlertsIndex = "dbmon-alerts"
	}
	if config.Alerting.RulesPath == "" {
		config.Alerting.RulesPath = "alerting/rules.yaml"
	}
	if config.AI.URL == "" {
		config.AI.URL = "http://localhost:11434"
	}
	if config.AI.Model == "" {
		config.AI.Model = "llama3.2"
	}
	if config.AI.TimeoutSeconds == 0 {
		config.AI.TimeoutSeconds = 30
	}
	if config.Logger.Level == "" {
		config.Logger.Level = "info"
	}
	if config.Logger.Output == "" {
		config.Logger.Output = "stdout"
	}
}

// Validate checks the configuration for obvious mistakes before startup.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	switch c.Collector.Mode {
	case ModeMock, ModeLive:
	default:
		return fmt.Errorf("invalid collector mode: %s", c.Collector.Mode)
	}
	if c.Collector.Mode == ModeLive && c.Collector.ConnectionString == "" {
		return fmt.Errorf("connection_string is required in live mode")
	}
	if c.Collector.IntervalSeconds < 0 {
		return fmt.Errorf("collector interval cannot be negative")
	}
	if c.Collector.ChunkSize < 1 {
		return fmt.Errorf("collector chunk size must be at least 1")
	}

	if len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch addresses cannot be empty")
	}
	if c.Elasticsearch.MetricsIndex == "" || c.Elasticsearch.AlertsIndex == "" {
		return fmt.Errorf("elasticsearch index names cannot be empty")
	}

	if c.AI.Enabled && c.AI.URL == "" {
		return fmt.Errorf("ai url cannot be empty when ai is enabled")
	}
	if c.AI.TimeoutSeconds < 1 {
		return fmt.Errorf("ai timeout must be at least 1 second")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		var result []string
		for _, part := range strings.Split(val, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
