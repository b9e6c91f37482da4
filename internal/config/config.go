package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

const (
	EnvGeminiAPIKey = "GOOGLE_AI_GEMINI_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"

	EnvOpenRouterAPIKey = "OPENROUTER_API_KEY"
)

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// reservedWords are the postgres keywords that cannot name a table unquoted.
var reservedWords = func() map[string]struct{} {
	words := []string{
		"all", "analyse", "analyze", "and", "any", "array", "as", "asc", "asymmetric",
		"authorization", "binary", "both", "case", "cast", "check", "collate", "collation",
		"column", "concurrently", "constraint", "create", "cross", "current_catalog",
		"current_date", "current_role", "current_schema", "current_time", "current_timestamp",
		"current_user", "default", "deferrable", "desc", "distinct", "do", "else", "end",
		"except", "false", "fetch", "for", "foreign", "freeze", "from", "full", "grant",
		"group", "having", "ilike", "in", "initially", "inner", "intersect", "into", "is",
		"isnull", "join", "lateral", "leading", "left", "like", "limit", "localtime",
		"localtimestamp", "natural", "not", "notnull", "null", "offset", "on", "only", "or",
		"order", "outer", "overlaps", "placing", "primary", "references", "returning", "right",
		"select", "session_user", "similar", "some", "symmetric", "system_user", "table",
		"tablesample", "then", "to", "trailing", "true", "union", "unique", "user", "using",
		"variadic", "verbose", "when", "where", "window", "with",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

func isReservedWord(name string) bool {
	_, ok := reservedWords[strings.ToLower(name)]
	return ok
}

type Config struct {
	LogConfig   logger.LogConfig  `json:"log_config"`
	Database    DatabaseConfig    `json:"database"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	Loader      LoaderConfig      `json:"loader"`
	Segmenter   SegmenterConfig   `json:"segmenter"`
	Embedder    EmbedderConfig    `json:"embedder"`
	Chat        ChatConfig        `json:"chat"`
	Retry       RetryConfig       `json:"retry"`
	Server      ServerConfig      `json:"server"`
	Schedule    ScheduleConfig    `json:"schedule"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
	MaxConns int    `json:"max_conns"`
}

type VectorStoreConfig struct {
	Table     string `json:"table"`
	Dimension int    `json:"dimension"`
}

type LoaderConfig struct {
	Extensions []string `json:"extensions"`
	S3         S3Config `json:"s3"`
}

type S3Config struct {
	Endpoint       string `json:"endpoint"`
	Region         string `json:"region"`
	SecretID       string `json:"secret_id"`
	SecretKey      string `json:"secret_key"`
	ForcePathStyle bool   `json:"force_path_style"`
}

type SegmenterConfig struct {
	MaxSize int `json:"max_size"`
	Overlap int `json:"overlap"`
}

type EmbedderConfig struct {
	Provider        string      `json:"provider"`
	Model           string      `json:"model"`
	BatchSize       int         `json:"batch_size"`
	Concurrency     int         `json:"concurrency"`
	CacheSize       int         `json:"cache_size"`
	CacheTTLSeconds int         `json:"cache_ttl_seconds"`
	DBCache         bool        `json:"db_cache"`
	Data            interface{} `json:"data"`
}

type ChatConfig struct {
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
	Subject        string      `json:"subject"`
	MaxResults     int         `json:"max_results"`
	MinScore       float64     `json:"min_score"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	Data           interface{} `json:"data"`
	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks []ChatProviderConfig `json:"fallbacks"`
}

type ChatProviderConfig struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type RetryConfig struct {
	MaxAttempts       int `json:"max_attempts"`
	InitialIntervalMs int `json:"initial_interval_ms"`
	MaxIntervalMs     int `json:"max_interval_ms"`
	TimeoutSeconds    int `json:"timeout_seconds"`
}

type ServerConfig struct {
	Port                 int      `json:"port"`
	CORSOrigins          []string `json:"cors_origins"`
	ChatRateLimitSeconds int      `json:"chat_rate_limit_seconds"`
	IngestRoots          []string `json:"ingest_roots"`
}

type ScheduleConfig struct {
	ReingestSpec     string   `json:"reingest_spec"`
	ReingestPaths    []string `json:"reingest_paths"`
	CacheCleanupSpec string   `json:"cache_cleanup_spec"`
	CacheMaxAgeDays  int      `json:"cache_max_age_days"`
}

// Load reads the config file (json or yaml by extension), applies environment
// overrides and defaults, then validates. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, err
		}
	}
	ApplyEnv(cfg)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		// yaml is normalised through json so the json tags stay the only schema.
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		js, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
		data = js
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DOCRAG_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DOCRAG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DOCRAG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DOCRAG_DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("DOCRAG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DOCRAG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DOCRAG_TABLE"); v != "" {
		cfg.VectorStore.Table = v
	}
	if v := os.Getenv("DOCRAG_LOG_LEVEL"); v != "" {
		cfg.LogConfig.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.File == "" {
		cfg.LogConfig.Console = true
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.DBName == "" && cfg.Database.DSN == "" {
		cfg.Database.DBName = "docrag"
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 4
	}
	if cfg.VectorStore.Table == "" {
		cfg.VectorStore.Table = "documents"
	}
	if cfg.VectorStore.Dimension == 0 {
		cfg.VectorStore.Dimension = 384
	}
	if len(cfg.Loader.Extensions) == 0 {
		cfg.Loader.Extensions = []string{".md", ".txt"}
	}
	if cfg.Loader.S3.Region == "" {
		cfg.Loader.S3.Region = "us-east-1"
	}
	if cfg.Segmenter.MaxSize == 0 {
		cfg.Segmenter.MaxSize = 512
	}
	if cfg.Segmenter.Overlap == 0 {
		cfg.Segmenter.Overlap = 100
	}
	if cfg.Embedder.Provider == "" {
		cfg.Embedder.Provider = "local"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 4
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 4096
	}
	if cfg.Embedder.CacheTTLSeconds == 0 {
		cfg.Embedder.CacheTTLSeconds = 3600
	}
	if cfg.Chat.Provider == "" {
		cfg.Chat.Provider = "gemini"
	}
	if cfg.Embedder.Model == "" {
		cfg.Embedder.Model = defaultEmbedModel(cfg.Embedder.Provider)
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = DefaultChatModel(cfg.Chat.Provider)
	}
	for i := range cfg.Chat.Fallbacks {
		if cfg.Chat.Fallbacks[i].Model == "" {
			cfg.Chat.Fallbacks[i].Model = DefaultChatModel(cfg.Chat.Fallbacks[i].Provider)
		}
	}
	if cfg.Chat.Subject == "" {
		cfg.Chat.Subject = "the documentation indexed by docrag"
	}
	if cfg.Chat.MaxResults == 0 {
		cfg.Chat.MaxResults = 5
	}
	if cfg.Chat.MinScore == 0 {
		cfg.Chat.MinScore = 0.6
	}
	if cfg.Chat.TimeoutSeconds == 0 {
		cfg.Chat.TimeoutSeconds = 60
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialIntervalMs == 0 {
		cfg.Retry.InitialIntervalMs = 500
	}
	if cfg.Retry.MaxIntervalMs == 0 {
		cfg.Retry.MaxIntervalMs = 5000
	}
	if cfg.Retry.TimeoutSeconds == 0 {
		cfg.Retry.TimeoutSeconds = 30
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Schedule.CacheCleanupSpec == "" {
		cfg.Schedule.CacheCleanupSpec = "0 3 * * *"
	}
	if cfg.Schedule.CacheMaxAgeDays == 0 {
		cfg.Schedule.CacheMaxAgeDays = 30
	}
}

func DefaultChatModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini":
		return "gemini-2.0-flash"
	case "openai":
		return "gpt-4o-mini"
	case "openrouter":
		return "openai/gpt-4o-mini"
	}
	return ""
}

func defaultEmbedModel(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini":
		return "gemini-embedding-001"
	case "openai":
		return "text-embedding-3-small"
	}
	return ""
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" && c.Database.DBName == "" {
		return fmt.Errorf("database.dbname or database.dsn is required")
	}
	if !tableNameRegex.MatchString(c.VectorStore.Table) {
		return fmt.Errorf("vector_store.table %q is not a valid identifier", c.VectorStore.Table)
	}
	if isReservedWord(c.VectorStore.Table) {
		return fmt.Errorf("vector_store.table %q is a reserved sql keyword", c.VectorStore.Table)
	}
	if c.VectorStore.Dimension <= 0 || c.VectorStore.Dimension > 16000 {
		return fmt.Errorf("vector_store.dimension must be 1-16000, got %d", c.VectorStore.Dimension)
	}
	if c.Segmenter.MaxSize <= 0 {
		return fmt.Errorf("segmenter.max_size must be positive, got %d", c.Segmenter.MaxSize)
	}
	if c.Segmenter.Overlap < 0 || c.Segmenter.Overlap >= c.Segmenter.MaxSize {
		return fmt.Errorf("segmenter.overlap must be in [0, max_size), got %d", c.Segmenter.Overlap)
	}
	if c.Chat.MinScore < 0 || c.Chat.MinScore > 1 {
		return fmt.Errorf("chat.min_score must be 0-1, got %f", c.Chat.MinScore)
	}
	if c.Chat.MaxResults <= 0 {
		return fmt.Errorf("chat.max_results must be positive, got %d", c.Chat.MaxResults)
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be 1-10, got %d", c.Retry.MaxAttempts)
	}
	for _, ext := range c.Loader.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("loader.extensions entries must start with '.', got %q", ext)
		}
	}
	return nil
}

// ProviderArgs returns the json-decodable args for an ai provider factory. The
// api key falls back to the provider's environment variable.
func ProviderArgs(provider string, data interface{}) interface{} {
	args := map[string]interface{}{}
	if m, ok := data.(map[string]interface{}); ok {
		for k, v := range m {
			args[k] = v
		}
	} else if data != nil {
		return data
	}
	if key, _ := args["api_key"].(string); key != "" {
		return args
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gemini":
		args["api_key"] = os.Getenv(EnvGeminiAPIKey)
	case "openai":
		args["api_key"] = os.Getenv(EnvOpenAIAPIKey)
	case "openrouter":
		args["api_key"] = os.Getenv(EnvOpenRouterAPIKey)
	}
	return args
}
