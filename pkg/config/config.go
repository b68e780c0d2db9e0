package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	Neo4j     Neo4jConfig
	LLM       LLMConfig
	Search    SearchConfig
	Dispatch  DispatchConfig
	Analytics AnalyticsConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	CORSOrigins  string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// MilvusConfig selects the remote index backend. With an empty endpoint the
// process falls back to the sqlite-persisted in-process index.
type MilvusConfig struct {
	Endpoint       string
	CollectionName string
}

type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

type LLMConfig struct {
	APIKey         string
	ClassifyModel  string
	HelpModel      string
	EmbeddingModel string
	EmbeddingDim   int
	TimeoutSec     int
}

// SearchConfig carries the score thresholds per call site. The navigation
// endpoint and the dispatcher deliberately use different defaults.
type SearchConfig struct {
	DefaultLimit      int
	SemanticThreshold float64
	FuzzyCutoff       float64
}

type DispatchConfig struct {
	ClassifyTimeoutSec int
	HelpTimeoutSec     int
}

type AnalyticsConfig struct {
	Workers   int
	QueueSize int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/flowvana")

	viper.SetEnvPrefix("FLOWVANA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)
	viper.SetDefault("server.corsOrigins", "*")

	viper.SetDefault("sqlite.path", "./data/flowvana.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.endpoint", "")
	viper.SetDefault("milvus.collectionName", "navigation_phrases")

	viper.SetDefault("neo4j.uri", "")
	viper.SetDefault("neo4j.username", "neo4j")
	viper.SetDefault("neo4j.database", "neo4j")

	viper.SetDefault("llm.classifyModel", "gpt-5-nano")
	viper.SetDefault("llm.helpModel", "gpt-5-mini")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.embeddingDim", 1536)
	viper.SetDefault("llm.timeoutSec", 30)

	viper.SetDefault("search.defaultLimit", 4)
	viper.SetDefault("search.semanticThreshold", 0.0)
	viper.SetDefault("search.fuzzyCutoff", 60.0)

	viper.SetDefault("dispatch.classifyTimeoutSec", 20)
	viper.SetDefault("dispatch.helpTimeoutSec", 30)

	viper.SetDefault("analytics.workers", 4)
	viper.SetDefault("analytics.queueSize", 256)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
