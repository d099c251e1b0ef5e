package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	History   HistoryConfig
	Redis     RedisConfig
	Milvus    MilvusConfig
	LLM       LLMConfig
	Cache     CacheConfig
	Corrector CorrectorConfig
	ErrorLog  ErrorLogConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type DatabaseConfig struct {
	DSN            string
	MaxOpenConns   int
	MaxIdleConns   int
	QueryTimeoutMS int
}

type HistoryConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type MilvusConfig struct {
	Enabled            bool
	Endpoint           string
	SchemaCollection   string
	ExampleCollection  string
	VectorDim          int
	SchemaFragmentsTop int
	SimilarExamplesTop int
}

type LLMConfig struct {
	Model          string
	APIKey         string
	Temperature    float32
	MaxTokens      int
	TimeoutSec     int
	EmbeddingModel string
}

type CacheConfig struct {
	TTLMinutes int
	MaxEntries int
}

type CorrectorConfig struct {
	MaxAttempts int
}

type ErrorLogConfig struct {
	Dir string
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
	viper.AddConfigPath("/etc/askql")

	viper.SetEnvPrefix("ASKQL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Database.QueryTimeoutMS) * time.Millisecond
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("database.dsn", "root:root@tcp(localhost:3306)/sales?parseTime=true")
	viper.SetDefault("database.maxOpenConns", 10)
	viper.SetDefault("database.maxIdleConns", 5)
	viper.SetDefault("database.queryTimeoutMS", 10000)

	viper.SetDefault("history.path", "./data/askql.db")

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("milvus.enabled", false)
	viper.SetDefault("milvus.endpoint", "localhost:19530")
	viper.SetDefault("milvus.schemaCollection", "schema_fragments")
	viper.SetDefault("milvus.exampleCollection", "question_examples")
	viper.SetDefault("milvus.vectorDim", 1536)
	viper.SetDefault("milvus.schemaFragmentsTop", 5)
	viper.SetDefault("milvus.similarExamplesTop", 3)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 1024)
	viper.SetDefault("llm.timeoutSec", 30)
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")

	viper.SetDefault("cache.ttlMinutes", 15)
	viper.SetDefault("cache.maxEntries", 1000)

	viper.SetDefault("corrector.maxAttempts", 2)

	viper.SetDefault("errorlog.dir", "./logs")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
