package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Milvus    MilvusConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	Neo4j     Neo4jConfig
	Documents DocumentsConfig
	Query     QueryConfig
	Chunking  ChunkingConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins string
	Development    bool
}

type LLMConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	EmbeddingModel  string
	EmbeddingDim    int
	JSONTemperature float32
	TextTemperature float32
	TimeoutSec      int
}

type MilvusConfig struct {
	Endpoint    string
	APIKey      string
	Collections []string
	VectorDim   int
	NProbe      int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled           bool
	Host              string
	Port              int
	Password          string
	DB                int
	EmbeddingTTLHours int
}

type Neo4jConfig struct {
	Enabled  bool
	URI      string
	Username string
	Password string
	Database string
}

// DocumentsConfig locates source files on disk. A file lives at
// <Root>/<collection>-<collectionID>/<sourceID>-<filename>.
type DocumentsConfig struct {
	Root string
}

type QueryConfig struct {
	K               int
	Scope           int
	MultiScope      int
	Concurrency     int
	Attempts        int
	MaxPromptLength int
}

// ChunkingConfig holds token budgets for every split the pipeline makes.
type ChunkingConfig struct {
	ResearchTokens      int
	ResearchOverlap     int
	SectionCoarseTokens int
	SectionFineTokens   int
	SectionOverlap      int
	EmbedTokens         int
	EmbedOverlap        int
	SentenceAware       bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// Load reads .env (if any), then config.yaml from the usual search paths,
// then LEGAL_RAG_* environment overrides.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/legal-rag")
	}

	v.SetEnvPrefix("LEGAL_RAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects budgets the chunker cannot honour.
func (c *Config) Validate() error {
	pairs := []struct {
		name         string
		max, overlap int
	}{
		{"research", c.Chunking.ResearchTokens, c.Chunking.ResearchOverlap},
		{"sectionCoarse", c.Chunking.SectionCoarseTokens, c.Chunking.SectionOverlap},
		{"sectionFine", c.Chunking.SectionFineTokens, c.Chunking.SectionOverlap},
		{"embed", c.Chunking.EmbedTokens, c.Chunking.EmbedOverlap},
	}
	for _, p := range pairs {
		if p.max <= 0 {
			return fmt.Errorf("chunking.%sTokens must be positive", p.name)
		}
		if p.overlap < 0 || p.overlap >= p.max {
			return fmt.Errorf("chunking.%s overlap %d must be in [0,%d)", p.name, p.overlap, p.max)
		}
	}
	if c.Query.K <= 0 || c.Query.Scope <= 0 || c.Query.MultiScope <= 0 {
		return fmt.Errorf("query.k, query.scope and query.multiScope must be positive")
	}
	if len(c.Milvus.Collections) == 0 {
		return fmt.Errorf("milvus.collections must name at least one collection")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 120)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", "*")
	v.SetDefault("server.development", false)

	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	v.SetDefault("llm.embeddingDim", 1536)
	v.SetDefault("llm.jsonTemperature", 0.4)
	v.SetDefault("llm.textTemperature", 0.5)
	v.SetDefault("llm.timeoutSec", 120)

	v.SetDefault("milvus.endpoint", "localhost:19530")
	v.SetDefault("milvus.collections", []string{"rulings", "legislation"})
	v.SetDefault("milvus.vectorDim", 1536)
	v.SetDefault("milvus.nprobe", 16)

	v.SetDefault("sqlite.path", "./data/legalrag.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.embeddingTTLHours", 720)

	v.SetDefault("neo4j.enabled", false)
	v.SetDefault("neo4j.uri", "bolt://localhost:7687")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "password")
	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("documents.root", "../temp")

	v.SetDefault("query.k", 3)
	v.SetDefault("query.scope", 3)
	v.SetDefault("query.multiScope", 5)
	v.SetDefault("query.concurrency", 4)
	v.SetDefault("query.attempts", 1)
	v.SetDefault("query.maxPromptLength", 8000)

	v.SetDefault("chunking.researchTokens", 125000)
	v.SetDefault("chunking.researchOverlap", 200)
	v.SetDefault("chunking.sectionCoarseTokens", 4000)
	v.SetDefault("chunking.sectionFineTokens", 1500)
	v.SetDefault("chunking.sectionOverlap", 200)
	v.SetDefault("chunking.embedTokens", 500)
	v.SetDefault("chunking.embedOverlap", 150)
	v.SetDefault("chunking.sentenceAware", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
