package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings (serve mode only)
	Server ServerConfig `json:"server"`

	// Tier determines default backing services
	Tier Tier `json:"tier"`

	// Pipeline step settings
	Pipeline PipelineConfig `json:"pipeline"`

	// Risk scoring settings
	Risk RiskConfig `json:"risk"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Observability
	Logging LoggingConfig `json:"logging"`
}

// PipelineConfig controls the batch pipeline steps.
type PipelineConfig struct {
	// Synthetic feed settings
	Records    int     `json:"records"`
	Accounts   int     `json:"accounts"`
	FraudRatio float64 `json:"fraudRatio"`
	Seed       int64   `json:"seed"` // 0 means time-seeded

	// File locations
	CSVPath    string `json:"csvPath"`
	ExportPath string `json:"exportPath"`
	ReportDir  string `json:"reportDir"`

	// TopN is the size of the high-risk transaction listing.
	TopN int `json:"topN"`
}

// RiskConfig holds the tunable thresholds of the rule engine. Defaults
// are the reference values; changing them changes scoring semantics.
type RiskConfig struct {
	// StddevMultiplier is the sigma multiplier for the high-amount and
	// account-velocity rules (threshold = mean + multiplier*stddev).
	StddevMultiplier float64 `json:"stddevMultiplier"`

	// Odd-hours window, inclusive UTC hours.
	OddHourStart int `json:"oddHourStart"`
	OddHourEnd   int `json:"oddHourEnd"`

	// Rapid-succession settings: gap below RapidWindow between two
	// same-account transactions makes a close pair; an account with at
	// least MinBurst transactions participating in close pairs is
	// high-frequency.
	RapidWindow time.Duration `json:"rapidWindow"`
	MinBurst    int           `json:"minBurst"`

	// MerchantSupport is the minimum dataset-wide occurrence count for
	// a merchant category to be considered popular.
	MerchantSupport int `json:"merchantSupport"`

	// Rule weights and classification thresholds.
	Rules      []RiskRule      `json:"rules"`
	Thresholds LevelThresholds `json:"thresholds"`

	// MaxWorkers bounds parallel row scoring.
	MaxWorkers int `json:"maxWorkers"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite, in-process cache and channel bus.
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL, Redis and NATS.
	TierPro Tier = "pro"
)

// DefaultConfig returns the Community tier configuration with the
// reference scoring thresholds.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Pipeline: PipelineConfig{
			Records:    1000,
			Accounts:   100,
			FraudRatio: 0.05,
			CSVPath:    "./data/transactions.csv",
			ExportPath: "./data/risk_assessment_results.csv",
			ReportDir:  "./outputs",
			TopN:       10,
		},
		Risk: DefaultRiskConfig(),
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultRiskConfig returns the reference rule weights and thresholds.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		StddevMultiplier: 2.0,
		OddHourStart:     1,
		OddHourEnd:       5,
		RapidWindow:      10 * time.Minute,
		MinBurst:         3,
		MerchantSupport:  10,
		Rules:            DefaultRules(),
		Thresholds:       DefaultThresholds(),
		MaxWorkers:       8,
	}
}

// ProConfig returns a configuration for the Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	return cfg
}
