package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// GlobalConfig holds all configuration values
type GlobalConfig struct {
	// Service Info
	ServiceName    string `json:"service_name"`
	ServiceVersion string `json:"service_version"`
	Environment    string `json:"environment"`

	// Database
	Database DatabaseConfig `json:"database"`

	// Cache
	Cache CacheConfig `json:"cache"`

	// Messaging
	Messaging MessagingConfig `json:"messaging"`

	// Blockchain
	Blockchain BlockchainConfig `json:"blockchain"`

	// Backend
	Backend BackendConfig `json:"backend"`

	// Custodial
	Custodial CustodialConfig `json:"custodial"`

	// WalletConnect
	WalletConnect WalletConnectConfig `json:"walletconnect"`

	// Monitoring
	Monitoring MonitoringConfig `json:"monitoring"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	PostgresHost     string        `json:"postgres_host"`
	PostgresPort     int           `json:"postgres_port"`
	PostgresUser     string        `json:"postgres_user"`
	PostgresPassword string        `json:"-"`
	PostgresDatabase string        `json:"postgres_database"`
	PostgresSSLMode  string        `json:"postgres_ssl_mode"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleConns     int           `json:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `json:"conn_max_idle_time"`
}

// CacheConfig holds cache settings
type CacheConfig struct {
	RedisHost     string        `json:"redis_host"`
	RedisPort     int           `json:"redis_port"`
	RedisPassword string        `json:"-"`
	RedisDB       int           `json:"redis_db"`
	DefaultTTL    time.Duration `json:"default_ttl"`
	StatusTTL     time.Duration `json:"status_ttl"`
	MaxRetries    int           `json:"max_retries"`
	PoolSize      int           `json:"pool_size"`
	MinIdleConns  int           `json:"min_idle_conns"`
	DialTimeout   time.Duration `json:"dial_timeout"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
}

// MessagingConfig holds messaging settings
type MessagingConfig struct {
	RabbitMQHost     string        `json:"rabbitmq_host"`
	RabbitMQPort     int           `json:"rabbitmq_port"`
	RabbitMQUser     string        `json:"rabbitmq_user"`
	RabbitMQPassword string        `json:"-"`
	RabbitMQVHost    string        `json:"rabbitmq_vhost"`
	Exchange         string        `json:"exchange"`
	RetryAttempts    int           `json:"retry_attempts"`
	RetryDelay       time.Duration `json:"retry_delay"`
}

// BlockchainConfig holds chain client and transaction settings.
// GasLimit, FallbackGasPrice and GasPriceMultiplier are injected into the
// command layer; nothing below the service reads environment directly.
type BlockchainConfig struct {
	RPCURL             string        `json:"rpc_url"`
	ChainID            int64         `json:"chain_id"`
	GasLimit           uint64        `json:"gas_limit"`
	GasPriceMultiplier float64       `json:"gas_price_multiplier"`
	FallbackGasPrice   string        `json:"fallback_gas_price"`
	RPCTimeout         time.Duration `json:"rpc_timeout"`
	ReceiptTimeout     time.Duration `json:"receipt_timeout"`
	PollInterval       time.Duration `json:"poll_interval"`

	Contracts ContractsConfig `json:"contracts"`
}

// ContractsConfig holds the deployed contract addresses the gateway targets.
type ContractsConfig struct {
	Marketplace string `json:"marketplace"`
	Auction     string `json:"auction"`
	Editions    string `json:"editions"`
	Token       string `json:"token"`
	MerkleDrop  string `json:"merkle_drop"`
}

// BackendConfig holds catalog backend (GraphQL) settings
type BackendConfig struct {
	URL            string        `json:"url"`
	APIKey         string        `json:"-"`
	RequestTimeout time.Duration `json:"request_timeout"`
	RefetchRPS     float64       `json:"refetch_rps"`
	RefetchBurst   int           `json:"refetch_burst"`
}

// CustodialConfig holds email-link wallet session settings
type CustodialConfig struct {
	APIURL         string        `json:"api_url"`
	APIKey         string        `json:"-"`
	SessionSecret  string        `json:"-"`
	SessionTTL     time.Duration `json:"session_ttl"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

// WalletConnectConfig holds relay session settings
type WalletConnectConfig struct {
	RelayURL       string        `json:"relay_url"`
	ProjectID      string        `json:"-"`
	DialTimeout    time.Duration `json:"dial_timeout"`
	SessionTimeout time.Duration `json:"session_timeout"`
}

// MonitoringConfig holds monitoring settings
type MonitoringConfig struct {
	SentryDSN       string  `json:"-"`
	SentryEnv       string  `json:"sentry_env"`
	TracingSampling float64 `json:"tracing_sampling"`
	MetricsPath     string  `json:"metrics_path"`
	MetricsPort     int     `json:"metrics_port"`
	LogLevel        string  `json:"log_level"`
	LogFormat       string  `json:"log_format"`
}

// LoadConfig loads configuration from environment and files
func LoadConfig() (*GlobalConfig, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	config := &GlobalConfig{
		ServiceName:    getEnvString("SERVICE_NAME", "tx-service"),
		ServiceVersion: getEnvString("SERVICE_VERSION", "unknown"),
		Environment:    getEnvString("ENVIRONMENT", "development"),

		Database: DatabaseConfig{
			PostgresHost:     getEnvString("POSTGRES_HOST", "localhost"),
			PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
			PostgresUser:     getEnvString("POSTGRES_USER", "postgres"),
			PostgresPassword: getEnvString("POSTGRES_PASSWORD", ""),
			PostgresDatabase: getEnvString("POSTGRES_DATABASE", "soundchain_gateway"),
			PostgresSSLMode:  getEnvString("POSTGRES_SSL_MODE", "disable"),
			MaxConnections:   getEnvInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:  getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},

		Cache: CacheConfig{
			RedisHost:     getEnvString("REDIS_HOST", "localhost"),
			RedisPort:     getEnvInt("REDIS_PORT", 6379),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			DefaultTTL:    getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
			StatusTTL:     getEnvDuration("CACHE_STATUS_TTL", 15*time.Minute),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},

		Messaging: MessagingConfig{
			RabbitMQHost:     getEnvString("RABBITMQ_HOST", "localhost"),
			RabbitMQPort:     getEnvInt("RABBITMQ_PORT", 5672),
			RabbitMQUser:     getEnvString("RABBITMQ_USER", "guest"),
			RabbitMQPassword: getEnvString("RABBITMQ_PASSWORD", "guest"),
			RabbitMQVHost:    getEnvString("RABBITMQ_VHOST", "/"),
			Exchange:         getEnvString("RABBITMQ_EXCHANGE", "soundchain.transactions"),
			RetryAttempts:    getEnvInt("MQ_RETRY_ATTEMPTS", 3),
			RetryDelay:       getEnvDuration("MQ_RETRY_DELAY", 1*time.Second),
		},

		Blockchain: BlockchainConfig{
			RPCURL:             getEnvString("CHAIN_RPC_URL", "https://polygon-rpc.com"),
			ChainID:            getEnvInt64("CHAIN_ID", 137),
			GasLimit:           uint64(getEnvInt64("GAS_LIMIT", 1200000)),
			GasPriceMultiplier: getEnvFloat("GAS_PRICE_MULTIPLIER", 1.5),
			FallbackGasPrice:   getEnvString("FALLBACK_GAS_PRICE", "300000000000"), // 300 Gwei
			RPCTimeout:         getEnvDuration("RPC_TIMEOUT", 30*time.Second),
			ReceiptTimeout:     getEnvDuration("RECEIPT_TIMEOUT", 5*time.Minute),
			PollInterval:       getEnvDuration("POLL_INTERVAL", 10*time.Second),
			Contracts: ContractsConfig{
				Marketplace: getEnvString("MARKETPLACE_ADDRESS", ""),
				Auction:     getEnvString("AUCTION_ADDRESS", ""),
				Editions:    getEnvString("EDITIONS_ADDRESS", ""),
				Token:       getEnvString("TOKEN_ADDRESS", ""),
				MerkleDrop:  getEnvString("MERKLE_DROP_ADDRESS", ""),
			},
		},

		Backend: BackendConfig{
			URL:            getEnvString("BACKEND_GRAPHQL_URL", "http://localhost:4000/graphql"),
			APIKey:         getEnvString("BACKEND_API_KEY", ""),
			RequestTimeout: getEnvDuration("BACKEND_REQUEST_TIMEOUT", 15*time.Second),
			RefetchRPS:     getEnvFloat("BACKEND_REFETCH_RPS", 2),
			RefetchBurst:   getEnvInt("BACKEND_REFETCH_BURST", 6),
		},

		Custodial: CustodialConfig{
			APIURL:         getEnvString("CUSTODIAL_API_URL", ""),
			APIKey:         getEnvString("CUSTODIAL_API_KEY", ""),
			SessionSecret:  getEnvString("CUSTODIAL_SESSION_SECRET", ""),
			SessionTTL:     getEnvDuration("CUSTODIAL_SESSION_TTL", 1*time.Hour),
			RequestTimeout: getEnvDuration("CUSTODIAL_REQUEST_TIMEOUT", 15*time.Second),
		},

		WalletConnect: WalletConnectConfig{
			RelayURL:       getEnvString("WALLETCONNECT_RELAY_URL", "wss://relay.walletconnect.com"),
			ProjectID:      getEnvString("WALLETCONNECT_PROJECT_ID", ""),
			DialTimeout:    getEnvDuration("WALLETCONNECT_DIAL_TIMEOUT", 10*time.Second),
			SessionTimeout: getEnvDuration("WALLETCONNECT_SESSION_TIMEOUT", 5*time.Minute),
		},

		Monitoring: MonitoringConfig{
			SentryDSN:       getEnvString("SENTRY_DSN", ""),
			SentryEnv:       getEnvString("SENTRY_ENVIRONMENT", "development"),
			TracingSampling: getEnvFloat("TRACING_SAMPLING", 0.1),
			MetricsPath:     getEnvString("METRICS_PATH", "/metrics"),
			MetricsPort:     getEnvInt("METRICS_PORT", 9090),
			LogLevel:        getEnvString("LOG_LEVEL", "info"),
			LogFormat:       getEnvString("LOG_FORMAT", "json"),
		},
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *GlobalConfig) Validate() error {
	if c.Blockchain.GasLimit == 0 {
		return fmt.Errorf("GAS_LIMIT must be positive")
	}
	if c.Blockchain.GasPriceMultiplier < 1.0 {
		return fmt.Errorf("GAS_PRICE_MULTIPLIER must be >= 1.0")
	}
	if _, ok := new(big.Int).SetString(c.Blockchain.FallbackGasPrice, 10); !ok {
		return fmt.Errorf("FALLBACK_GAS_PRICE must be a base-10 integer")
	}
	if c.Database.PostgresPassword == "" && c.Environment == "production" {
		return fmt.Errorf("POSTGRES_PASSWORD is required in production")
	}
	if c.Custodial.SessionSecret == "" && c.Environment == "production" {
		return fmt.Errorf("CUSTODIAL_SESSION_SECRET is required in production")
	}
	return nil
}

// Helper functions

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// ToJSON converts config to JSON
func (c *GlobalConfig) ToJSON() (string, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
