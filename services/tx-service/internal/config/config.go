package config

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/chain"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/command"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/custodial"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/infrastructure/backend"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/infrastructure/events"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/reconcile"
	"github.com/soundchain/marketplace-gateway/services/tx-service/internal/walletconnect"
	sharedconfig "github.com/soundchain/marketplace-gateway/shared/config"
	"github.com/soundchain/marketplace-gateway/shared/messaging"
	"github.com/soundchain/marketplace-gateway/shared/postgres"
	"github.com/soundchain/marketplace-gateway/shared/redis"
)

// Config adapts the global configuration into the component configs the
// transaction service wires together.
type Config struct {
	Global *sharedconfig.GlobalConfig
}

func Load() (*Config, error) {
	global, err := sharedconfig.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &Config{Global: global}, nil
}

func (c *Config) Postgres() postgres.PostgresConfig {
	db := c.Global.Database
	return postgres.PostgresConfig{
		PostgresHost:     db.PostgresHost,
		PostgresPort:     db.PostgresPort,
		PostgresUser:     db.PostgresUser,
		PostgresPassword: db.PostgresPassword,
		PostgresDatabase: db.PostgresDatabase,
		PostgresSSLMode:  db.PostgresSSLMode,
		MaxConnections:   db.MaxConnections,
		MaxIdleConns:     db.MaxIdleConns,
		ConnMaxLifetime:  db.ConnMaxLifetime,
		ConnMaxIdleTime:  db.ConnMaxIdleTime,
	}
}

func (c *Config) DatabaseURL() string {
	db := c.Global.Database
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.PostgresUser, db.PostgresPassword, db.PostgresHost, db.PostgresPort,
		db.PostgresDatabase, db.PostgresSSLMode)
}

func (c *Config) Redis() redis.RedisConfig {
	cache := c.Global.Cache
	return redis.RedisConfig{
		RedisHost:     cache.RedisHost,
		RedisPort:     cache.RedisPort,
		RedisPassword: cache.RedisPassword,
		RedisDB:       cache.RedisDB,
		PoolSize:      cache.PoolSize,
		MinIdleConns:  cache.MinIdleConns,
		DialTimeout:   cache.DialTimeout,
		ReadTimeout:   cache.ReadTimeout,
		WriteTimeout:  cache.WriteTimeout,
	}
}

func (c *Config) RabbitMQ() messaging.RabbitMQConfig {
	mq := c.Global.Messaging
	return messaging.RabbitMQConfig{
		RabbitMQHost:     mq.RabbitMQHost,
		RabbitMQPort:     mq.RabbitMQPort,
		RabbitMQUser:     mq.RabbitMQUser,
		RabbitMQPassword: mq.RabbitMQPassword,
		RabbitMQVHost:    mq.RabbitMQVHost,
		RabbitMQExchange: mq.Exchange,
	}
}

func (c *Config) Events() events.Config {
	return events.Config{
		RetryAttempts: c.Global.Messaging.RetryAttempts,
		RetryDelay:    c.Global.Messaging.RetryDelay,
	}
}

func (c *Config) Chain() chain.ClientConfig {
	bc := c.Global.Blockchain
	return chain.ClientConfig{
		RPCURL:         bc.RPCURL,
		RPCTimeout:     bc.RPCTimeout,
		ReceiptTimeout: bc.ReceiptTimeout,
		TokenAddress:   common.HexToAddress(bc.Contracts.Token),
	}
}

func (c *Config) AddressBook() command.AddressBook {
	contracts := c.Global.Blockchain.Contracts
	return command.AddressBook{
		Marketplace: common.HexToAddress(contracts.Marketplace),
		Auction:     common.HexToAddress(contracts.Auction),
		Editions:    common.HexToAddress(contracts.Editions),
		Token:       common.HexToAddress(contracts.Token),
		MerkleDrop:  common.HexToAddress(contracts.MerkleDrop),
	}
}

func (c *Config) Gas() command.GasConfig {
	bc := c.Global.Blockchain
	fallback, _ := new(big.Int).SetString(bc.FallbackGasPrice, 10)
	return command.GasConfig{
		Limit:         bc.GasLimit,
		Multiplier:    bc.GasPriceMultiplier,
		FallbackPrice: fallback,
	}
}

func (c *Config) Reconcile() reconcile.Config {
	return reconcile.Config{
		PollInterval: c.Global.Blockchain.PollInterval,
		RefetchRPS:   c.Global.Backend.RefetchRPS,
		RefetchBurst: c.Global.Backend.RefetchBurst,
	}
}

func (c *Config) Backend() backend.Config {
	return backend.Config{
		GraphQLURL:     c.Global.Backend.URL,
		APIKey:         c.Global.Backend.APIKey,
		RequestTimeout: c.Global.Backend.RequestTimeout,
	}
}

func (c *Config) Custodial() custodial.Config {
	cu := c.Global.Custodial
	return custodial.Config{
		BaseURL:        cu.APIURL,
		APIKey:         cu.APIKey,
		SessionSecret:  cu.SessionSecret,
		RequestTimeout: cu.RequestTimeout,
	}
}

func (c *Config) WalletConnect() walletconnect.Config {
	wc := c.Global.WalletConnect
	return walletconnect.Config{
		RelayURL:       wc.RelayURL,
		DialTimeout:    wc.DialTimeout,
		RequestTimeout: wc.SessionTimeout,
	}
}
