package config

import (
	"errors"
	"fmt"
	"time"

	"BasketLedger/internal/fee"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the complete basketd configuration.
type Config struct {
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	NATS        NATSConfig        `mapstructure:"nats"`
	GRPC        ListenConfig      `mapstructure:"grpc"`
	HTTP        ListenConfig      `mapstructure:"http"`
	Metrics     ListenConfig      `mapstructure:"metrics"`
	Persist     PersistConfig     `mapstructure:"persist"`
	Publish     PublishConfig     `mapstructure:"publish"`
	Checkpoint  CheckpointConfig  `mapstructure:"checkpoint"`
	Projection  ProjectionConfig  `mapstructure:"projection"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Migrations  MigrationsConfig  `mapstructure:"migrations"`
	Log         LogConfig         `mapstructure:"log"`
	Currency    CurrencyConfig    `mapstructure:"currency"`
	Factory     FactoryConfig     `mapstructure:"factory"`
	Escrow      EscrowConfig      `mapstructure:"escrow"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type NATSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Consumer string `mapstructure:"consumer"`
}

type ListenConfig struct {
	Addr string `mapstructure:"addr"`
}

type PersistConfig struct {
	ChanSize     int           `mapstructure:"chan_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

type PublishConfig struct {
	ChanSize int `mapstructure:"chan_size"`
}

// CheckpointConfig sets how often the engine emits a balance checkpoint
// into the log. Zero disables checkpoints.
type CheckpointConfig struct {
	Interval int64 `mapstructure:"interval"`
}

type ProjectionConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int64         `mapstructure:"batch_size"`
}

type IdempotencyConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type MigrationsConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type CurrencyConfig struct {
	Address  string `mapstructure:"address"`
	Symbol   string `mapstructure:"symbol"`
	Decimals uint8  `mapstructure:"decimals"`
	Faucet   uint64 `mapstructure:"faucet"`
}

type FactoryConfig struct {
	Address       string `mapstructure:"address"`
	Admin         string `mapstructure:"admin"`
	ProductionFee uint64 `mapstructure:"production_fee"`
	FeeRecipient  string `mapstructure:"fee_recipient"`
}

type EscrowConfig struct {
	Address           string `mapstructure:"address"`
	Admin             string `mapstructure:"admin"`
	FeeRecipient      string `mapstructure:"fee_recipient"`
	TransactionFeeBps uint64 `mapstructure:"transaction_fee_bps"`
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []error

	addresses := map[string]string{
		"currency.address":      c.Currency.Address,
		"factory.address":       c.Factory.Address,
		"factory.admin":         c.Factory.Admin,
		"factory.fee_recipient": c.Factory.FeeRecipient,
		"escrow.address":        c.Escrow.Address,
		"escrow.admin":          c.Escrow.Admin,
		"escrow.fee_recipient":  c.Escrow.FeeRecipient,
	}
	for _, key := range sortedKeys(addresses) {
		v := addresses[key]
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s: %q is not an address", key, v))
		} else if common.HexToAddress(v) == (common.Address{}) {
			errs = append(errs, fmt.Errorf("%s: zero address", key))
		}
	}

	if err := fee.ValidateRate(c.Escrow.TransactionFeeBps); err != nil {
		errs = append(errs, fmt.Errorf("escrow.transaction_fee_bps: %w", err))
	}
	if c.Persist.ChanSize <= 0 || c.Persist.BatchSize <= 0 || c.Persist.FlushTimeout <= 0 {
		errs = append(errs, errors.New("persist: chan_size, batch_size and flush_timeout must be positive"))
	}
	if c.Publish.ChanSize <= 0 {
		errs = append(errs, errors.New("publish.chan_size must be positive"))
	}
	if c.Checkpoint.Interval < 0 {
		errs = append(errs, errors.New("checkpoint.interval must not be negative"))
	}
	if c.Projection.Enabled && (c.Projection.Interval <= 0 || c.Projection.BatchSize <= 0) {
		errs = append(errs, errors.New("projection: interval and batch_size must be positive"))
	}
	if c.Idempotency.Capacity <= 0 {
		errs = append(errs, errors.New("idempotency.capacity must be positive"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats.enabled"))
	}

	return errors.Join(errs...)
}

// Addr parses one of the configured addresses. Validate must have passed.
func Addr(s string) common.Address {
	return common.HexToAddress(s)
}
