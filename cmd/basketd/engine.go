package main

import (
	"BasketLedger/internal/config"
	"BasketLedger/internal/core"
	"BasketLedger/internal/custody"
	"BasketLedger/internal/escrow"
	"BasketLedger/internal/registry"
)

// engineConfig maps the validated service configuration onto the engine's
// deployment parameters.
func engineConfig(cfg *config.Config) core.Config {
	return core.Config{
		CurrencyAddress: config.Addr(cfg.Currency.Address),
		Currency: custody.TokenConfig{
			Name:         cfg.Currency.Symbol,
			Symbol:       cfg.Currency.Symbol,
			Decimals:     cfg.Currency.Decimals,
			FaucetAmount: cfg.Currency.Faucet,
		},
		Factory: registry.FactoryConfig{
			Address:                config.Addr(cfg.Factory.Address),
			Admin:                  config.Addr(cfg.Factory.Admin),
			ProductionFee:          cfg.Factory.ProductionFee,
			ProductionFeeRecipient: config.Addr(cfg.Factory.FeeRecipient),
		},
		Escrow: escrow.Config{
			Address:                 config.Addr(cfg.Escrow.Address),
			Admin:                   config.Addr(cfg.Escrow.Admin),
			TransactionFeeRecipient: config.Addr(cfg.Escrow.FeeRecipient),
			TransactionFeeBps:       cfg.Escrow.TransactionFeeBps,
		},
		IdempotencyCapacity: cfg.Idempotency.Capacity,
		CheckpointInterval:  cfg.Checkpoint.Interval,
	}
}
