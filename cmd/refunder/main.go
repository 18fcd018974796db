package main

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"lodgebook/internal/adapters/gateway"
	"lodgebook/internal/adapters/observability"
	"lodgebook/internal/app"
	"lodgebook/internal/shared"
	mysqlrepo "lodgebook/internal/storage/mysql"
)

// refunder is a one-shot batch binary: it drains bookings whose refund is
// still pending (gateway was down when they were cancelled) and exits.
// Run it from cron or a scheduled job.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.Workers).
		Int("batch", cfg.RefundBatch).
		Msg("refunder starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	gw, err := gateway.New(cfg.GatewayBase, cfg.GatewayKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("payment gateway client init failed")
	}

	d := app.NewRefundDispatcher(repo, gw, cfg.Workers)
	settled, err := d.Run(ctx, cfg.RefundBatch)
	if err != nil {
		log.Fatal().Err(err).Msg("refund dispatch failed")
	}
	log.Info().Int("settled", settled).Msg("refunder completed")
}
