package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/01moynul/taptosell-orders/internal/config"
)

func main() {
	app := &cli.App{
		Name:  "taptosell-orders",
		Usage: "TapToSell order processing: checkout, payments, coupons and fulfilment",
		Before: func(c *cli.Context) error {
			// Logging first, so config warnings use the configured format.
			config.LoadDotEnv()
			return config.SetupLogging(envOr("LOG_LEVEL", "info"), envOr("LOG_FORMAT", "text"))
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			reconcileCommand(),
			notifyCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("taptosell-orders exited with an error")
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
