package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/01moynul/taptosell-orders/internal/auth"
	"github.com/01moynul/taptosell-orders/internal/config"
	"github.com/01moynul/taptosell-orders/internal/database"
	"github.com/01moynul/taptosell-orders/internal/events"
	"github.com/01moynul/taptosell-orders/internal/handlers"
	"github.com/01moynul/taptosell-orders/internal/notify"
	"github.com/01moynul/taptosell-orders/internal/reconcile"
	"github.com/01moynul/taptosell-orders/internal/routes"
	"github.com/01moynul/taptosell-orders/internal/store/memstore"
	"github.com/01moynul/taptosell-orders/internal/store/mysqlstore"
)

const shutdownTimeout = 15 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API (and the unpaid-order reconciler when RECONCILE_INTERVAL is set)",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if log.GetLevel() < log.DebugLevel {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := buildServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			router, err := routes.SetupRouter(
				&handlers.Handlers{Orders: svc.orders, Coupons: svc.ledger, Inbox: svc.backend.inbox},
				routes.Options{
					Tokens:          auth.NewTokens(cfg.JWTSecret),
					CORSOrigin:      cfg.CORSOrigin,
					CallbackLimiter: rate.NewLimiter(cfg.CallbackLimit()),
				},
			)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.WithField("addr", cfg.HTTPAddr).Info("starting TapToSell orders API server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "http server")
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if cfg.ReconcileInterval > 0 {
				rec := reconcile.New(svc.orders, cfg.PendingTimeout)
				g.Go(func() error { return rec.Loop(gctx, cfg.ReconcileInterval) })
			}
			return g.Wait()
		},
	}
}

func migrateCommand() *cli.Command {
	run := func(direction string) cli.ActionFunc {
		return func(c *cli.Context) error {
			dsn := c.String("dsn")
			if dsn == "" {
				dsn = os.Getenv("DB_DSN_PRIMARY")
			}
			if dsn == "" {
				return errors.New("migrate: set DB_DSN_PRIMARY or pass --dsn")
			}
			return database.Migrate(dsn, direction)
		}
	}
	dsnFlag := &cli.StringFlag{Name: "dsn", Usage: "MySQL DSN (defaults to DB_DSN_PRIMARY)"}

	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back the database schema",
		Subcommands: []*cli.Command{
			{Name: database.Up, Usage: "apply all pending migrations", Flags: []cli.Flag{dsnFlag}, Action: run(database.Up)},
			{Name: database.Down, Usage: "roll back the latest migration", Flags: []cli.Flag{dsnFlag}, Action: run(database.Down)},
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "cancel unpaid orders older than PENDING_TIMEOUT, once",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			svc, err := buildServices(c.Context, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := reconcile.New(svc.orders, cfg.PendingTimeout).Run(c.Context, time.Now().UTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "scanned %d, cancelled %d, skipped %d\n", res.Scanned, res.Cancelled, res.Skipped)
			return nil
		},
	}
}

func notifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "notify",
		Usage: "consume order events from kafka and send customer notifications",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Value: "taptosell-notifier", Usage: "kafka consumer group"},
			&cli.BoolFlag{Name: "create-topics", Usage: "create the event topics before consuming"},
			&cli.IntFlag{Name: "partitions", Value: 3, Usage: "partitions per topic for --create-topics"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			brokers := cfg.Brokers()
			if len(brokers) == 0 {
				return errors.New("notify: KAFKA_BROKERS is required")
			}
			if c.Bool("create-topics") {
				if err := events.CreateTopics(brokers[0], c.Int("partitions")); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			inbox, closeInbox, err := openInbox(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeInbox()

			notifier := notify.NewNotifier(inbox, notify.LogSender{})
			return events.NewKafkaConsumer(brokers, c.String("group"), notifier.Handle).Run(ctx)
		},
	}
}

// openInbox opens only the notification store; the consumer needs nothing else.
func openInbox(ctx context.Context, cfg *config.Config) (notify.Inbox, func(), error) {
	if cfg.StoreDriver == config.DriverMemory {
		return memstore.New().Notifications(), func() {}, nil
	}
	db, err := database.OpenDB(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return mysqlstore.New(db).Notifications(), func() { _ = db.Close() }, nil
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "mint a bearer token for local testing",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true, Usage: "user id"},
			&cli.StringFlag{Name: "role", Value: auth.RoleCustomer, Usage: "customer or admin"},
			&cli.DurationFlag{Name: "ttl", Value: auth.DefaultTTL},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.NewTokens(cfg.JWTSecret).GenerateToken(c.Int64("user"), c.String("role"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, tok)
			return nil
		},
	}
}
