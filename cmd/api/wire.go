package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/01moynul/taptosell-orders/internal/config"
	"github.com/01moynul/taptosell-orders/internal/coupons"
	"github.com/01moynul/taptosell-orders/internal/database"
	"github.com/01moynul/taptosell-orders/internal/events"
	"github.com/01moynul/taptosell-orders/internal/notify"
	"github.com/01moynul/taptosell-orders/internal/numbering"
	"github.com/01moynul/taptosell-orders/internal/orders"
	"github.com/01moynul/taptosell-orders/internal/payment"
	"github.com/01moynul/taptosell-orders/internal/pricing"
	"github.com/01moynul/taptosell-orders/internal/store/memstore"
	"github.com/01moynul/taptosell-orders/internal/store/mysqlstore"
)

// backend is one store driver seen through the interfaces the services need.
type backend struct {
	store    orders.Store
	coupons  coupons.Repository
	catalog  pricing.Catalog
	sequence numbering.Sequence
	inbox    notify.Inbox
	close    func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		s := memstore.New()
		s.Catalog().Put(memstore.DemoProducts()...)
		log.Warn("using the in-memory store; data is lost on exit")
		return &backend{
			store:    s,
			coupons:  s.CouponRepo(),
			catalog:  s.Catalog(),
			sequence: s.Sequence(),
			inbox:    s.Notifications(),
			close:    func() error { return nil },
		}, nil
	default:
		db, err := database.OpenDB(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s := mysqlstore.New(db)
		return &backend{
			store:    s,
			coupons:  s.CouponRepo(),
			catalog:  s.Catalog(),
			sequence: s.Sequence(),
			inbox:    s.Notifications(),
			close:    db.Close,
		}, nil
	}
}

// services is the fully wired core.
type services struct {
	backend *backend
	ledger  *coupons.Ledger
	orders  *orders.Manager
	closers []func() error
}

func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.WithError(err).Warn("shutdown: close failed")
		}
	}
}

// buildServices wires the lifecycle manager. Events go to Kafka when brokers
// are configured, otherwise the notifier runs in-process.
func buildServices(ctx context.Context, cfg *config.Config) (*services, error) {
	b, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc := &services{backend: b, closers: []func() error{b.close}}

	gateway, err := payment.NewGateway(cfg.PaymentGateway, cfg.PaymentBaseURL, cfg.PaymentKeyID, cfg.PaymentKeySecret)
	if err != nil {
		svc.Close()
		return nil, errors.Wrap(err, "payment gateway")
	}

	bus := events.NewLocal()
	dispatcher := events.Fanout{bus}
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		pub := events.NewKafkaPublisher(brokers)
		svc.closers = append(svc.closers, pub.Close)
		dispatcher = append(dispatcher, pub)
		log.WithField("brokers", brokers).Info("publishing order events to kafka")
	} else {
		bus.Subscribe(notify.NewNotifier(b.inbox, notify.LogSender{}).Handle)
		log.Info("no KAFKA_BROKERS set; notifications run in-process")
	}

	svc.ledger = coupons.NewLedger(b.coupons)
	svc.orders = orders.NewManager(orders.Deps{
		Store:    b.store,
		Pricer:   pricing.NewEngine(b.catalog, svc.ledger),
		Numbers:  numbering.NewAuthority(b.sequence, cfg.OrderNumberPrefix, cfg.OrderNumberWidth),
		Gateway:  gateway,
		Verifier: payment.NewVerifier(cfg.PaymentKeySecret),
		Events:   dispatcher,
		Currency: cfg.Currency,
	})
	return svc, nil
}
