package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"marketplace-settlement/internal/config"
	escrowapp "marketplace-settlement/internal/escrow/application"
	escrowrepo "marketplace-settlement/internal/escrow/infrastructure/postgres"
	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/eventing/eventbus"
	eventingrepo "marketplace-settlement/internal/eventing/infrastructure/postgres"
	inventoryapp "marketplace-settlement/internal/inventory/application"
	inventoryrepo "marketplace-settlement/internal/inventory/infrastructure/postgres"
	milestoneapp "marketplace-settlement/internal/milestones/application"
	milestonerepo "marketplace-settlement/internal/milestones/infrastructure/postgres"
	orderapp "marketplace-settlement/internal/orders/application"
	orders "marketplace-settlement/internal/orders/domain"
	ordermemory "marketplace-settlement/internal/orders/infrastructure/memory"
	orderrepo "marketplace-settlement/internal/orders/infrastructure/postgres"
	"marketplace-settlement/internal/pricing"
	reportingapp "marketplace-settlement/internal/reporting/application"
	reportingrepo "marketplace-settlement/internal/reporting/infrastructure/postgres"
	"marketplace-settlement/internal/settlement/adapters/catalog"
	settlementapp "marketplace-settlement/internal/settlement/application"
	settlementinterfaces "marketplace-settlement/internal/settlement/interfaces"
)

// Engine holds the Postgres-backed settlement components shared by the
// server and the operator CLI.
type Engine struct {
	Config      config.Config
	Bus         *eventbus.InMemoryBus
	Registry    *eventing.Registry
	Processed   *eventingrepo.ProcessedStore
	Dispatcher  *eventing.Dispatcher
	Maintenance *eventing.Maintenance
	Ledger      *inventoryapp.Ledger
	Escrow      *escrowapp.Manager
	Orders      *orderrepo.Repository
	Coordinator *settlementapp.Coordinator
	Revenue     *reportingapp.RevenueService
}

// NewEngine wires the engine over db.
func NewEngine(db *sql.DB, cfg config.Config, logger *log.Logger) (*Engine, error) {
	if db == nil {
		return nil, errors.New("engine: nil db")
	}
	if logger == nil {
		logger = log.Default()
	}
	policy := cfg.RetryPolicy()

	bus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	settlementinterfaces.RegisterEvents(registry)
	outboxStore := eventingrepo.NewOutboxStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	processed := eventingrepo.NewProcessedStore(db)
	dispatcher := eventing.NewDispatcher(bus, outboxStore, registry, dlqStore, logger)
	publisher := settlementinterfaces.NewOutboxPublisher(eventing.NewPublisher(outboxStore, bus, logger))
	maintenance, err := eventing.NewMaintenance(outboxStore, dlqStore, processed, logger)
	if err != nil {
		return nil, err
	}

	ledger, err := inventoryapp.NewLedger(inventoryrepo.NewStore(db),
		inventoryapp.WithTTL(cfg.Inventory.ReservationTTL),
		inventoryapp.WithSweepBatch(cfg.Inventory.SweepBatch),
		inventoryapp.WithRetryPolicy(policy),
		inventoryapp.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("inventory ledger: %w", err)
	}
	calculator, err := pricing.NewCalculator(cfg.PricingConfig())
	if err != nil {
		return nil, fmt.Errorf("pricing: %w", err)
	}
	manager, err := escrowapp.NewManager(escrowrepo.NewAccountRepository(db),
		escrowapp.WithRetryPolicy(policy),
		escrowapp.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("escrow manager: %w", err)
	}
	orderRepo := orderrepo.NewRepository(db)
	productCatalog, err := newCatalog(cfg.Catalog, logger)
	if err != nil {
		return nil, err
	}
	splitter, err := orderapp.NewSplitter(productCatalog, calculator, ledger, manager, orderRepo, orderapp.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("order splitter: %w", err)
	}
	scheduler, err := milestoneapp.NewScheduler(milestonerepo.NewRepository(db), settlementapp.NewPartyResolver(orderRepo), manager,
		milestoneapp.WithRetryPolicy(policy),
		milestoneapp.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("milestone scheduler: %w", err)
	}

	opts := []settlementapp.CoordinatorOption{
		settlementapp.WithPublisher(publisher),
		settlementapp.WithRetryPolicy(policy),
		settlementapp.WithLogger(logger),
	}
	if plan := cfg.DefaultPlan(); plan != nil {
		opts = append(opts, settlementapp.WithDefaultPlan(plan))
	}
	coordinator, err := settlementapp.NewCoordinator(splitter, ledger, manager, scheduler, orderRepo, opts...)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	revenue, err := reportingapp.NewRevenueService(reportingrepo.NewReleaseSource(db),
		reportingapp.WithCommissionRate(cfg.Reporting.CommissionRate),
		reportingapp.WithCurrency(cfg.Pricing.Currency),
		reportingapp.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("revenue service: %w", err)
	}

	return &Engine{
		Config:      cfg,
		Bus:         bus,
		Registry:    registry,
		Processed:   processed,
		Dispatcher:  dispatcher,
		Maintenance: maintenance,
		Ledger:      ledger,
		Escrow:      manager,
		Orders:      orderRepo,
		Coordinator: coordinator,
		Revenue:     revenue,
	}, nil
}

func newCatalog(cfg config.CatalogConfig, logger *log.Logger) (orders.Catalog, error) {
	if cfg.BaseURL == "" {
		logger.Printf("catalog: no base url configured, using empty in-memory catalog")
		return ordermemory.NewCatalog(), nil
	}
	client, err := catalog.NewClient(cfg.BaseURL, catalog.WithToken(cfg.Token))
	if err != nil {
		return nil, fmt.Errorf("catalog client: %w", err)
	}
	return client, nil
}
