package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/registry"
	"sitebuilder/internal/service"
	"sitebuilder/internal/storage"
	"sitebuilder/internal/theme"
)

// App wires one page editing session: storage, section catalog,
// composer, and the reconciliation loop. The visual editor subscribes
// to events and calls the composer's operations; everything else here
// is lifecycle.
type App struct {
	cfg    Config
	logger *zap.Logger

	db    *storage.DB
	mongo *storage.MongoStore

	catalog     *registry.Registry
	catalogStop func()

	bus        *eventBus
	composer   *service.Composer
	reconciler *service.Reconciler
}

// New creates an App from config.
func New(cfg Config, logger *zap.Logger) *App {
	return &App{cfg: cfg, logger: logger, bus: newEventBus()}
}

// Startup opens the store, hydrates the page session, and starts the
// reconciliation loop.
func (a *App) Startup(ctx context.Context, pageID string) error {
	a.catalog = registry.Default()
	if a.cfg.CatalogPath != "" {
		if err := a.catalog.LoadFile(a.cfg.CatalogPath); err != nil {
			a.logger.Warn("catalog override not loaded, using defaults", zap.Error(err))
		}
		stop, err := a.catalog.Watch(ctx, a.cfg.CatalogPath, a.logger, nil)
		if err != nil {
			a.logger.Warn("catalog watch failed", zap.Error(err))
		} else {
			a.catalogStop = stop
		}
	}

	if a.cfg.Store.Driver == storage.DriverMongo {
		ms, err := storage.OpenMongo(ctx, a.cfg.Store, a.logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.mongo = ms
		a.composer = service.NewComposer(pageID, a.cfg.Plan, a.catalog, ms, ms, a.bus, a.logger)
		a.reconciler = service.NewReconciler(pageID, a.composer, ms, ms, a.bus, a.logger)
	} else {
		db, err := storage.Open(a.cfg.Store, a.logger)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		a.db = db
		cs := storage.NewContentStore(db, a.logger)
		ss := storage.NewSettingsStore(db, a.logger)
		a.composer = service.NewComposer(pageID, a.cfg.Plan, a.catalog, cs, ss, a.bus, a.logger)
		a.reconciler = service.NewReconciler(pageID, a.composer, cs, ss, a.bus, a.logger)
	}

	a.composer.Hydrate(ctx)

	if a.cfg.PollInterval != "" {
		if d, err := time.ParseDuration(a.cfg.PollInterval); err == nil {
			a.reconciler.Interval = d
		} else {
			a.logger.Warn("bad poll_interval, using default", zap.String("value", a.cfg.PollInterval))
		}
	}
	a.reconciler.ResyncSpec = a.cfg.ResyncSpec
	a.reconciler.Start(ctx)

	a.logger.Info("session started",
		zap.String("page", pageID),
		zap.String("driver", a.cfg.Store.Driver),
		zap.String("plan", string(a.cfg.Plan)),
	)
	return nil
}

// Composer returns the session's composer.
func (a *App) Composer() *service.Composer {
	return a.composer
}

// Styles resolves every style token a section declares against the
// current page settings, ready for the renderer.
func (a *App) Styles(section domain.SectionKey) map[string]string {
	return theme.ResolveSection(a.composer.Settings(), section)
}

// Subscribe registers a listener for composer and reconciler events.
func (a *App) Subscribe(fn func(event string, data any)) {
	a.bus.subscribe(fn)
}

// Shutdown stops polling and drains in-flight persistence writes before
// closing the store. Writes are drained, not cancelled.
func (a *App) Shutdown(ctx context.Context) {
	if a.reconciler != nil {
		a.reconciler.Stop()
	}
	if a.catalogStop != nil {
		a.catalogStop()
	}
	if a.composer != nil {
		a.composer.WaitWrites(ctx)
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.mongo != nil {
		a.mongo.Close(ctx)
	}
}

// ── event bus ──────────────────────────────────────────────

// eventBus fans composer/reconciler events out to subscribers. It is
// the app-side implementation of service.EventEmitter.
type eventBus struct {
	mu       sync.RWMutex
	handlers []func(event string, data any)
}

func newEventBus() *eventBus {
	return &eventBus{}
}

func (b *eventBus) subscribe(fn func(event string, data any)) {
	b.mu.Lock()
	b.handlers = append(b.handlers, fn)
	b.mu.Unlock()
}

func (b *eventBus) Emit(_ context.Context, event string, data any) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(event, data)
	}
}
