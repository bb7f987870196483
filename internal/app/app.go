// Package app wires the control plane together: storage backend selection,
// the event bus and gateway, the refresh pollers and the routing master.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"flotilla/internal/config"
	"flotilla/internal/domain"
	"flotilla/internal/events"
	"flotilla/internal/fingerprint"
	"flotilla/internal/master"
	"flotilla/internal/refresh"
	"flotilla/internal/storage"
	"flotilla/internal/storage/database"
	"flotilla/internal/storage/distributed"
	"flotilla/internal/storage/memory"
	"flotilla/internal/support"
)

const sourceListMaxSize = 8 << 20

type App struct {
	cfg config.Config
}

func New(cfg config.Config) *App {
	return &App{cfg: cfg}
}

// Run blocks until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	// The store emits into the bus and the bus checks access against the
	// store, so the emitter is bound once both ends exist.
	emitter := &latentEmitter{}

	store, params, runners, err := a.buildStorage(emitter)
	if err != nil {
		return err
	}

	bus := events.NewBus(store)
	emitter.bind(bus)

	if err := master.EnsureRootCertificate(ctx, store, params, a.cfg.CertificateDuration); err != nil {
		return fmt.Errorf("ensure root certificate: %w", err)
	}
	routing := master.New(store, a.cfg.CertificateDuration)

	enricher := fingerprint.NewEnricher(a.cfg.GeoLiteCityPath, a.cfg.GeoLiteASNPath)
	defer enricher.Close()
	prober := fingerprint.NewProber(a.cfg.FingerprintURL, a.cfg.FingerprintTimeout, enricher)

	runner := refresh.NewRunner(store, refresh.Callbacks{
		// Connector, proxy and task work is driven by the connector
		// integrations, which live outside the control plane.
		Freeproxies: probeFreeproxies(store, prober),
		Source:      fetchSource(store),
	}, refresh.Config{
		EmptyDelay:     a.cfg.RefreshEmptyDelay,
		ConnectorDelay: a.cfg.RefreshConnectorDelay,
		TaskRetryDelay: a.cfg.TaskRetryDelay,
		ProxyBatch:     a.cfg.ProxyBatch,
		FreeproxyBatch: a.cfg.FreeproxyBatch,
	})

	if a.cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, gateway sessions cannot authenticate")
	}
	gateway := events.NewGateway(bus, []byte(a.cfg.JWTSecret))

	mux := http.NewServeMux()
	mux.Handle("/events", gateway.Handler())
	mux.Handle("/master/", http.StripPrefix("/master", master.NewAPI(routing).Handler()))
	server := &http.Server{Addr: a.cfg.GatewayAddr, Handler: mux}

	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		run := run
		g.Go(func() error { return run(ctx) })
	}
	g.Go(func() error { return runner.Run(ctx) })
	g.Go(func() error {
		log.Info("Event gateway listening.", "addr", a.cfg.GatewayAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})

	return g.Wait()
}

// buildStorage picks the backend. It returns the store facet the rest of the
// process uses, the bootstrap params writer and any background loops the
// backend needs.
func (a *App) buildStorage(emitter storage.Emitter) (storage.Store, master.ParamWriter, []func(context.Context) error, error) {
	switch a.cfg.StorageType {
	case config.StorageMemory:
		store := memory.New(emitter, a.cfg.CertificatesMax)
		return store, store, nil, nil

	case config.StorageDistributed:
		db, err := database.SetupDB()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("setup database: %w", err)
		}
		client, err := support.GetRedisClient()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("setup broker: %w", err)
		}

		broker := distributed.NewRedisBroker(client, a.cfg.CommandsStream, a.cfg.EventsChannel)
		writerStore := database.New(db, distributed.NewBroadcastEmitter(broker), a.cfg.CertificatesMax)
		readsStore := database.New(db, nil, a.cfg.CertificatesMax)
		relay := distributed.NewRelay(readsStore, broker, emitter)
		writer := distributed.NewWriter(writerStore, broker)

		runners := []func(context.Context) error{
			relay.Run,
			func(ctx context.Context) error {
				return support.RunWithLeader(ctx, a.cfg.LeadershipKey, a.cfg.LeadershipTTL, func(leadCtx context.Context) {
					if err := writer.Run(leadCtx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error("writer stopped", "error", err)
					}
				})
			},
		}
		// Params are seeded before the writer consumes anything, so they
		// bypass the command stream and go straight to the database.
		return relay, readsStore, runners, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage type %q", a.cfg.StorageType)
	}
}

// probeFreeproxies turns the refresh batch into a fingerprint synchronization:
// reachable entries get their fingerprint, unreachable ones keep the error.
func probeFreeproxies(store storage.Store, prober *fingerprint.Prober) func(context.Context, []domain.FreeproxyToRefresh) error {
	return func(ctx context.Context, batch []domain.FreeproxyToRefresh) error {
		var actions domain.FreeproxiesSynchronization
		for _, entry := range batch {
			row := domain.Freeproxy{
				ID:                  entry.ID,
				ConnectorID:         entry.ConnectorID,
				ProjectID:           entry.ProjectID,
				Key:                 entry.Key,
				Type:                entry.Type,
				Address:             entry.Address,
				Auth:                entry.Auth,
				TimeoutDisconnected: entry.TimeoutDisconnected,
				TimeoutUnreachable:  entry.TimeoutUnreachable,
			}

			probe, err := prober.Probe(ctx, fingerprint.FreeproxyURL(entry))
			if err != nil {
				message := err.Error()
				row.FingerprintError = &message
			} else {
				row.Fingerprint = probe
			}
			actions.Updated = append(actions.Updated, row)
		}

		if len(actions.Updated) == 0 {
			return nil
		}
		return store.SynchronizeFreeproxies(ctx, actions)
	}
}

// fetchSource downloads a proxy list and feeds the new entries to the store.
// Existing ids are overwritten in place, which refreshes nothing; only new
// keys matter here.
func fetchSource(store storage.Store) func(context.Context, domain.Source) error {
	client := &http.Client{}

	return func(ctx context.Context, source domain.Source) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", source.URL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch %s: unexpected status %d", source.URL, resp.StatusCode)
		}

		freeproxies := refresh.ParseFreeproxyList(source.ProjectID, source.ConnectorID,
			io.LimitReader(resp.Body, sourceListMaxSize))
		if len(freeproxies) == 0 {
			return nil
		}

		log.Info("Source produced freeproxies.", "source", source.ID, "count", len(freeproxies))
		return store.CreateFreeproxies(ctx, source.ProjectID, source.ConnectorID, freeproxies)
	}
}

// latentEmitter forwards events to a bus bound after construction. Events
// emitted before binding are dropped; nothing emits until Run wires the
// components anyway.
type latentEmitter struct {
	mu     sync.RWMutex
	target storage.Emitter
}

func (e *latentEmitter) bind(target storage.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.target = target
}

func (e *latentEmitter) Emit(event domain.Event) {
	e.mu.RLock()
	target := e.target
	e.mu.RUnlock()

	if target != nil {
		target.Emit(event)
	}
}
