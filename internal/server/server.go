// Package server wires the manager together: COMMS request/reply subjects,
// the module store, the dispatcher, event publishing and the HTTP health
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/modules-manager/internal/config"
	"github.com/morezero/modules-manager/pkg/bootstrap"
	"github.com/morezero/modules-manager/pkg/catalog"
	"github.com/morezero/modules-manager/pkg/commsutil"
	"github.com/morezero/modules-manager/pkg/db"
	"github.com/morezero/modules-manager/pkg/dispatcher"
	"github.com/morezero/modules-manager/pkg/events"
	"github.com/morezero/modules-manager/pkg/host"
	"github.com/morezero/modules-manager/pkg/registry"
)

const logPrefix = "server:server"

// Server is the modules-manager orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	store      host.Store
	disp       *dispatcher.Dispatcher
	publisher  events.Publisher
	modules    []bootstrap.Registered
	subs       []*comms.Subscription
	httpServer *http.Server
	height     atomic.Int64
	ready      atomic.Bool
}

// NewServerParams holds the dependencies of a Server.
type NewServerParams struct {
	Config     *config.Config
	Conn       *comms.Conn
	Store      host.Store
	Dispatcher *dispatcher.Dispatcher
	Publisher  events.Publisher
	Modules    []bootstrap.Registered
}

// NewServer creates a Server. A nil Publisher disables publishing.
func NewServer(params NewServerParams) *Server {
	pub := params.Publisher
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &Server{
		cfg:       params.Config,
		nc:        params.Conn,
		store:     params.Store,
		disp:      params.Dispatcher,
		publisher: pub,
		modules:   params.Modules,
	}
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("%s - Starting modules-manager (store=%s, chain=%s)", logPrefix, cfg.StoreBackend, cfg.ChainID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Step 1: Build the registry from the manifest
	manifest, err := bootstrap.LoadManifest(cfg.ManifestFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load manifest: %w", logPrefix, err)
	}
	reg := registry.NewRegistry()
	modules, err := bootstrap.Apply(manifest, catalog.Builtin(), reg)
	if err != nil {
		return fmt.Errorf("%s - failed to register modules: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Registered %d modules: %v", logPrefix, len(modules), reg.Names()))

	// Step 2: Open the store
	store, pool, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	// Step 3: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}

	var publisher events.Publisher = &events.NoOpPublisher{}
	if cfg.PublishEvents {
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{
			Source:         cfg.COMMSName,
			EventPrefix:    cfg.EventPrefix,
			OutboundPrefix: cfg.OutboundPrefix,
		})
	}

	s := NewServer(NewServerParams{
		Config:     cfg,
		Conn:       nc,
		Store:      store,
		Dispatcher: dispatcher.NewDispatcher(reg),
		Publisher:  publisher,
		Modules:    modules,
	})

	// Step 4: Instantiate modules that carry a manifest instantiate message
	if err := s.InstantiateManifest(ctx, manifest); err != nil {
		nc.Close()
		return err
	}

	// Step 5: Subscribe and serve HTTP
	if err := s.Subscribe(ctx); err != nil {
		nc.Close()
		return err
	}

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - modules-manager is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	s.Shutdown(ctx)
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

// openStore returns the configured host store. The pool is non-nil only
// for the Postgres backend and must be closed by the caller.
func openStore(ctx context.Context, cfg *config.Config) (host.Store, *pgxpool.Pool, error) {
	if !cfg.UsesPostgres() {
		return host.NewMemoryStore(), nil, nil
	}

	if cfg.RunMigrations {
		if err := db.EnsureDatabase(ctx, cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("%s - failed to ensure database: %w", logPrefix, err)
		}
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	if cfg.RunMigrations {
		migrations, err := db.ResolveMigrations(cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	return db.NewStore(pool), pool, nil
}

// Subscribe registers the execute, query and instantiate handlers on COMMS.
func (s *Server) Subscribe(ctx context.Context) error {
	subjects := commsutil.BuildSubjects(s.cfg.SubjectPrefix)
	for _, route := range []struct {
		subject string
		op      dispatcher.Operation
	}{
		{subjects.Execute, dispatcher.OpExecute},
		{subjects.Query, dispatcher.OpQuery},
		{subjects.Instantiate, dispatcher.OpInstantiate},
	} {
		op := route.op
		sub, err := s.nc.Subscribe(route.subject, func(msg *comms.Msg) {
			reply := s.HandleRequest(ctx, op, msg.Data)
			data, err := commsutil.EncodePayload(reply)
			if err != nil {
				slog.Error(fmt.Sprintf("%s - failed to encode reply: %v", logPrefix, err))
				return
			}
			if err := msg.Respond(data); err != nil {
				slog.Warn(fmt.Sprintf("%s - failed to respond on %s: %v", logPrefix, msg.Subject, err))
			}
		})
		if err != nil {
			s.unsubscribe()
			return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, route.subject, err)
		}
		s.subs = append(s.subs, sub)
		slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, route.subject))
	}
	s.ready.Store(true)
	return nil
}

// HandleRequest decodes one wire request for op, dispatches it and returns
// the reply. Events and messages of a successful call are published before
// the reply is returned; publish failures are logged only.
func (s *Server) HandleRequest(ctx context.Context, op dispatcher.Operation, data []byte) *dispatcher.Reply {
	req, err := commsutil.DecodeRequest(data, op)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		id := ""
		if req != nil {
			id = req.ID
		}
		return &dispatcher.Reply{
			ID: id,
			Ok: false,
			Error: &dispatcher.ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: "Failed to decode request",
			},
		}
	}
	// The subject decides the operation.
	req.Op = op

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	env := host.NewEnv(s.cfg.ChainID, s.height.Add(1), req.Sender, s.store)
	reply, res := s.disp.DispatchResult(reqCtx, env, req)

	if res != nil {
		batch := events.NewBatch(req.ID, req.Sender, string(op), res)
		if !batch.Empty() {
			if err := s.publisher.Publish(reqCtx, batch); err != nil {
				slog.Error(fmt.Sprintf("%s - publish failed for request %s: %v", logPrefix, req.ID, err))
			}
		}
	}
	return reply
}

// InstantiateManifest instantiates, in one call, every manifest module that
// carries an instantiate message. The sender is the service name.
func (s *Server) InstantiateManifest(ctx context.Context, m *bootstrap.Manifest) error {
	envelope, ok, err := m.InstantiateEnvelope()
	if err != nil {
		return fmt.Errorf("%s - failed to build instantiate envelope: %w", logPrefix, err)
	}
	if !ok {
		return nil
	}

	env := host.NewEnv(s.cfg.ChainID, s.height.Add(1), s.cfg.COMMSName, s.store)
	res, err := s.disp.Instantiate(ctx, env, envelope)
	if err != nil {
		return fmt.Errorf("%s - manifest instantiate failed: %w", logPrefix, err)
	}
	if err := s.publisher.Publish(ctx, events.NewBatch("manifest", s.cfg.COMMSName, string(dispatcher.OpInstantiate), res)); err != nil {
		slog.Error(fmt.Sprintf("%s - publish failed for manifest instantiate: %v", logPrefix, err))
	}
	slog.Info(fmt.Sprintf("%s - Instantiated manifest modules", logPrefix))
	return nil
}

// Shutdown stops serving: readiness drops first, then subscriptions, HTTP
// and the COMMS connection.
func (s *Server) Shutdown(ctx context.Context) {
	s.ready.Store(false)
	s.unsubscribe()
	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Warn(fmt.Sprintf("%s - COMMS drain: %v", logPrefix, err))
		}
	}
}

func (s *Server) unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Debug(fmt.Sprintf("%s - unsubscribe %s: %v", logPrefix, sub.Subject, err))
		}
	}
	s.subs = nil
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug(fmt.Sprintf("%s - write response: %v", logPrefix, err))
	}
}
