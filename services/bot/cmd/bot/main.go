package main

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	tele "gopkg.in/telebot.v4"

	"github.com/example/anime-bot/internal/platform/analytics"
	"github.com/example/anime-bot/internal/platform/auth"
	"github.com/example/anime-bot/internal/platform/config"
	"github.com/example/anime-bot/internal/platform/db"
	"github.com/example/anime-bot/internal/platform/httpserver"
	"github.com/example/anime-bot/internal/platform/logging"
	"github.com/example/anime-bot/internal/platform/natsconn"
	"github.com/example/anime-bot/internal/platform/run"
	"github.com/example/anime-bot/services/bot/internal/adminapi"
	"github.com/example/anime-bot/services/bot/internal/bot"
	"github.com/example/anime-bot/services/bot/internal/catalog"
	botconfig "github.com/example/anime-bot/services/bot/internal/config"
	"github.com/example/anime-bot/services/bot/internal/domain"
	"github.com/example/anime-bot/services/bot/internal/ingest"
	"github.com/example/anime-bot/services/bot/internal/persist"
	"github.com/example/anime-bot/services/bot/internal/screen"
	"github.com/example/anime-bot/services/bot/internal/telegram"
	"github.com/example/anime-bot/services/bot/internal/userstate"
	"github.com/example/anime-bot/services/bot/internal/watch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()
	log = log.With(zap.String("service", cfg.ServiceName))

	botCfg, err := botconfig.Load()
	if err != nil {
		log.Error("bot config", zap.Error(err))
		run.Exit(1)
	}

	ctx := context.Background()

	var pool *pgxpool.Pool
	if botCfg.DatabaseURL != "" {
		pool, err = db.Open(ctx, botCfg.DatabaseURL)
		if err != nil {
			log.Error("db open", zap.Error(err))
			run.Exit(1)
		}
		defer pool.Close()
	}

	backend, fileBackend, err := openBackend(ctx, botCfg, pool)
	if err != nil {
		log.Error("storage backend", zap.String("backend", botCfg.StorageBackend), zap.Error(err))
		run.Exit(1)
	}
	docs := persist.New(backend, persist.Options{
		CatalogDoc: botCfg.CatalogDoc,
		UsersDoc:   botCfg.UsersDoc,
		Logger:     log.Named("persist"),
	})

	// A corrupt document yields empty state; the layer keeps a copy of the bytes.
	snap, err := docs.LoadCatalog(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrCorruptState) {
			log.Error("load catalog", zap.Error(err))
			run.Exit(1)
		}
		snap = catalog.NewSnapshot(nil)
	}
	states, err := docs.LoadUsers(ctx)
	if err != nil && !errors.Is(err, domain.ErrCorruptState) {
		log.Error("load users", zap.Error(err))
		run.Exit(1)
	}
	cat := catalog.NewStore(snap)
	users := userstate.NewStore()
	users.Replace(states)
	log.Info("state loaded", zap.Int("titles", snap.Len()), zap.Int("conversations", users.Len()))

	tb, err := tele.NewBot(tele.Settings{
		Token:  botCfg.BotToken,
		Poller: &tele.LongPoller{Timeout: botCfg.PollTimeout},
		OnError: func(err error, c tele.Context) {
			fields := []zap.Field{zap.Error(err)}
			if c != nil && c.Chat() != nil {
				fields = append(fields, zap.Int64("conversation_id", c.Chat().ID))
			}
			log.Error("telegram handler failed", fields...)
		},
	})
	if err != nil {
		log.Error("telegram bot", zap.Error(err))
		run.Exit(1)
	}

	breaker := telegram.NewBreaker(telegram.BreakerConfig{
		MaxRequests:      botCfg.CBMaxRequests,
		Interval:         botCfg.CBInterval,
		Timeout:          botCfg.CBTimeout,
		FailureThreshold: botCfg.CBFailureThreshold,
	}, log.Named("breaker"))
	renderer := screen.NewRenderer(telegram.NewBackend(tb, breaker, log.Named("telegram")), botCfg.WelcomeImage, log.Named("screen"))

	var nc *nats.Conn
	if botCfg.NATSURL != "" {
		nc, err = natsconn.Connect(natsconn.Options{URL: botCfg.NATSURL, Name: cfg.ServiceName, Logger: log})
		if err != nil {
			if botCfg.IngestEnabled {
				log.Error("nats connect", zap.Error(err))
				run.Exit(1)
			}
			log.Warn("nats unavailable, analytics disabled", zap.Error(err))
		} else {
			defer nc.Close()
		}
	}

	opts := bot.Options{
		Trigger:      botCfg.LedgerTrigger,
		PageSize:     botCfg.PageSize,
		WelcomeImage: botCfg.WelcomeImage,
		Admins:       botCfg.Admins,
		Logger:       log.Named("controller"),
	}
	if nc != nil {
		js, err := nc.JetStream()
		if err != nil {
			log.Warn("jetstream unavailable, analytics disabled", zap.Error(err))
		} else {
			opts.Events = analytics.New(js, log.Named("analytics"))
		}
	}
	ctrl := bot.New(cat, users, renderer, docs, opts)

	tasks := []run.Task{
		{Name: "telegram", Run: (&telegram.Router{
			Bot:        tb,
			Ctrl:       ctrl,
			Log:        log.Named("router"),
			SourceChat: botCfg.SourceChatID,
		}).Run},
		{Name: "http", Run: httpServer(cfg, botCfg, ctrl, cat, log).Run},
		{Name: "grpc", Run: func(ctx context.Context) error { return serveGRPC(ctx, cfg.GRPC.Addr, log) }},
	}

	if botCfg.IngestEnabled {
		if pool != nil {
			if err := ingest.EnsureSchema(ctx, pool); err != nil {
				log.Error("ingest schema", zap.Error(err))
				run.Exit(1)
			}
		}
		w, err := ingest.NewWorker(log.Named("ingest"), nc, ctrl, ingest.NewDedup(botCfg.RedisURL, pool, botCfg.DedupTTL), botCfg.IngestSubject)
		if err != nil {
			log.Error("ingest worker", zap.Error(err))
			run.Exit(1)
		}
		if err := w.EnsureStream(ctx); err != nil {
			log.Error("ingest stream", zap.Error(err))
			run.Exit(1)
		}
		tasks = append(tasks, run.Task{Name: "ingest", Run: w.Run})
	}

	if botCfg.WatchCatalog && fileBackend != nil {
		tasks = append(tasks, run.Task{Name: "catalog-watch", Run: (&watch.CatalogWatcher{
			Path:     fileBackend.Path(docs.CatalogDoc()),
			Source:   docs,
			Target:   cat,
			Debounce: 500 * time.Millisecond,
			Log:      log.Named("watch"),
		}).Run})
	}

	code := run.New(log).WithSignals(tasks...)
	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// openBackend returns the document backend. The file backend is also
// returned on its own so the catalog watcher can find the file.
func openBackend(ctx context.Context, cfg botconfig.Config, pool *pgxpool.Pool) (persist.Backend, *persist.FileBackend, error) {
	switch cfg.StorageBackend {
	case botconfig.StoragePostgres:
		pg := persist.NewPostgresBackend(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return pg, nil, nil
	case botconfig.StorageRedis:
		rb, err := persist.NewRedisBackend(cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return rb, nil, nil
	case botconfig.StorageMemory:
		return persist.NewInMemoryBackend(), nil, nil
	default:
		fb, err := persist.NewFileBackend(cfg.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return fb, fb, nil
	}
}

func httpServer(cfg config.AppConfig, botCfg botconfig.Config, ctrl *bot.Controller, cat *catalog.Store, log *zap.Logger) *httpserver.Server {
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{Logger: log.Named("http")})

	if botCfg.AdminJWTSecret != "" {
		verifier := auth.JWTVerifier{Secret: []byte(botCfg.AdminJWTSecret)}
		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(auth.RequireUser(verifier))
			r.Use(auth.RequireAdmin)
			adminapi.Handler{Admin: ctrl, Catalog: cat.Snapshot, Log: log.Named("adminapi")}.Register(r)
		})
	} else {
		log.Info("ADMIN_JWT_SECRET not set, admin http api disabled")
	}

	return httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Logger: log, Router: r})
}

func serveGRPC(ctx context.Context, addr string, log *zap.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		stopped := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(10 * time.Second):
			srv.Stop()
		}
	}()

	log.Info("grpc server starting", zap.String("addr", addr))
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
