// Command backend is the matchjump API: it resolves robotics competition
// matches to timestamps inside event livestreams.
// It:
//   - Loads configuration and initializes structured logging.
//   - Opens the configured storage backend (Postgres, Redis or memory) and
//     runs idempotent migrations when Postgres is used.
//   - Wires the RobotEvents provider and the YouTube, Vimeo and Twitch
//     metadata clients used for stream auto-sync.
//   - Starts background jobs: history retention, OAuth token refresh and the
//     idle session sweeper.
//   - Serves the HTTP API plus /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/robostem/matchjump/backend/config"
	"github.com/robostem/matchjump/backend/db"
	"github.com/robostem/matchjump/backend/history"
	"github.com/robostem/matchjump/backend/kv"
	"github.com/robostem/matchjump/backend/metadata"
	"github.com/robostem/matchjump/backend/oauth"
	"github.com/robostem/matchjump/backend/robotevents"
	"github.com/robostem/matchjump/backend/server"
	"github.com/robostem/matchjump/backend/shortlink"
	"github.com/robostem/matchjump/backend/telemetry"
	"github.com/robostem/matchjump/backend/twitchapi"
	"github.com/robostem/matchjump/backend/vimeoapi"
	"github.com/robostem/matchjump/backend/youtubeapi"
)

const version = "1.0.0"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("matchjump", version, cfg.OTLPEndpoint, cfg.TraceSampleRatio)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	if err := db.ConfigureEncryption(cfg.EncryptionKey); err != nil {
		slog.Error("encryption setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("storage setup failed", slog.String("backend", cfg.StorageBackend), slog.Any("err", err))
		os.Exit(1)
	}
	defer st.close()

	// outbound calls carry trace context and show up as client spans
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport), Timeout: 20 * time.Second}

	var events robotevents.Provider = &robotevents.Client{
		HTTPClient: httpClient,
		Token:      cfg.RobotEventsToken,
		BaseURL:    cfg.RobotEventsBaseURL,
	}
	if cfg.RobotEventsToken == "" {
		slog.Warn("ROBOTEVENTS_API_TOKEN not set, event lookups will be rejected by the API")
	}
	if st.redis != nil {
		events = robotevents.NewCached(events, st.redis.Client, cfg.EventCacheTTL)
	}

	settings := st.kv
	if enc := db.Encryptor(); enc != nil {
		settings = &kv.Sealed{Inner: st.kv, Enc: enc}
	}

	var ytOAuth *youtubeapi.Service
	if cfg.YouTubeOAuthEnabled() {
		if st.db != nil {
			ytOAuth = youtubeapi.New(cfg, &db.TokenStoreAdapter{DB: st.db})
		} else {
			slog.Warn("YouTube OAuth needs STORAGE_BACKEND=postgres; disabled")
		}
	}

	router := &metadata.Router{
		YouTube: &youtubeapi.Client{
			APIKey: cfg.YouTubeAPIKey,
			KeyOverride: func(ctx context.Context) string {
				return kv.GetOr(ctx, settings, server.YouTubeKeySetting, "")
			},
			OAuth: ytOAuth,
		},
	}
	vimeo := vimeoapi.NewClient(ctx, cfg.VimeoAccessToken, cfg.VimeoClientID, cfg.VimeoClientSecret)
	if vimeo != nil {
		vimeo.PageClient = httpClient
		router.Vimeo = vimeo
	}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		tokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient}
		// Best-effort: fetch the app token up front so bad credentials show in the logs.
		tctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if tok, err := tokens.Get(tctx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()
		router.Twitch = &twitchapi.HelixClient{AppTokenSource: tokens, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}
	}

	deps := server.Deps{
		Config:       cfg,
		DB:           st.db,
		KV:           st.kv,
		Settings:     settings,
		Events:       events,
		Metadata:     router,
		History:      st.history,
		Routes:       st.routes,
		YouTubeOAuth: ytOAuth,
		Ping:         st.ping,
	}
	// a nil *vimeoapi.Client must not end up inside the interface
	if vimeo != nil {
		deps.Discoverer = vimeo
	}

	if cfg.RoutesFile != "" {
		n, err := shortlink.Import(ctx, st.routes, cfg.RoutesFile, false)
		if err != nil {
			slog.Error("failed to seed short links", slog.String("file", cfg.RoutesFile), slog.Any("err", err))
		} else {
			slog.Info("short links seeded", slog.String("file", cfg.RoutesFile), slog.Int("count", n))
		}
	}

	go history.StartRetentionJob(ctx, st.history, history.RetentionPolicy{
		MaxAge:     cfg.HistoryMaxAge,
		MaxEntries: cfg.HistoryMaxEntries,
		Interval:   cfg.HistoryPruneEvery,
		Refresh:    retentionOverrides(st.kv),
	})

	if ytOAuth != nil {
		oauth.StartRefresher(ctx, st.db, "youtube", 10*time.Minute, 20*time.Minute, ytOAuth.Refresh)
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	go func() {
		if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
}

// storage is the opened backend. db is set for postgres only, redis whenever
// a Redis connection exists (backend or event cache).
type storage struct {
	db      *sql.DB
	redis   *kv.Redis
	kv      kv.Store
	history history.Store
	routes  shortlink.Store
	ping    func(ctx context.Context) error
}

func (s *storage) close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			slog.Error("failed to close redis", slog.Any("err", err))
		}
	}
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	st := &storage{}
	if cfg.RedisAddr != "" {
		rdb, err := kv.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, "matchjump:")
		if err != nil {
			if cfg.StorageBackend == "redis" {
				return nil, err
			}
			slog.Warn("redis unavailable, event cache disabled", slog.Any("err", err))
		} else {
			st.redis = rdb
		}
	}

	switch cfg.StorageBackend {
	case "postgres":
		database, err := db.Connect(cfg.DBDsn)
		if err != nil {
			return nil, err
		}
		st.db = database
		if err := migrate(ctx, database); err != nil {
			st.close()
			return nil, err
		}
		db.ReportPoolMetrics(ctx, database, 15*time.Second)
		st.kv = &kv.Postgres{DB: database}
		st.history = &history.Postgres{DB: database}
		st.routes = &shortlink.Postgres{DB: database}
		st.ping = database.PingContext
	case "redis":
		st.kv = st.redis
		st.history = history.NewMemory()
		st.routes = shortlink.NewMemory()
		st.ping = func(ctx context.Context) error { return st.redis.Client.Ping(ctx).Err() }
		slog.Warn("history and short links are kept in memory with STORAGE_BACKEND=redis")
	default:
		st.kv = kv.NewMemory()
		st.history = history.NewMemory()
		st.routes = shortlink.NewMemory()
		slog.Warn("STORAGE_BACKEND=memory: nothing survives a restart")
	}
	slog.Info("storage ready", slog.String("backend", cfg.StorageBackend), slog.Bool("event_cache", st.redis != nil))
	return st, nil
}

// migrate runs the versioned migrations and falls back to the embedded
// idempotent SQL when they cannot run.
func migrate(ctx context.Context, database *sql.DB) error {
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	err := db.RunMigrations(database)
	if err == nil {
		slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
		return nil
	}
	slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
		slog.Any("err", err),
		slog.String("component", "db_migrate"))
	if ferr := db.Migrate(ctx, database); ferr != nil {
		return errors.Join(err, ferr)
	}
	slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	return nil
}

// retentionOverrides applies the HISTORY_* runtime config overrides.
func retentionOverrides(store kv.Store) func(context.Context, history.RetentionPolicy) history.RetentionPolicy {
	return func(ctx context.Context, p history.RetentionPolicy) history.RetentionPolicy {
		if n, err := strconv.Atoi(kv.GetOr(ctx, store, "cfg:HISTORY_MAX_ENTRIES", "")); err == nil && n > 0 {
			p.MaxEntries = n
		}
		if n, err := strconv.Atoi(kv.GetOr(ctx, store, "cfg:HISTORY_MAX_AGE_DAYS", "")); err == nil && n > 0 {
			p.MaxAge = time.Duration(n) * 24 * time.Hour
		}
		return p
	}
}
