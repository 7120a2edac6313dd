package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"speech-translate-relay/internal/config"
	"speech-translate-relay/internal/events"
	httpapi "speech-translate-relay/internal/http"
	"speech-translate-relay/internal/observability"
	"speech-translate-relay/internal/observability/logging"
	"speech-translate-relay/internal/observability/metrics"
	"speech-translate-relay/internal/service/relay"
	"speech-translate-relay/internal/service/session"
	"speech-translate-relay/internal/service/stt"
	"speech-translate-relay/internal/service/stt/gladia"
	"speech-translate-relay/internal/service/stt/google"
	"speech-translate-relay/internal/service/stt/mock"
	"speech-translate-relay/internal/service/translation"
)

const shutdownTimeout = 15 * time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry  *session.Registry
	Upstream  *stt.Manager
	Relay     *relay.Relay
	Publisher *events.Publisher
	Sweeper   *session.Sweeper

	closers []func() error
	http    *http.Server
	obs     *observability.Server
}

// New wires every component from cfg. Only provider construction can fail.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}
	m := metrics.DefaultMetrics

	provider, err := a.newProvider(ctx)
	if err != nil {
		return nil, err
	}
	translator := a.newTranslator()

	a.Publisher = events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.TopicLifecycle,
		Principal: cfg.Kafka.Principal,
		Metrics:   m,
	})

	a.Registry = session.NewRegistry(nil)
	a.Upstream = stt.NewManager(provider, stt.Config{
		CreateTimeout: cfg.STT.CreateTimeout,
		Metrics:       m,
	})
	a.Relay = relay.New(a.Registry, a.Upstream, translator, relay.Config{
		ForwardPartials: cfg.Relay.ForwardPartials,
		Provider:        provider.Name(),
		Metrics:         m,
		Publisher:       a.Publisher,
	})
	a.Sweeper = session.NewSweeper(a.Registry, cfg.Session.SweepInterval, cfg.Session.MaxAge, a.Relay.Teardown)

	a.http = &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           httpapi.NewRouter(a.Relay),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.obs = observability.NewServer(":"+cfg.Observability.MetricsPort, func() bool {
		return !a.StartupTime.IsZero()
	})

	a.Logger.Info().
		Str("method", "New").
		Str("sttProvider", provider.Name()).
		Str("translator", cfg.Translation.Provider).
		Bool("forwardPartials", cfg.Relay.ForwardPartials).
		Msg("Speech translate relay application created")
	return a, nil
}

func (a *Application) newProvider(ctx context.Context) (stt.Provider, error) {
	cfg := a.Cfg.STT
	switch cfg.Provider {
	case "gladia":
		if cfg.GladiaAPIKey == "" {
			return nil, errors.New("STT_PROVIDER=gladia requires GLADIA_API_KEY")
		}
		return gladia.New(gladia.Config{
			APIKey:  cfg.GladiaAPIKey,
			BaseURL: cfg.GladiaBaseURL,
			Model:   cfg.GladiaModel,
		}), nil
	case "google":
		p, err := google.New(ctx, google.Config{CredentialsFile: cfg.GoogleCredentialsFile})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	case "mock":
		a.Logger.Warn().Msg("Using mock transcription provider")
		return mock.New(), nil
	default:
		return nil, fmt.Errorf("unknown STT_PROVIDER %q", cfg.Provider)
	}
}

func (a *Application) newTranslator() translation.Translator {
	cfg := a.Cfg.Translation
	if cfg.Provider == "deepl" && cfg.DeepLAPIKey != "" {
		return translation.NewDeepL(translation.DeepLConfig{
			APIKey:  cfg.DeepLAPIKey,
			BaseURL: cfg.DeepLURL,
			Timeout: cfg.Timeout,
		})
	}
	if cfg.Provider == "deepl" {
		a.Logger.Warn().Msg("DEEPL_API_KEY not set, falling back to dictionary translator")
	}
	return translation.NewDictionary()
}

// Run serves browser traffic, observability endpoints and the session sweeper
// until ctx is done or one of them fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	startLogger := a.Logger.With().Str("method", "Run").Logger()

	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.http.Addr, err)
	}
	a.http.BaseContext = func(net.Listener) context.Context { return ctx }

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("addr", a.http.Addr).
		Msg("Speech translate relay starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(a.obs.ListenAndServe)
	g.Go(func() error { return a.Sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		a.Shutdown()
		return nil
	})
	return g.Wait()
}

// Shutdown stops accepting connections, tears down live sessions and flushes
// lifecycle events. Errors are logged only.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().Str("method", "Shutdown").Logger()
	shutdownLogger.Info().Int("activeSessions", a.Registry.Len()).Msg("Speech translate relay shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	a.Relay.Shutdown(ctx)
	a.Upstream.Shutdown(ctx)
	if err := a.obs.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Observability server shutdown")
	}
	if err := a.Publisher.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Lifecycle publisher close")
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Provider close")
		}
	}
}
