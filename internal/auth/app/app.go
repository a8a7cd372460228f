package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-webauthn/webauthn/webauthn"
	goredis "github.com/redis/go-redis/v9"

	httpapi "github.com/sydsec/gatehouse/internal/auth/http"
	"github.com/sydsec/gatehouse/internal/auth/notify"
	"github.com/sydsec/gatehouse/internal/auth/service"
	"github.com/sydsec/gatehouse/internal/auth/store"
	redisdriver "github.com/sydsec/gatehouse/internal/auth/store/drivers/redis"
	"github.com/sydsec/gatehouse/internal/auth/store/drivers/sqlite"
	"github.com/sydsec/gatehouse/pkg/cryptox"
	"github.com/sydsec/gatehouse/pkg/jwtx"
	"github.com/sydsec/gatehouse/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application wires the authentication service together: store, services,
// router, background sweeper and the HTTP server lifecycle.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	challenges store.Challenges
	redis      *goredis.Client // nil unless the redis challenge backend is active

	tokenService      *service.TokenService
	credentialService *service.CredentialService
	webauthnService   *service.WebAuthnService
	pushService       *service.PushService
	sweeperService    *service.SweeperService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "gatehouse",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initChallenges(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.sweeperService.Start()

	app.logger.Info("gatehouse starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown stops the HTTP server, the sweeper and the stores, giving
// outstanding requests a deadline to complete.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down gatehouse...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.sweeperService.Stop()

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("gatehouse stopped")
	return nil
}

func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	app.db = db
	return nil
}

// initChallenges selects the ceremony-challenge backend. The sqlite store
// doubles as the default; redis replaces just that slot when configured.
func (app *Application) initChallenges() error {
	switch app.cfg.ChallengeBackend {
	case "", "sqlite":
		app.challenges = app.db.Challenges()
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: app.cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", app.cfg.RedisAddr, err)
		}
		app.redis = client
		app.challenges = redisdriver.NewChallenges(client)
	default:
		return fmt.Errorf("unknown challenge backend %q", app.cfg.ChallengeBackend)
	}
	return nil
}

func (app *Application) initServices() error {
	secret := []byte(app.cfg.TokenSecret)
	if len(secret) == 0 {
		// Ephemeral key: all tokens die with the process. Fine for dev,
		// set GATEHOUSE_TOKEN_SECRET in prod.
		generated, err := cryptox.GenerateBytes(cryptox.TokenSize256)
		if err != nil {
			return fmt.Errorf("failed to generate token secret: %w", err)
		}
		secret = generated
		app.logger.Warn("no token secret configured, using an ephemeral key")
	}

	codec, err := jwtx.NewCodec(secret, app.cfg.Issuer)
	if err != nil {
		return fmt.Errorf("failed to create token codec: %w", err)
	}

	app.tokenService = &service.TokenService{
		Codec:      codec,
		PendingTTL: app.cfg.PendingTokenTTL,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
	}

	app.credentialService = &service.CredentialService{
		Store:  app.db,
		Tokens: app.tokenService,
		Issuer: app.cfg.Issuer,
	}

	rp, err := webauthn.New(&webauthn.Config{
		RPID:          app.cfg.RPID,
		RPDisplayName: app.cfg.RPName,
		RPOrigins:     app.cfg.RPOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create webauthn relying party: %w", err)
	}

	app.webauthnService = &service.WebAuthnService{
		Store:      app.db,
		Challenges: app.challenges,
		RP:         rp,
		Tokens:     app.tokenService,
	}

	app.pushService = &service.PushService{
		Store:  app.db,
		Hub:    notify.NewHub(),
		Tokens: app.tokenService,
	}

	app.sweeperService = service.NewSweeperService(app.db, app.challenges, app.logger, app.cfg.SweepInterval)
	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(app.logger)
	router.TokenService = app.tokenService
	router.CredentialService = app.credentialService
	router.WebAuthnService = app.webauthnService
	router.PushService = app.pushService
	router.ApplyRoutes()

	app.router = router
	app.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", app.cfg.Port),
		Handler: router,
	}
}
