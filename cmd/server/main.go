// server runs the back-office authentication HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"backoffice/authcore/internal/app"
	"backoffice/authcore/internal/audit"
	auditrepo "backoffice/authcore/internal/audit/repository"
	"backoffice/authcore/internal/config"
	"backoffice/authcore/internal/db"
	devicerepo "backoffice/authcore/internal/device/repository"
	healthhandler "backoffice/authcore/internal/health/handler"
	identityrepo "backoffice/authcore/internal/identity/repository"
	"backoffice/authcore/internal/logging"
	membershiprepo "backoffice/authcore/internal/membership/repository"
	mfarepo "backoffice/authcore/internal/mfa/repository"
	"backoffice/authcore/internal/platform/async"
	policyrepo "backoffice/authcore/internal/policy/repository"
	"backoffice/authcore/internal/ratelimit"
	"backoffice/authcore/internal/security"
	"backoffice/authcore/internal/server"
	sessionrepo "backoffice/authcore/internal/session/repository"
	telemetryotel "backoffice/authcore/internal/telemetry/otel"
	"backoffice/authcore/internal/telemetry/producer"
	tenantrepo "backoffice/authcore/internal/tenant/repository"
	userrepo "backoffice/authcore/internal/user/repository"
)

const serviceName = "backoffice-authcore"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New(os.Stderr, "info", false)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := logging.New(os.Stderr, cfg.LogLevel, !cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	secret, err := security.LoadSecret(cfg.AuthSecret)
	if err != nil {
		if cfg.IsProduction() {
			return err
		}
		log.Warn().Msg("AUTH_SECRET not set; using an ephemeral development secret")
		secret = []byte(ephemeralSecret())
	}
	keys := security.NewKeys(secret, serviceName, []byte(cfg.FingerprintSalt))

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure, log)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			log.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()
	instruments, err := telemetryotel.NewInstruments(providers.MeterProvider.Meter(serviceName))
	if err != nil {
		return err
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	redisClient, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	limiter := ratelimit.New(redisClient, "authcore")

	// Access events fan out to Postgres, Kafka when configured, and the OTel log pipeline.
	sinks := audit.MultiSink{audit.SinkFunc(auditrepo.NewPostgresRepository(conn).Create)}
	if kp := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.AccessEventTopic); kp != nil {
		defer kp.Close()
		sinks = append(sinks, kp)
	}
	if cfg.OTLPEndpoint != "" {
		sinks = append(sinks, telemetryotel.NewEventSink(providers.LoggerProvider))
	}
	dispatcher := audit.NewDispatcher(instruments.CountingSink(sinks), cfg.AuditBufferSize, log)
	defer dispatcher.Close()

	tasks := async.NewRunner(log, async.DefaultTimeout)
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tasks.Wait(wctx)
	}()

	stores := app.Stores{
		Users:         userrepo.NewPostgresRepository(conn),
		Identities:    identityrepo.NewPostgresRepository(conn),
		Sessions:      sessionrepo.NewPostgresRepository(conn),
		Devices:       devicerepo.NewPostgresRepository(conn),
		Memberships:   membershiprepo.NewPostgresRepository(conn),
		Tenants:       tenantrepo.NewPostgresRepository(conn),
		RecoveryCodes: mfarepo.NewPostgresRepository(conn),
		Policies:      policyrepo.NewPostgresRepository(conn),
	}
	svcs, err := app.Build(ctx, stores, keys, limiter, audit.NewLogger(dispatcher), tasks, log, app.Options{
		BcryptCost:       cfg.BcryptCost,
		SessionMaxAge:    cfg.SessionMaxAge(),
		TouchInterval:    cfg.SessionTouchInterval(),
		AssertionTTL:     cfg.MFAAssertionTTL(),
		ReauthMaxAge:     cfg.ReauthMaxAge(),
		ImpersonationTTL: cfg.ImpersonationTTL(),
		StoreTimeout:     cfg.StoreTimeout(),
		LoginIPLimit:     cfg.LoginIPLimit,
		LoginEmailLimit:  cfg.LoginEmailLimit,
		MFAAttemptLimit:  cfg.MFAAttemptLimit,
		RateWindow:       cfg.RateWindow(),
		TOTPIssuer:       cfg.TOTPIssuer,
		SecureCookies:    cfg.SecureCookies(),
	})
	if err != nil {
		return err
	}

	deps := svcs.Deps
	deps.Log = logging.Service(log, "http")
	deps.Metrics = instruments
	deps.TracerProvider = providers.TracerProvider
	deps.Health = healthhandler.NewHandler(conn, healthhandler.CheckFunc(limiter.Ping), svcs.Policy)
	srv, err := server.New(cfg.HTTPAddr, deps)
	if err != nil {
		return err
	}

	errc := srv.Start()
	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down http server")
	if err := srv.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	log.Info().Msg("http server stopped")
	return nil
}
