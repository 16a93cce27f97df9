package main // Entry point package

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iliyamo/egfr-calculator/internal/auth"
	"github.com/iliyamo/egfr-calculator/internal/clinical"
	"github.com/iliyamo/egfr-calculator/internal/config"
	"github.com/iliyamo/egfr-calculator/internal/database"
	"github.com/iliyamo/egfr-calculator/internal/handler"
	"github.com/iliyamo/egfr-calculator/internal/middleware"
	"github.com/iliyamo/egfr-calculator/internal/queue"
	"github.com/iliyamo/egfr-calculator/internal/repository"
	"github.com/iliyamo/egfr-calculator/internal/router"
	"github.com/iliyamo/egfr-calculator/internal/service"
)

func main() {
	root := &cobra.Command{
		Use:           "egfr",
		Short:         "eGFR calculator backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), calcCmd(), migrateProfilesCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads .env (when present) and the configuration, and builds the
// process logger.
func setup() (config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.Env == "dev" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	log = log.Level(level).With().Timestamp().Str("service", "egfr").Logger()
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(parent context.Context, cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	store, err := database.OpenStore(openCtx, cfg, log)
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if err := store.Close(cctx); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	rdb := config.NewRedisClient(log)
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(store)
	sessions := repository.NewSessionRepo(store)
	profiles := repository.NewProfileRepo(store)
	analyses := repository.NewAnalysisRepo(store)

	authSvc := auth.NewService(users, sessions, auth.Config{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}, log)
	unsubscribe := authSvc.Subscribe(auth.ListenerFunc(func(u *auth.CurrentUser) {
		if u == nil {
			log.Info().Msg("identity cleared")
			return
		}
		log.Info().Str("user_id", u.ID).Msg("identity changed")
	}))
	defer unsubscribe()

	var publisher queue.Publisher = queue.NopPublisher{}
	if cfg.AMQPURL != "" {
		publisher = queue.NewAMQPPublisher(cfg.AMQPURL, log)
	}
	analysisSvc := &service.AnalysisService{
		Analyses:   analyses,
		Profiles:   profiles,
		Builder:    clinical.RecordBuilder{RequireAnthropometrics: cfg.RequireAnthropometrics()},
		Publisher:  publisher,
		Projection: service.NewRedisStatsCache(rdb, cfg.StatsTTL, log),
		Log:        log.With().Str("component", "analyses").Logger(),
	}
	profileSvc := &service.ProfileService{Profiles: profiles}

	consumerDone := make(chan struct{})
	if cfg.AMQPURL != "" {
		consumer := queue.NewConsumer(cfg.AMQPURL, analysisSvc.HandleEvent, log)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("event consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))

	router.RegisterAll(e, router.Handlers{
		Driver:    cfg.StoreDriver,
		Auth:      handler.NewAuthHandler(authSvc),
		EGFR:      handler.NewEGFRHandler(analysisSvc),
		Analyses:  handler.NewAnalysisHandler(analysisSvc),
		Profiles:  handler.NewProfileHandler(profileSvc),
		Me:        &handler.MeHandler{Profiles: profileSvc, Analyses: analysisSvc},
		Authn:     authSvc,
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
		Cache:     middleware.NewResponseCache(config.LoadCacheConfig(), rdb, log),
	})

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("store", cfg.StoreDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stop()
			<-consumerDone
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer scancel()
	err = e.Shutdown(sctx)
	stop()
	<-consumerDone
	return err
}

func calcCmd() *cobra.Command {
	var form clinical.RawForm
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Calculate eGFR for one patient and print the result as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := (&service.AnalysisService{}).Calculate(form)
			if err != nil {
				for _, fe := range clinical.FieldErrors(err) {
					fmt.Fprintln(cmd.ErrOrStderr(), fe.Error())
				}
				return errors.New("invalid input")
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&form.Sex, "sex", "", "male or female")
	f.StringVar(&form.Age, "age", "", "age in years")
	f.StringVar(&form.Creatinine, "creatinine", "", "serum creatinine")
	f.StringVar(&form.CreatinineUnit, "unit", "umol/L", "creatinine unit: umol/L or mg/dL")
	f.StringVar(&form.Height, "height", "", "height in cm")
	f.StringVar(&form.Weight, "weight", "", "weight in kg")
	f.StringVar(&form.Formula, "formula", "", "ckd-epi-2021 (default) or ckd-epi-2009")
	f.StringVar(&form.Race, "race", "", "black or other, read by ckd-epi-2009 only")
	return cmd
}

func migrateProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-profiles",
		Short: "Re-key legacy profiles by their owner's user id",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := database.OpenStore(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())

			rep, err := repository.NewProfileRepo(store).MigrateKeys(ctx)
			for _, e := range rep.Errors {
				log.Warn().Err(e).Msg("profile not migrated")
			}
			log.Info().Int("total", rep.Total).Int("migrated", rep.Migrated).
				Int("skipped", rep.Skipped).Int("failed", rep.Failed).Msg("profile migration finished")
			return err
		},
	}
}
