package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/enem-redacao/essay-form/internal/analysis"
	"github.com/enem-redacao/essay-form/internal/api"
	"github.com/enem-redacao/essay-form/internal/config"
	"github.com/enem-redacao/essay-form/internal/form"
	"github.com/enem-redacao/essay-form/internal/i18n"
	"github.com/enem-redacao/essay-form/internal/logging"
	"github.com/enem-redacao/essay-form/internal/session"
	"github.com/enem-redacao/essay-form/internal/storage"
	"github.com/enem-redacao/essay-form/internal/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// ConfigFileName is looked up next to the executable unless --config is given.
const ConfigFileName = "essay-form.config"

// CLI flags
var (
	configFlag   string
	portFlag     int
	apiURLFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "essay-form",
	Short: "Web form for submitting ENEM essays for automated analysis",
	Long: `Essay Form serves a page where a student pastes an essay or uploads a
photo/PDF of it, forwards the submission to the essay analysis API and shows
the extracted text and feedback.

Examples:
  essay-form
  essay-form --port 8080
  essay-form --api-url http://analysis:5004 --log-level debug`,
	SilenceUsage: true,
	RunE:         runServer,
}

func init() {
	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Path to the XML config file (default: next to the executable)")
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Port to listen on (overrides config)")
	rootCmd.Flags().StringVar(&apiURLFlag, "api-url", "", "Base URL of the essay analysis API (overrides config)")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, err := resolveConfigPath(configFlag)
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(cfg.Advanced.LogLevel)

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir(), cfg.Storage.MaxUploadBytes)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	client := analysis.NewClient(cfg.Analysis.BaseURL,
		analysis.WithUserAgent("essay-form/"+Version),
	)

	messages := i18n.Embedded().Lookup(cfg.Advanced.Locale)
	sessionMgr := session.NewManager(func(id string) *form.SubmissionForm {
		return form.New(client, fileStore,
			form.WithID(id),
			form.WithMessages(messages),
			form.WithTimeout(cfg.AnalysisTimeout()),
		)
	}, cfg.Session.MaxSessions)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go cleanupSessions(ctx, sessionMgr, cfg.CleanupInterval(), cfg.SessionTimeout())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupErrorHandling(e, cfg.Advanced.LogLevel == "debug")
	configureMiddleware(e, cfg)

	if err := web.RegisterStaticRoutes(e); err != nil {
		return fmt.Errorf("registering static routes: %w", err)
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Sessions:   sessionMgr,
		Store:      fileStore,
		Upstream:   client,
		Messages:   messages,
		Locale:     cfg.Advanced.Locale,
		CookieName: cfg.Session.CookieName,
		SessionTTL: cfg.SessionTimeout(),
		Version:    Version,
	})
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg)
	probeUpstream(ctx, client)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.Addr).Msg("Starting web server")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	sessionMgr.CloseAll()
	return nil
}

// resolveConfigPath defaults to the config file next to the executable.
func resolveConfigPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locating executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), ConfigFileName), nil
}

// applyFlags lets command line flags win over file and environment settings.
func applyFlags(cfg *config.AppConfig) {
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}
	if apiURLFlag != "" {
		cfg.Analysis.BaseURL = strings.TrimRight(apiURLFlag, "/")
	}
	if logLevelFlag != "" {
		cfg.Advanced.LogLevel = logLevelFlag
	}
}

func configureMiddleware(e *echo.Echo, cfg *config.AppConfig) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || strings.HasPrefix(path, "/static/")
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout:      time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper:      api.IsWebSocketRequest,
		ErrorMessage: "Request timeout",
	}))

	if cfg.Server.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level:   cfg.Server.CompressionLevel,
			Skipper: api.IsWebSocketRequest,
		}))
	}

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     origins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			AllowCredentials: origins[0] != "*",
		}))
	}
}

func cleanupSessions(ctx context.Context, mgr *session.Manager, every, maxAge time.Duration) {
	if every <= 0 || maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			mgr.CleanupOldSessions(maxAge)
		case <-ctx.Done():
			return
		}
	}
}

// probeUpstream logs whether the analysis API answers. The form still starts
// when it does not; submissions then fail with the fallback message.
func probeUpstream(ctx context.Context, client *analysis.Client) {
	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Str("url", client.BaseURL()).Msg("Analysis API not reachable")
		return
	}
	log.Info().Str("url", client.BaseURL()).Msg("Analysis API reachable")
}

func printBanner(configPath string, cfg *config.AppConfig) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           ENEM Essay Form Server                          ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  API:       %-46s║\n", cfg.Analysis.BaseURL)
	fmt.Printf("║  Uploads:   %-46s║\n", cfg.GetUploadDir())
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
