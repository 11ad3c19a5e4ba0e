package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/courtclub/internal/booking"
	"github.com/MarkoPoloResearchLab/courtclub/internal/funding"
	"github.com/MarkoPoloResearchLab/courtclub/internal/httpapi"
	"github.com/MarkoPoloResearchLab/courtclub/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/ledger"
	"github.com/MarkoPoloResearchLab/courtclub/pkg/roster"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL       = "database-url"
	flagListenAddr        = "listen-addr"
	flagAllowedOrigins    = "allowed-origins"
	flagSessionSigningKey = "session-signing-key"
	flagSessionIssuer     = "session-issuer"
	flagSessionCookieName = "session-cookie-name"
	flagTopUpWebhookKey   = "topup-webhook-key"
	flagFloorCents        = "floor-cents"

	configKeyDatabaseURL       = "database_url"
	configKeyListenAddr        = "listen_addr"
	configKeyAllowedOrigins    = "allowed_origins"
	configKeySessionSigningKey = "session_signing_key"
	configKeySessionIssuer     = "session_issuer"
	configKeySessionCookieName = "session_cookie_name"
	configKeyTopUpWebhookKey   = "topup_webhook_key"
	configKeyFloorCents        = "floor_cents"

	defaultDatabaseURL = "sqlite:///tmp/courtclub.db"
	defaultListenAddr  = ":8080"
	defaultFloorCents  = int64(0)
)

type runtimeConfig struct {
	DatabaseURL string
	HTTP        httpapi.Config
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "clubd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "clubd",
		Short:         "Club registration and wallet ledger server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or SQLite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated CORS origins")
	cmd.Flags().String(flagSessionSigningKey, "", "HMAC key validating session tokens")
	cmd.Flags().String(flagSessionIssuer, "", "expected session token issuer")
	cmd.Flags().String(flagSessionCookieName, "", "session cookie name")
	cmd.Flags().String(flagTopUpWebhookKey, "", "shared key authenticating top-up webhooks")
	cmd.Flags().Int64(flagFloorCents, defaultFloorCents, "default negative balance floor in cents (zero or negative)")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	bindings := map[string]string{
		configKeyDatabaseURL:       "CLUBD_DATABASE_URL",
		configKeyListenAddr:        "CLUBD_LISTEN_ADDR",
		configKeyAllowedOrigins:    "CLUBD_ALLOWED_ORIGINS",
		configKeySessionSigningKey: "CLUBD_SESSION_SIGNING_KEY",
		configKeySessionIssuer:     "CLUBD_SESSION_ISSUER",
		configKeySessionCookieName: "CLUBD_SESSION_COOKIE_NAME",
		configKeyTopUpWebhookKey:   "CLUBD_TOPUP_WEBHOOK_KEY",
		configKeyFloorCents:        "CLUBD_FLOOR_CENTS",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flags := map[string]string{
		configKeyDatabaseURL:       flagDatabaseURL,
		configKeyListenAddr:        flagListenAddr,
		configKeyAllowedOrigins:    flagAllowedOrigins,
		configKeySessionSigningKey: flagSessionSigningKey,
		configKeySessionIssuer:     flagSessionIssuer,
		configKeySessionCookieName: flagSessionCookieName,
		configKeyTopUpWebhookKey:   flagTopUpWebhookKey,
		configKeyFloorCents:        flagFloorCents,
	}
	for key, flag := range flags {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.HTTP = httpapi.Config{
		ListenAddr:        viper.GetString(configKeyListenAddr),
		AllowedOrigins:    httpapi.ParseAllowedOrigins(viper.GetString(configKeyAllowedOrigins)),
		SessionSigningKey: viper.GetString(configKeySessionSigningKey),
		SessionIssuer:     viper.GetString(configKeySessionIssuer),
		SessionCookieName: viper.GetString(configKeySessionCookieName),
		TopUpWebhookKey:   viper.GetString(configKeyTopUpWebhookKey),
		FloorCents:        viper.GetInt64(configKeyFloorCents),
	}
	return cfg.HTTP.Validate()
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()

	if err := gormstore.Migrate(gormDB); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	clock := func() int64 { return time.Now().UTC().Unix() }

	ledgerService, err := ledger.NewService(
		gormstore.NewLedger(gormDB),
		clock,
		ledger.WithOperationLogger(&zapOperationLogger{logger: logger}),
	)
	if err != nil {
		return fmt.Errorf("ledger service init: %w", err)
	}
	rosterService, err := roster.NewService(gormstore.NewRoster(gormDB), clock)
	if err != nil {
		return fmt.Errorf("roster service init: %w", err)
	}
	bookingService, err := booking.NewService(gormstore.NewBooking(gormDB), clock, logger, cfg.HTTP.FloorCents)
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}
	fundingService, err := funding.NewService(gormstore.NewFunding(gormDB), clock, logger)
	if err != nil {
		return fmt.Errorf("funding service init: %w", err)
	}

	server, err := httpapi.NewServer(cfg.HTTP, logger, httpapi.Services{
		Ledger:  ledgerService,
		Roster:  rosterService,
		Booking: bookingService,
		Funding: fundingService,
	})
	if err != nil {
		return fmt.Errorf("http server init: %w", err)
	}
	return server.Run(ctx)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "courtclub.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

// zapOperationLogger bridges the ledger operation log onto zap.
type zapOperationLogger struct {
	logger *zap.Logger
}

func (adapter *zapOperationLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID),
		zap.String("status", entry.Status),
	}
	if entry.EntryID != "" {
		fields = append(fields,
			zap.String("entry_id", entry.EntryID),
			zap.String("entry_type", entry.EntryType.String()),
			zap.Int64("amount_cents", entry.Amount.Int64()),
			zap.String("created_by", entry.CreatedBy),
		)
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("ledger operation failed", fields...)
		return
	}
	adapter.logger.Info("ledger operation", fields...)
}
