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

	"github.com/glebarez/sqlite"
	"github.com/kiranmghub/pos-stack-sub004/internal/httpserver"
	"github.com/kiranmghub/pos-stack-sub004/internal/store/gormstore"
	"github.com/kiranmghub/pos-stack-sub004/pkg/inventory"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	flagDatabaseURL        = "database-url"
	flagListenAddr         = "listen-addr"
	flagAllowedOrigins     = "allowed-origins"
	flagSweepInterval      = "sweep-interval"
	flagPOSBackorder       = "pos-backorder"
	flagLockWait           = "lock-wait"
	configKeyDatabaseURL   = "database_url"
	configKeyListenAddr    = "listen_addr"
	configKeyOrigins       = "allowed_origins"
	configKeySweepInterval = "sweep_interval"
	configKeyPOSBackorder  = "pos_backorder"
	configKeyLockWait      = "lock_wait"
	defaultDatabaseURL     = "sqlite:///tmp/inventory.db"
	defaultHTTPListenAddr  = ":8080"
	defaultSweepInterval   = 60 * time.Second
	defaultLockWait        = 2 * time.Second
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	AllowedOrigins []string
	SweepInterval  time.Duration
	POSBackorder   bool
	LockWait       time.Duration
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "inventoryd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "inventoryd",
		Short:         "Inventory ledger and reservation HTTP server",
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
	cmd.Flags().String(flagListenAddr, defaultHTTPListenAddr, "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-delimited CORS origins")
	cmd.Flags().Duration(flagSweepInterval, defaultSweepInterval, "reservation expiry sweep cadence")
	cmd.Flags().Bool(flagPOSBackorder, true, "allow POS reservations to exceed available quantity")
	cmd.Flags().Duration(flagLockWait, defaultLockWait, "maximum wait for a stock line lock before failing busy")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindEnv(configKeyDatabaseURL, "DATABASE_URL"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyListenAddr, "HTTP_LISTEN_ADDR"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyOrigins, "ALLOWED_ORIGINS"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeySweepInterval, "SWEEP_INTERVAL"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyPOSBackorder, "POS_BACKORDER"); err != nil {
		return err
	}
	if err := viper.BindEnv(configKeyLockWait, "LOCK_WAIT"); err != nil {
		return err
	}

	if err := viper.BindPFlag(configKeyDatabaseURL, cmd.Flags().Lookup(flagDatabaseURL)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyListenAddr, cmd.Flags().Lookup(flagListenAddr)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyOrigins, cmd.Flags().Lookup(flagAllowedOrigins)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeySweepInterval, cmd.Flags().Lookup(flagSweepInterval)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyPOSBackorder, cmd.Flags().Lookup(flagPOSBackorder)); err != nil {
		return err
	}
	if err := viper.BindPFlag(configKeyLockWait, cmd.Flags().Lookup(flagLockWait)); err != nil {
		return err
	}

	cfg.DatabaseURL = viper.GetString(configKeyDatabaseURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListenAddr)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultHTTPListenAddr
	}
	cfg.AllowedOrigins = httpserver.ParseAllowedOrigins(viper.GetString(configKeyOrigins))
	cfg.SweepInterval = viper.GetDuration(configKeySweepInterval)
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	cfg.POSBackorder = viper.GetBool(configKeyPOSBackorder)
	cfg.LockWait = viper.GetDuration(configKeyLockWait)
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	return nil
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
	defer cleanup()

	if err := prepareSchema(ctx, gormDB); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }
	inventoryService, err := inventory.NewService(store, clock,
		inventory.WithOperationLogger(inventory.NewZapOperationLogger(logger)),
		inventory.WithVariantResolver(store),
		inventory.WithChannelPolicy(inventory.NewChannelPolicy(map[inventory.Channel]bool{
			inventory.ChannelPOS: cfg.POSBackorder,
		})),
		inventory.WithLockWait(cfg.LockWait),
	)
	if err != nil {
		return fmt.Errorf("inventory service init: %w", err)
	}

	sweeper := inventory.NewExpirySweeper(inventoryService, logger,
		inventory.WithSweepInterval(cfg.SweepInterval),
	)
	go sweeper.Run(ctx)

	return httpserver.Run(ctx, httpserver.Config{
		ListenAddr:     cfg.ListenAddr,
		AllowedOrigins: cfg.AllowedOrigins,
	}, inventoryService, logger)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	gormCfg := &gorm.Config{}
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormCfg)
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
			path = "inventory.db"
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

func prepareSchema(ctx context.Context, db *gorm.DB) error {
	if err := db.AutoMigrate(gormstore.Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	store := gormstore.New(db)
	if err := store.SeedReasons(ctx, inventory.DefaultReasons()); err != nil {
		return fmt.Errorf("seed reasons: %w", err)
	}
	return nil
}
