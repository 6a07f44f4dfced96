package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/config"
	"github.com/tallyhq/tally/internal/database"
	"github.com/tallyhq/tally/internal/importer"
	"github.com/tallyhq/tally/internal/logging"
	"github.com/tallyhq/tally/internal/maintenance"
	"github.com/tallyhq/tally/internal/web"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// CLI flags
var (
	port        int
	bind        string
	allowSubnet string
	dbPath      string
	importDir   string
	logFile     string
	verbosity   int
	dev         bool

	// Advanced
	websocketPing time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tally",
		Short: "Tally - Token accounting server",
		Long:  `Tally is a per-user token-accounting server: Google sign-in credits accounts, consumption debits them.`,
		RunE:  run,
	}

	// Flags
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().StringVarP(&dbPath, "db", "d", "./tally.db", "SQLite database path (or set DB_PATH env var; DB_HOST switches to MySQL)")
	rootCmd.Flags().StringVar(&importDir, "import-dir", "", "Directory watched for bulk token-grant files (or set IMPORT_DIR env var)")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Log file path (defaults to alongside the database)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	rootCmd.Flags().BoolVar(&dev, "dev", false, "Development mode (insecure cookies)")

	rootCmd.Flags().DurationVar(&websocketPing, "websocket-ping", 30*time.Second, "Interval between WebSocket keepalive pings")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tally %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// Local .env is optional
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env file")
	}

	// Check for PORT env var if flag not set
	if port == 0 {
		if envPort := os.Getenv("PORT"); envPort != "" {
			if _, err := fmt.Sscanf(envPort, "%d", &port); err != nil {
				return fmt.Errorf("invalid PORT environment variable %q: %w", envPort, err)
			}
		}
	}

	// Check for DB_PATH env var if using default
	if dbPath == "./tally.db" {
		if envDB := os.Getenv("DB_PATH"); envDB != "" {
			dbPath = envDB
		}
	}

	if importDir == "" {
		importDir = os.Getenv("IMPORT_DIR")
	}

	// Validate port
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	// Validate bind address if provided
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	// Validate and parse allow-subnet if provided
	var allowedNet *net.IPNet
	if allowSubnet != "" {
		_, parsedNet, err := net.ParseCIDR(allowSubnet)
		if err != nil {
			return fmt.Errorf("invalid allow-subnet CIDR: %s", allowSubnet)
		}
		allowedNet = parsedNet
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	cfg.DBPath = dbPath

	// Warn if binding to all interfaces without an allow list
	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("db_driver", cfg.DBDriver).
		Msg("Starting Tally")

	// Initialize database
	db, err := database.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Setup logging (console + rotating file, tunables from settings)
	if logFile == "" {
		logFile = logging.FilePathForDB(dbPath)
	}
	logging.Setup(verbosity, config.NewLoader(db), logFile)

	// Bootstrap admin credentials
	authService := auth.NewService(db)
	apiKey, generated, err := authService.EnsureAdminCredentials(cfg.AdminPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap admin credentials")
	}
	if generated {
		// Logged once so the operator can capture it
		log.Info().Str("api_key", apiKey).Msg("Generated admin API key")
	}

	// Google sign-in is optional; without it only admin routes work
	var google *auth.GoogleVerifier
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		google, err = auth.NewGoogleVerifier(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to configure Google sign-in")
		}
	} else {
		log.Warn().Msg("Google sign-in not configured (GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET); /auth routes disabled")
	}

	// Create web server
	server := web.NewServer(db, authService, google, web.Options{
		Port:         port,
		Bind:         bind,
		AllowedNet:   allowedNet,
		AdminUser:    cfg.AdminUser,
		PingInterval: websocketPing,
		IsDev:        dev,
	})

	// Start maintenance scheduler
	maintenanceMgr := maintenance.New(db)
	if err := maintenanceMgr.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start maintenance scheduler")
	}
	defer maintenanceMgr.Stop()

	// Start grant importer if an import directory is configured
	grantImporter, err := importer.New(db, server.Broker(), importDir)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize grant importer")
	} else {
		defer grantImporter.Stop()
		if started, err := grantImporter.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start grant importer")
		} else if !started {
			log.Debug().Msg("Grant importer not started (no import directory configured)")
		}
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server error")
	}

	log.Info().Msg("Tally stopped")
	return nil
}
