package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zapleads/zapleads/internal/controller"
	"github.com/zapleads/zapleads/internal/engine"
	"github.com/zapleads/zapleads/internal/messaging"
	"github.com/zapleads/zapleads/internal/scheduler"
	"github.com/zapleads/zapleads/internal/store"
	"github.com/zapleads/zapleads/internal/util"
	"github.com/zapleads/zapleads/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ZapLeads state data
	DefaultStateDir = "/var/lib/zapleads"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "zapleads.db"
	// DefaultWhatsAppDBFileName holds the WhatsApp client's own session store
	DefaultWhatsAppDBFileName = "whatsapp.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping ZapLeads with configured modules")
	if err := run(config, flags); err != nil {
		slog.Error("ZapLeads failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ZapLeads exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL string
	WhatsAppDSN string
	StateDir    string
	OpenAIKey   string
	OpenAIModel string
	NumericCode bool
	Controller  controller.Config
}

// Flags holds command line flag values
type Flags struct {
	qrOutput    *string
	numeric     *bool
	stateDir    *string
	dbDSN       *string
	waDSN       *string
	openaiKey   *string
	openaiModel *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	cc := controller.DefaultConfig()
	cc.TriggerPhrases = util.ParseListEnv("TRIGGER_PHRASES", cc.TriggerPhrases)
	cc.FirstReminderDelay = util.ParseDurationEnv("FIRST_REMINDER_DELAY", cc.FirstReminderDelay)
	cc.FollowUpInterval = util.ParseDurationEnv("FOLLOW_UP_INTERVAL", cc.FollowUpInterval)
	cc.MaxFollowUps = util.ParseIntEnv("MAX_FOLLOW_UPS", cc.MaxFollowUps)
	cc.ExpiryWindow = util.ParseDurationEnv("LEAD_EXPIRY_WINDOW", cc.ExpiryWindow)
	cc.PruneGrace = util.ParseDurationEnv("SESSION_PRUNE_GRACE", cc.PruneGrace)
	cc.EchoCapacity = util.ParseIntEnv("ECHO_GUARD_CAPACITY", cc.EchoCapacity)
	cc.HotLabelID = os.Getenv("HOT_LABEL_ID")
	cc.ColdLabelID = os.Getenv("COLD_LABEL_ID")
	cc.PrimaryOwnerEmail = os.Getenv("PRIMARY_OWNER_EMAIL")
	cc.OwnerNameHint = os.Getenv("OWNER_NAME_HINT")
	if spec := os.Getenv("SWEEP_SCHEDULE"); spec != "" {
		cc.SweepSpec = spec
	}

	config := Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		WhatsAppDSN: os.Getenv("WHATSAPP_DB_DSN"),
		StateDir:    os.Getenv("ZAPLEADS_STATE_DIR"),
		OpenAIKey:   os.Getenv("OPENAI_API_KEY"),
		OpenAIModel: os.Getenv("OPENAI_MODEL"),
		NumericCode: util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		Controller:  cc,
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No ZAPLEADS_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
		slog.Debug("No WHATSAPP_DB_DSN provided, defaulting to SQLite", "sqlite_path", config.WhatsAppDSN)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"ZAPLEADS_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"SWEEP_SCHEDULE", cc.SweepSpec)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:    flag.String("qr-output", "", "path to write login QR code"),
		numeric:     flag.Bool("numeric-code", config.NumericCode, "use numeric login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:    flag.String("state-dir", config.StateDir, "state directory for ZapLeads data (overrides $ZAPLEADS_STATE_DIR)"),
		dbDSN:       flag.String("db-dsn", config.DatabaseURL, "database DSN for the lead store (overrides $DATABASE_URL)"),
		waDSN:       flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the WhatsApp session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:   flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		openaiModel: flag.String("openai-model", config.OpenAIModel, "OpenAI model name (overrides $OPENAI_MODEL)"),
	}

	flag.Parse()

	// Follow the state directory when the DSNs were left at their defaults.
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if *flags.waDSN == filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) {
			*flags.waDSN = filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName)
		}
	}

	slog.Debug("flags parsed",
		"qrOutput", *flags.qrOutput,
		"numeric", *flags.numeric,
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"waDSN_set", *flags.waDSN != "",
		"openaiKeySet", *flags.openaiKey != "")

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	for _, dsn := range []string{*flags.dbDSN, *flags.waDSN} {
		if strings.Contains(dsn, "postgres://") || strings.Contains(dsn, "host=") {
			continue
		}
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", dir)
			return err
		}
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return err
	}
	defer st.Close()

	var engineOpts []engine.EngineOption
	if *flags.openaiModel != "" {
		engineOpts = append(engineOpts, engine.WithModel(*flags.openaiModel))
	}
	eng, err := engine.NewOpenAIEngine(*flags.openaiKey, st, engineOpts...)
	if err != nil {
		return err
	}

	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.waDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	client, err := whatsapp.NewClient(waOpts...)
	if err != nil {
		return err
	}

	transport := messaging.NewWhatsAppService(client)
	if err := transport.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := transport.Stop(); err != nil {
			slog.Error("Transport stop failed", "error", err)
		}
	}()

	ctrl := controller.New(config.Controller, st, eng, transport)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := ctrl.StartSweep(ctx, sched); err != nil {
		return err
	}

	slog.Info("ZapLeads running", "sweep_schedule", config.Controller.SweepSpec)
	ctrl.Run(ctx)
	return nil
}
