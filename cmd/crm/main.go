package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/api"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/calendar"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/events"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/flow"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/genai"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/messaging"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/prompts"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/store"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/util"
	"github.com/dorivaldermetrio-hash/crm-sub001/internal/whatsapp"
)

// Default configuration constants.
const (
	// DefaultStateDir is the default directory for CRM state data.
	DefaultStateDir = "/var/lib/crm"
	// DefaultDBFileName is the default SQLite database filename.
	DefaultDBFileName = "crm.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow SQLite filename.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultPromptsDirName is the default prompt template directory.
	DefaultPromptsDirName = "prompts"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := os.MkdirAll(*flags.stateDir, 0o755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", *flags.stateDir)
		os.Exit(1)
	}

	if err := run(flags, config); err != nil {
		slog.Error("CRM failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("CRM exited successfully")
}

// Config holds environment configuration.
type Config struct {
	DatabaseURL    string
	StateDir       string
	PromptsDir     string
	OpenAIKey      string
	OpenAIModel    string
	APIAddr        string
	ProductInfo    string
	DebounceWindow time.Duration
	LLMTimeout     time.Duration
	HistoryLimit   int
	WhatsAppOn     bool
	WhatsAppDSN    string
	TelegramToken  string
	TwilioSID      string
	TwilioToken    string
	TwilioFrom     string
}

// Flags holds command line flag values.
type Flags struct {
	stateDir   *string
	dbDSN      *string
	prompts    *string
	openaiKey  *string
	apiAddr    *string
	qrOutput   *string
	numeric    *bool
	whatsappOn *bool
}

// initializeLogger sets up structured logging.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("CRM_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and a
// .env file when present.
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("CRM_STATE_DIR"),
		PromptsDir:     os.Getenv("CRM_PROMPTS_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		APIAddr:        os.Getenv("API_ADDR"),
		ProductInfo:    os.Getenv("CRM_PRODUCT_INFO"),
		DebounceWindow: util.ParseDurationEnv("CRM_DEBOUNCE_WINDOW", flow.DefaultDebounceWindow),
		LLMTimeout:     util.ParseDurationEnv("CRM_LLM_TIMEOUT", flow.DefaultLLMTimeout),
		HistoryLimit:   util.ParseIntEnv("CRM_HISTORY_LIMIT", flow.DefaultHistoryLimit),
		WhatsAppOn:     util.ParseBoolEnv("WHATSAPP_ENABLED", true),
		WhatsAppDSN:    os.Getenv("WHATSAPP_DB_DSN"),
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TwilioSID:      os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:     os.Getenv("TWILIO_FROM_NUMBER"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.PromptsDir == "" {
		config.PromptsDir = filepath.Join(config.StateDir, DefaultPromptsDirName)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	return config
}

// parseCommandLineFlags parses command line arguments with environment
// defaults.
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for CRM data (overrides $CRM_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		prompts:    flag.String("prompts-dir", config.PromptsDir, "prompt template directory (overrides $CRM_PROMPTS_DIR)"),
		openaiKey:  flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		qrOutput:   flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:    flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		whatsappOn: flag.Bool("whatsapp", config.WhatsAppOn, "enable the native WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
	}
	flag.Parse()
	return flags
}

// run wires every module and serves until interrupted.
func run(flags Flags, config Config) error {
	st, err := store.New(store.WithDSN(*flags.dbDSN))
	if err != nil {
		return err
	}
	defer st.Close()

	templates, err := prompts.NewStore(*flags.prompts)
	if err != nil {
		return err
	}
	defer templates.Close()
	if err := templates.Watch(); err != nil {
		slog.Warn("Prompt hot reload unavailable", "error", err)
	}
	slog.Info("Prompt templates loaded", "dir", *flags.prompts, "names", templates.Names())

	genaiOpts := []genai.Option{genai.WithAPIKey(*flags.openaiKey)}
	if config.OpenAIModel != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(config.OpenAIModel))
	}
	llm, err := genai.NewClient(genaiOpts...)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	defer hub.Close()

	cal := calendar.NewService(st)
	registry := messaging.NewRegistry()

	engine := flow.NewEngine(st, llm, templates, cal, registry, hub,
		flow.WithDebounceWindow(config.DebounceWindow),
		flow.WithLLMTimeout(config.LLMTimeout),
		flow.WithEngineHistoryLimit(config.HistoryLimit),
		flow.WithEngineProductInfo(config.ProductInfo),
	)
	router := messaging.NewRouter(st, engine, hub)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flags.whatsappOn {
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return err
		}
		registry.Register(messaging.NewWhatsAppChannel(waClient))
	}
	if config.TelegramToken != "" {
		tg, err := messaging.NewTelegramChannel(config.TelegramToken)
		if err != nil {
			return err
		}
		registry.Register(tg)
	}
	if config.TwilioSID != "" && config.TwilioToken != "" {
		tw, err := messaging.NewTwilioChannel(
			messaging.WithAccountSID(config.TwilioSID),
			messaging.WithAuthToken(config.TwilioToken),
			messaging.WithFromNumber(config.TwilioFrom),
		)
		if err != nil {
			return err
		}
		registry.Register(tw)
	}

	if err := registry.StartAll(ctx, router.HandleInbound); err != nil {
		return err
	}
	defer registry.StopAll()

	server := api.NewServer(st, router, hub, api.WithAddr(*flags.apiAddr))
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
