package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"compras-tracker/internal/purchase"
	"compras-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// Optional .env file, same knobs as the env vars below
	godotenv.Load()

	fs := ff.NewFlagSet("compras-tracker")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		storeType   = fs.StringLong("store", "json", "Ledger store: 'json' or 'bolt'")
		dataPath    = fs.StringLong("data", "compras.json", "JSON ledger file path")
		boltPath    = fs.StringLong("bolt-db", "compras.db", "BoltDB file path (with --store bolt)")
		ticketsPath = fs.StringLong("tickets", "./tickets", "Ticket image directory")
		recogType   = fs.StringLong("recognizer", "tesseract", "Recognizer: 'tesseract', 'gemini' or 'ollama'")
		languages   = fs.StringLong("languages", "spa,eng", "Comma-separated tesseract language codes")
		tessdataDir = fs.StringLong("tessdata-dir", "", "Tesseract data directory (optional)")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("COMPRAS_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize ledger store
	var store purchase.Store
	var err error
	switch *storeType {
	case "json":
		slog.Info("Initializing JSON ledger store...", "path", *dataPath)
		store, err = purchase.NewJSONStore(*dataPath)
	case "bolt":
		slog.Info("Initializing Bolt ledger store...", "path", *boltPath)
		store, err = purchase.NewBoltStore(*boltPath)
	default:
		slog.Error("Invalid store type", "type", *storeType, "valid", "json or bolt")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ledger, err := purchase.NewLedger(store)
	if err != nil {
		slog.Error("Failed to load ledger", "error", err)
		os.Exit(1)
	}
	slog.Info("Ledger loaded", "purchases", ledger.Count())

	// Initialize the recognizer once per process. On failure the server
	// still starts and serves statistics/listing; photo uploads get 503.
	var recognizer scanning.Recognizer
	switch *recogType {
	case "tesseract":
		langs := strings.Split(*languages, ",")
		for i := range langs {
			langs[i] = strings.TrimSpace(langs[i])
		}
		slog.Info("Initializing tesseract recognizer...", "languages", langs)
		recognizer, err = scanning.NewTesseract(langs, *tessdataDir)
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini recognizer...", "model", *geminiModel)
		recognizer, err = scanning.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama recognizer...", "url", *ollamaURL, "model", *ollamaModel)
		recognizer, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	default:
		slog.Error("Invalid recognizer type", "type", *recogType, "valid", "tesseract, gemini or ollama")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Recognizer failed to initialize; serving existing data only", "error", err)
		recognizer = nil
	} else {
		defer recognizer.Close()
	}

	// Initialize ticket image storage
	slog.Info("Initializing ticket storage...", "path", *ticketsPath)
	imageStore, err := purchase.NewLocalStorage(*ticketsPath)
	if err != nil {
		slog.Error("Failed to initialize ticket storage", "error", err)
		os.Exit(1)
	}

	service := purchase.NewService(ledger, recognizer, imageStore)

	basicAuth := purchase.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := purchase.NewServer(service, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
