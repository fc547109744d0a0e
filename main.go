package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/schoolcare/server/assistant"
	"github.com/schoolcare/server/chat"
	"github.com/schoolcare/server/conversation"
	"github.com/schoolcare/server/logger"
	"github.com/schoolcare/server/mcp"
	"github.com/schoolcare/server/middleware"
	"github.com/schoolcare/server/settings"
	"github.com/schoolcare/server/suggest"
	"github.com/schoolcare/server/ws"
	"golang.org/x/term"
)

const (
	version     = "1.0.0"
	serverTitle = "SchoolCare"
)

type config struct {
	port    string
	token   string
	dataDir string
	devMode bool
}

func loadConfig() config {
	cfg := config{
		port:    os.Getenv("PORT"),
		token:   os.Getenv("AUTH_TOKEN"),
		dataDir: os.Getenv("DATA_DIR"),
		devMode: os.Getenv("DEV_MODE") == "true",
	}
	if cfg.port == "" {
		cfg.port = "8080"
	}
	if cfg.dataDir == "" {
		cfg.dataDir = "./data"
	}
	return cfg
}

func newHandler(cfg config, rpcHandler *ws.RPCHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"pong"}`))
	})

	// WebSocket endpoint (handles its own auth inside the protocol)
	mux.Handle("GET /ws", rpcHandler)

	return middleware.Logging(middleware.Auth(cfg.token)(mux))
}

// printPairingQR renders the connection URL as a QR code so the mobile app
// can pair by scanning the server's terminal. Skipped when stdout is not a
// terminal (e.g. running under systemd).
func printPairingQR(port, token string) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}

	pairingURL := fmt.Sprintf("ws://localhost:%s/ws?token=%s", port, token)
	fmt.Println("Scan to pair the SchoolCare app:")
	qrterminal.GenerateWithConfig(pairingURL, qrterminal.Config{
		Level:     qrterminal.L,
		Writer:    os.Stdout,
		BlackChar: qrterminal.BLACK,
		WhiteChar: qrterminal.WHITE,
		QuietZone: 1,
	})
	fmt.Println(pairingURL)
}

func main() {
	cfg := loadConfig()
	logger.Init(logger.Config{DataDir: cfg.dataDir, DevMode: cfg.devMode})

	if cfg.token == "" {
		slog.Error("AUTH_TOKEN environment variable is required")
		os.Exit(1)
	}

	store, err := conversation.NewFileStore(cfg.dataDir)
	if err != nil {
		slog.Error("failed to open conversation store", "dataDir", cfg.dataDir, "error", err)
		os.Exit(1)
	}

	rules, err := suggest.NewFileStore(cfg.dataDir)
	if err != nil {
		slog.Error("failed to open suggestion rules", "dataDir", cfg.dataDir, "error", err)
		os.Exit(1)
	}

	// `schoolcare-server mcp` serves admin tools over stdio instead of HTTP
	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		if err := mcp.NewServer(version, store, rules).ServeStdio(); err != nil {
			slog.Error("mcp server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := rules.StartWatching(); err != nil {
		slog.Error("failed to watch suggestion rules, hot reload disabled", "error", err)
	}
	defer rules.StopWatching()

	if cfg.devMode {
		if err := conversation.SeedSamples(context.Background(), store); err != nil {
			slog.Error("failed to seed sample conversations", "error", err)
		}
	}

	settingsStore, err := settings.NewStore(cfg.dataDir)
	if err != nil {
		slog.Error("failed to open settings", "dataDir", cfg.dataDir, "error", err)
		os.Exit(1)
	}
	behavior := settingsStore.Get()

	sim := assistant.New(rules, assistant.Config{
		TypingDelay: behavior.TypingDelay(),
		ReplyDelay:  behavior.ReplyDelay(),
	})
	opts := chat.Options{
		ProtectManualTitle:    behavior.ProtectManualTitle,
		CancelPendingOnDelete: behavior.CancelPendingOnDelete,
	}

	rpcHandler := ws.NewRPCHandler(cfg.token, version, serverTitle, cfg.devMode, store, sim, opts)
	defer rpcHandler.Stop()

	handler := newHandler(cfg, rpcHandler)

	printPairingQR(cfg.port, cfg.token)

	slog.Info("server starting", "port", cfg.port, "dataDir", cfg.dataDir, "devMode", cfg.devMode)
	if err := http.ListenAndServe(":"+cfg.port, handler); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
