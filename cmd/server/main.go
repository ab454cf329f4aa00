// Command server runs the reference HTTP/WebSocket API around the Agent
// Runtime SDK: conversation search/create, send-message, confirm/reject,
// pause/run, update-secrets, and a live event stream per conversation.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/coreagent/runtime/pkg/apiserver"
	"github.com/coreagent/runtime/pkg/confirm"
	"github.com/coreagent/runtime/pkg/event"
	"github.com/coreagent/runtime/pkg/indexstore"
	"github.com/coreagent/runtime/pkg/llm"
	"github.com/coreagent/runtime/pkg/llm/retry"
	"github.com/coreagent/runtime/pkg/security"
	"github.com/coreagent/runtime/pkg/tool"
	"github.com/coreagent/runtime/pkg/tool/builtin"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		log.Printf("Warning: could not load %s: %v", envPath, err)
		log.Printf("Continuing with existing environment variables...")
	} else {
		log.Printf("Loaded environment from %s", envPath)
	}

	httpAddr := getEnv("HTTP_ADDR", ":8080")
	persistRoot := getEnv("CONVERSATION_STORE_DIR", "./data/conversations")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var index *indexstore.Store
	if getEnv("INDEXSTORE_DB_PASSWORD", "") != "" {
		dbCfg, err := indexstore.LoadConfigFromEnv()
		if err != nil {
			log.Fatalf("Failed to load conversation index config: %v", err)
		}
		index, err = indexstore.Open(ctx, dbCfg)
		if err != nil {
			log.Fatalf("Failed to open conversation index: %v", err)
		}
		defer index.Close()
		log.Println("Connected to conversation index database")
	} else {
		log.Println("INDEXSTORE_DB_PASSWORD not set — conversation list/search disabled")
	}

	tools := tool.New()
	if err := tools.Register(builtin.Finish{}); err != nil {
		log.Fatalf("Failed to register finish tool: %v", err)
	}
	if err := tools.Register(builtin.Think{}); err != nil {
		log.Fatalf("Failed to register think tool: %v", err)
	}

	analyzer := security.NewToolDeclared(nil)

	deps := apiserver.Dependencies{
		LLM:           retry.New(&llm.StubClient{}, slog.Default()),
		Tools:         tools,
		Analyzer:      analyzer,
		Policy:        confirm.NewConfirmRisky(event.RiskMedium),
		MaxIterations: 50,
		PersistRoot:   persistRoot,
	}

	srv := apiserver.NewServer(deps, index)

	log.Printf("Starting coreagent-runtime server")
	log.Printf("HTTP address: %s", httpAddr)
	log.Printf("Conversation store: %s", persistRoot)

	if err := srv.Run(ctx, httpAddr); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
	log.Println("Server shut down cleanly")
}
