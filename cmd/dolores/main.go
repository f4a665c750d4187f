// Dolores is a conversational companion daemon. It serves speech and
// text conversations over HTTP, backed by a decay-weighted associative
// memory bank and Claude.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/Zoiudp/Dolores-AI/config"
	"github.com/Zoiudp/Dolores-AI/engine"
	"github.com/Zoiudp/Dolores-AI/memorybank"
	"github.com/Zoiudp/Dolores-AI/memorybank/embedder/cache"
	"github.com/Zoiudp/Dolores-AI/memorybank/store/chromem"
	"github.com/Zoiudp/Dolores-AI/server"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[DOLORES] Failed to load config: %v", err)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		log.Fatal("[DOLORES] ANTHROPIC_API_KEY environment variable is required")
	}

	textEmbedder, imageEmbedder, closeEmbedders, err := buildEmbedders(cfg)
	if err != nil {
		log.Fatalf("[DOLORES] Failed to build embedders: %v", err)
	}
	defer closeEmbedders()

	cached, err := cache.New(textEmbedder, cfg.Embedder.CacheEntries)
	if err != nil {
		log.Fatalf("[DOLORES] Failed to build embedding cache: %v", err)
	}
	defer cached.Close()

	store, err := chromem.New(cached)
	if err != nil {
		log.Fatalf("[DOLORES] Failed to build vector store: %v", err)
	}

	bankOpts := []memorybank.Option{
		memorybank.WithScorer(memorybank.NewScorer(cfg.Memory.ForgettingEnabled)),
		memorybank.WithTextEmbedder(cached),
	}
	if imageEmbedder != nil {
		bankOpts = append(bankOpts, memorybank.WithImageEmbedder(imageEmbedder))
	}
	bank, err := memorybank.New(store.Collections(), store.Sessions(), bankOpts...)
	if err != nil {
		log.Fatalf("[DOLORES] Failed to build memory bank: %v", err)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	eng := engine.New(&client, bank,
		engine.WithModel(cfg.Model.Name),
		engine.WithMaxTokens(cfg.Model.MaxTokens),
	)

	srv := server.New(eng, bank, cfg.Server.AudioDir, cfg.Server.UploadDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go maintenanceLoop(ctx, bank, cfg.Memory)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("[DOLORES] Listening on %s (embedder=%s, forgetting=%t)",
		addr, cfg.Embedder.Backend, cfg.Memory.ForgettingEnabled)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Fatalf("[DOLORES] Server failed: %v", err)
	}
}

// maintenanceLoop periodically evicts memories whose retention score
// has decayed below the configured threshold.
func maintenanceLoop(ctx context.Context, bank *memorybank.Bank, cfg config.MemoryConfig) {
	if !cfg.ForgettingEnabled || cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := bank.RunMaintenance(ctx, cfg.EvictionThreshold)
			if err != nil {
				log.Printf("[DOLORES] Maintenance sweep failed: %v", err)
				continue
			}
			if deleted > 0 {
				log.Printf("[DOLORES] Maintenance sweep removed %d memories", deleted)
			}
		}
	}
}
