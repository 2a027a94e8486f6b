package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheetmind/excel-analyst/internal/agent"
	"github.com/sheetmind/excel-analyst/internal/api"
	"github.com/sheetmind/excel-analyst/internal/config"
	"github.com/sheetmind/excel-analyst/internal/core"
	"github.com/sheetmind/excel-analyst/internal/index"
	"github.com/sheetmind/excel-analyst/internal/store"
)

const serviceVersion = "1.0.0"

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize LLM service (reasoning + embeddings)
	llmService, err := core.NewLLMService(
		config.AppConfig.GeminiAPIKey,
		config.AppConfig.ChatModel,
		config.AppConfig.EmbeddingModel,
	)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	// In-memory stores: sheet data and per-dataset semantic indexes.
	tabularStore := store.NewTabularStore()
	indexManager := index.NewManager(llmService)

	// Agent runner drives the think/act/observe loop per query.
	runner := agent.NewRunner(
		tabularStore,
		indexManager,
		llmService,
		config.AppConfig.MaxAgentSteps,
		config.AppConfig.RetrievalTopK,
	)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(tabularStore, indexManager, runner, serviceVersion)
	router := api.NewRouter(apiHandler)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,  // Uploads can be large
		WriteTimeout: 120 * time.Second, // Agent loops can take several LLM round trips
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
