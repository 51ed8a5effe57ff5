// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command kbagent starts the AleutianKB conversation HTTP server.
//
// This is the main entry point for the containerized kbagent service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - KBAGENT_PORT: HTTP server port (default: 12310)
//   - KBAGENT_DB_PATH: SQLite database file (default: ./data/kbagent.db)
//   - LLM_BACKEND_TYPE: LLM provider - local, openai, ollama, claude (default: ollama)
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - EMBEDDING_SERVICE_URL: Embedding service URL (required with Weaviate)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: aleutian-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o kbagent ./cmd/kbagent
//
//	# Run
//	./kbagent
//
//	# Or via container
//	podman-compose up kbagent
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianKB/services/kbagent"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := kbagent.Config{
		Port:         getEnvInt("KBAGENT_PORT", 12310),
		DBPath:       getEnvString("KBAGENT_DB_PATH", "./data/kbagent.db"),
		LLMBackend:   getEnvString("LLM_BACKEND_TYPE", "ollama"),
		WeaviateURL:  os.Getenv("WEAVIATE_SERVICE_URL"),
		OTelEndpoint: getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "aleutian-otel-collector:4317"),
	}

	slog.Info("Starting kbagent",
		"port", cfg.Port,
		"db_path", cfg.DBPath,
		"llm_backend", cfg.LLMBackend,
		"weaviate_url", cfg.WeaviateURL,
	)

	svc, err := kbagent.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create kbagent: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("kbagent error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
