// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides pluggable LLM backends behind a single Generate
// interface. Supported providers: ollama, openai, anthropic, local
// (llama.cpp server).
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// GenerationParams are the sampling knobs passed to a backend. Nil fields
// fall back to per-backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient is the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// NewFromEnv constructs the client selected by the LLM_PROVIDER environment
// variable (default "ollama").
//
// # Outputs
//
//   - LLMClient: The configured backend.
//   - error: Non-nil on an unknown provider or missing backend configuration
//     (base URL, API key).
func NewFromEnv() (LLMClient, error) {
	provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	if provider == "" {
		provider = "ollama"
	}
	slog.Info("Selecting LLM backend", "provider", provider)

	switch provider {
	case "ollama":
		return NewOllamaClient()
	case "openai":
		return NewOpenAIClient()
	case "anthropic":
		return NewAnthropicClient()
	case "local":
		return NewLocalLlamaCppClient()
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q", provider)
	}
}

// readSecret loads an API key from an environment variable with a fallback
// to the container secret mount at /run/secrets/<name>.
func readSecret(envVar, secretName string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	secretPath := "/run/secrets/" + secretName
	if content, err := os.ReadFile(secretPath); err == nil {
		slog.Info("Read API key from secrets mount", "path", secretPath)
		return strings.TrimSpace(string(content))
	}
	return ""
}
