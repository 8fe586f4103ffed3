package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jmellor/marginboard/internal/external/gemini"
	"github.com/jmellor/marginboard/pkg/logger"
)

// TextGenerator produces a JSON payload from a prompt
type TextGenerator interface {
	GenerateJSON(ctx context.Context, prompt string) (json.RawMessage, error)
}

// GenerateHandler exposes the text-completion upstream
type GenerateHandler struct {
	generator TextGenerator
	logger    *logger.Logger
}

// NewGenerateHandler creates a new generate handler
func NewGenerateHandler(generator TextGenerator, log *logger.Logger) *GenerateHandler {
	return &GenerateHandler{
		generator: generator,
		logger:    log,
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate runs a prompt through the completion upstream and returns
// the extracted JSON payload.
// POST /api/generate
func (h *GenerateHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	payload, err := h.generator.GenerateJSON(r.Context(), req.Prompt)
	switch {
	case errors.Is(err, gemini.ErrNoCredentials):
		respondError(w, http.StatusServiceUnavailable, "text generation not configured")
		return
	case errors.Is(err, gemini.ErrExhausted):
		respondError(w, http.StatusTooManyRequests, "all credentials exhausted, try again later")
		return
	case err != nil:
		h.logger.WithError(err).Error("Text generation failed")
		respondError(w, http.StatusBadGateway, "text generation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data": payload,
	})
}
