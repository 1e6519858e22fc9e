package proxy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/homellm/homechat/config"
	"github.com/homellm/homechat/upstreammeta"
)

// HandleChat dispatches a chat completion to the Gemini-native or the
// OpenAI-compatible path based on the requested model, and streams the
// result back as OpenAI-framed SSE either way.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	cfg := h.getConfig()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	r.Body.Close()

	var req ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		log.Printf("[CHAT] Invalid JSON request: %v", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Model == "" {
		req.Model = "gpt-3.5-turbo"
	}

	messages := truncateHistory(req.Messages, cfg.Chat.MaxHistory)

	messages, err = NormalizeMessages(messages, h.store)
	if err != nil {
		if errors.Is(err, ErrInvalidReference) {
			log.Printf("[CHAT] %v", err)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[CHAT] Model: %s, %d messages", req.Model, len(messages))

	if strings.Contains(strings.ToLower(req.Model), "gemini") {
		h.streamGemini(w, r, cfg, req.Model, messages)
		return
	}
	h.streamOpenAI(w, r, cfg, req.Model, messages)
}

// truncateHistory keeps only the most recent max messages.
func truncateHistory(messages []ChatMessage, max int) []ChatMessage {
	if max > 0 && len(messages) > max {
		return messages[len(messages)-max:]
	}
	return messages
}

// streamGemini translates the history to the Gemini schema, calls
// streamGenerateContent, and reframes the JSON-array stream as SSE.
// Once the event-stream header is out, all failures are in-band frames.
func (h *Handler) streamGemini(w http.ResponseWriter, r *http.Request, cfg *config.Config, model string, messages []ChatMessage) {
	payload := GeminiRequest{
		Contents: ToGeminiContents(messages),
		SystemInstruction: &GeminiContent{
			Parts: []GeminiPart{{Text: cfg.Chat.SystemPrompt}},
		},
		GenerationConfig: &GeminiGenConfig{
			Temperature:     cfg.Chat.Temperature,
			MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s",
		strings.TrimSuffix(cfg.Gemini.BaseURL, "/"), model, cfg.Gemini.APIKey)

	w.Header().Set("Content-Type", "text/event-stream")

	// The request carries the client's context: a disconnect mid-stream
	// cancels the upstream read instead of orphaning it.
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		newSSEWriter(w).writeError(err.Error())
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("[GEMINI] Request failed: %v", err)
		newSSEWriter(w).writeError(err.Error())
		return
	}
	defer resp.Body.Close()

	RelayGeminiStream(w, resp, model)
}

// streamOpenAI forwards the request to the OpenAI-compatible upstream
// and pipes the already-SSE-framed response through byte-for-byte.
func (h *Handler) streamOpenAI(w http.ResponseWriter, r *http.Request, cfg *config.Config, model string, messages []ChatMessage) {
	if !hasSystemMessage(messages) {
		messages = append([]ChatMessage{{Role: "system", Content: TextContent(cfg.Chat.SystemPrompt)}}, messages...)
	}

	body, err := json.Marshal(ChatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	url := strings.TrimSuffix(cfg.OpenAI.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	req.Header.Set("Authorization", "Bearer "+cfg.OpenAI.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", upstreammeta.UserAgentFor(upstreammeta.BackendOpenAI))

	resp, err := h.client.Do(req)
	if err != nil {
		log.Printf("[CHAT] Upstream request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		log.Printf("[CHAT] Upstream returned HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		writeError(w, resp.StatusCode, string(respBody))
		return
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "text/event-stream")
	}

	result := PipeStream(w, resp.Body)
	if result.DownstreamErr != nil {
		log.Printf("[CHAT] Client disconnected after %d bytes", result.BytesWritten)
	} else if result.UpstreamErr != nil {
		log.Printf("[CHAT] Upstream stream error after %d bytes: %v", result.BytesWritten, result.UpstreamErr)
	}
}

func hasSystemMessage(messages []ChatMessage) bool {
	for _, m := range messages {
		if m.Role == "system" {
			return true
		}
	}
	return false
}
