package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultTitle = "New Chat"

const titlePromptTemplate = `Based on the following user message, generate a short and concise title in Chinese that summarizes the topic.
Only respond with the title itself, no quotes, no explanation, no punctuation at the end.

User message: %s

Title:`

// HandleGenerateTitle produces a short conversation title from the first
// user message. It always answers 200: any upstream failure degrades to
// the default title rather than surfacing as an error.
func (h *Handler) HandleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	cfg := h.getConfig()

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusOK, map[string]string{"title": defaultTitle})
		return
	}

	message := truncateRunes(req.Message, 500)
	prompt := fmt.Sprintf(titlePromptTemplate, message)

	payload := GeminiRequest{
		Contents: []GeminiContent{{Parts: []GeminiPart{{Text: prompt}}}},
		GenerationConfig: &GeminiGenConfig{
			Temperature:     1.0,
			MaxOutputTokens: 50,
		},
	}
	body, _ := json.Marshal(payload)

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimSuffix(cfg.Gemini.BaseURL, "/"), cfg.Chat.TitleModel, cfg.Gemini.APIKey)

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{"title": defaultTitle})
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.titleClient.Do(httpReq)
	if err != nil {
		log.Printf("[TITLE] Generation failed: %v", err)
		writeJSON(w, http.StatusOK, map[string]string{"title": defaultTitle})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		log.Printf("[TITLE] Upstream HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		writeJSON(w, http.StatusOK, map[string]string{"title": defaultTitle})
		return
	}

	title := gjson.GetBytes(respBody, "candidates.0.content.parts.0.text").String()
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	if title == "" {
		title = defaultTitle
	} else if len([]rune(title)) > 50 {
		title = truncateRunes(title, 47)
	}

	writeJSON(w, http.StatusOK, map[string]string{"title": title})
}

// truncateRunes caps s at max runes, appending "..." when cut.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
