package proxy

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/homellm/homechat/imagecache"
)

// ImageGenRequest accepts either a full message list or the simpler
// prompt/image_url pair, which is expanded into a single user message.
type ImageGenRequest struct {
	Messages []ChatMessage `json:"messages"`
	Prompt   string        `json:"prompt"`
	ImageURL string        `json:"image_url"`
}

// HandleImageGenerations calls the Gemini image model and writes the
// produced image (and its thought signature) back into the cache,
// returning local URLs for both.
func (h *Handler) HandleImageGenerations(w http.ResponseWriter, r *http.Request) {
	cfg := h.getConfig()

	var req ImageGenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeImageGenError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	messages := req.Messages
	if len(messages) == 0 && req.Prompt != "" {
		content := TextContent(req.Prompt)
		if req.ImageURL != "" {
			content = PartsContent(
				ContentPart{Type: PartTypeText, Text: req.Prompt},
				ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: req.ImageURL}},
			)
		}
		messages = []ChatMessage{{Role: "user", Content: content}}
	}

	messages, err := NormalizeMessages(messages, h.store)
	if err != nil {
		if errors.Is(err, ErrInvalidReference) {
			writeImageGenError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeImageGenError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := GeminiRequest{
		Contents: ToGeminiContents(messages),
		GenerationConfig: &GeminiGenConfig{
			ResponseModalities: []string{"IMAGE"},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		writeImageGenError(w, http.StatusInternalServerError, err.Error())
		return
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimSuffix(cfg.Gemini.BaseURL, "/"), cfg.Chat.ImageModel, cfg.Gemini.APIKey)

	httpReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		writeImageGenError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		log.Printf("[IMAGEGEN] Request failed: %v", err)
		writeImageGenError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		writeImageGenError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if resp.StatusCode != http.StatusOK {
		log.Printf("[IMAGEGEN] Upstream HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		writeImageGenError(w, resp.StatusCode, fmt.Sprintf("Gemini API Error: %s", respBody))
		return
	}

	imageURL, sigURL, err := h.storeGeneratedImage(respBody)
	if err != nil {
		log.Printf("[IMAGEGEN] %v", err)
		writeImageGenError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"created": time.Now().Unix(),
		"data": []map[string]string{{
			"url":              imageURL,
			"thoughtSignature": sigURL,
		}},
	})
}

// storeGeneratedImage picks the last inline-data part out of a
// generateContent response, caches its bytes, and caches the part's
// thought signature as the .sig sibling.
func (h *Handler) storeGeneratedImage(respBody []byte) (imageURL, sigURL string, err error) {
	parts := gjson.GetBytes(respBody, "candidates.0.content.parts").Array()
	if len(parts) == 0 {
		return "", "", errors.New("Image generation failed.")
	}

	var target gjson.Result
	var inline gjson.Result
	for i := len(parts) - 1; i >= 0; i-- {
		// Some deployments emit snake_case here.
		if d := parts[i].Get("inlineData"); d.Exists() {
			target, inline = parts[i], d
			break
		}
		if d := parts[i].Get("inline_data"); d.Exists() {
			target, inline = parts[i], d
			break
		}
	}
	if !inline.Exists() {
		return "", "", errors.New("Model refused or returned no image.")
	}

	imgData, err := base64.StdEncoding.DecodeString(inline.Get("data").String())
	if err != nil {
		return "", "", fmt.Errorf("decode image data: %w", err)
	}

	ext := imagecache.ExtForMime(inline.Get("mimeType").String())
	name, err := h.store.Put(imgData, ext)
	if err != nil {
		return "", "", err
	}

	id := strings.TrimSuffix(name, ext)
	sigName, err := h.store.PutSignature(id, target.Get("thoughtSignature").String())
	if err != nil {
		return "", "", err
	}

	return CacheURLPrefix + name, CacheURLPrefix + sigName, nil
}

// writeImageGenError matches the OpenAI images error envelope.
func writeImageGenError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": msg},
	})
}
