package proxy

import (
	"fmt"
	"log"
	"strings"
)

// ToGeminiContents maps OpenAI-style messages onto the Gemini
// contents/parts schema. Pure: no I/O.
//
// Role mapping: assistant -> model, user -> user. Other roles have no
// Gemini in-history equivalent and are dropped; the system prompt goes
// out of band via system_instruction. Messages that end up with zero
// parts are omitted entirely.
func ToGeminiContents(messages []ChatMessage) []GeminiContent {
	contents := make([]GeminiContent, 0, len(messages))
	for _, msg := range messages {
		var role string
		switch msg.Role {
		case "assistant":
			role = "model"
		case "user":
			role = "user"
		default:
			continue
		}

		var parts []GeminiPart
		if !msg.Content.IsParts() {
			parts = append(parts, GeminiPart{Text: msg.Content.Text})
		} else {
			for _, part := range msg.Content.Parts {
				switch part.Type {
				case PartTypeText:
					parts = append(parts, GeminiPart{Text: part.Text})
				case PartTypeImage:
					url := ""
					if part.ImageURL != nil {
						url = part.ImageURL.URL
					}
					inline, err := parseDataURL(url)
					if err != nil {
						// A broken attachment loses only itself, not the turn.
						log.Printf("[GEMINI] Skipping malformed image part: %v", err)
					} else {
						parts = append(parts, GeminiPart{InlineData: inline})
					}
				}

				if part.ThoughtSignature != "" && len(parts) > 0 {
					parts[len(parts)-1].ThoughtSignature = part.ThoughtSignature
				}
			}
		}

		if len(parts) == 0 {
			continue
		}
		contents = append(contents, GeminiContent{Role: role, Parts: parts})
	}
	return contents
}

// FromGeminiContents is the inverse mapping: Gemini contents back into
// OpenAI-style messages. model -> assistant, inline data -> data URL,
// signatures carried on the corresponding part.
func FromGeminiContents(contents []GeminiContent) []ChatMessage {
	messages := make([]ChatMessage, 0, len(contents))
	for _, content := range contents {
		role := content.Role
		if role == "model" {
			role = "assistant"
		}

		parts := make([]ContentPart, 0, len(content.Parts))
		for _, p := range content.Parts {
			var part ContentPart
			switch {
			case p.InlineData != nil:
				part = ContentPart{
					Type: PartTypeImage,
					ImageURL: &ImageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", p.InlineData.MimeType, p.InlineData.Data),
					},
				}
			default:
				part = ContentPart{Type: PartTypeText, Text: p.Text}
			}
			part.ThoughtSignature = p.ThoughtSignature
			parts = append(parts, part)
		}

		messages = append(messages, ChatMessage{Role: role, Content: PartsContent(parts...)})
	}
	return messages
}

// parseDataURL splits an inline data URL ("data:<mime>;base64,<payload>")
// into Gemini inline data. Anything else is malformed.
func parseDataURL(url string) (*GeminiInlineData, error) {
	if !strings.HasPrefix(url, "data:") {
		return nil, fmt.Errorf("not a data URL: %q", truncate(url, 40))
	}
	header, payload, ok := strings.Cut(url, ",")
	if !ok {
		return nil, fmt.Errorf("data URL missing payload separator")
	}
	mime := strings.TrimPrefix(header, "data:")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return &GeminiInlineData{MimeType: mime, Data: payload}, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
