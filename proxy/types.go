// Package proxy implements the chat relay: content normalization,
// OpenAI/Gemini schema translation, streaming reframing, and the HTTP
// handlers composing them.
package proxy

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ── OpenAI-style request schema ─────────────────────────────────────────

// ChatRequest is the client-facing chat completion request body.
type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// ChatMessage is one turn of history. Content is either plain text or an
// ordered list of content parts; the distinction is preserved through
// marshalling.
type ChatMessage struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// MessageContent is a closed two-variant type: plain text or a part list.
// Anything else in the wire payload is rejected at decode time.
type MessageContent struct {
	Text  string
	Parts []ContentPart
	multi bool
}

// TextContent returns a plain-text MessageContent.
func TextContent(text string) MessageContent {
	return MessageContent{Text: text}
}

// PartsContent returns a part-list MessageContent.
func PartsContent(parts ...ContentPart) MessageContent {
	return MessageContent{Parts: parts, multi: true}
}

// IsParts reports whether the content is the part-list variant.
func (c MessageContent) IsParts() bool { return c.multi }

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*c = MessageContent{}
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = MessageContent{Text: s}
		return nil
	case '[':
		var parts []ContentPart
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = MessageContent{Parts: parts, multi: true}
		return nil
	default:
		return fmt.Errorf("message content must be a string or a part list")
	}
}

func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.multi {
		if c.Parts == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// Content part type tags.
const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

// ContentPart is a tagged variant: {text} or {image_url}. It may carry an
// opaque thought signature as a sibling field; the signature is never a
// content-bearing part itself.
type ContentPart struct {
	Type             string    `json:"type"`
	Text             string    `json:"text,omitempty"`
	ImageURL         *ImageURL `json:"image_url,omitempty"`
	ThoughtSignature string    `json:"thoughtSignature,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

func (p *ContentPart) UnmarshalJSON(data []byte) error {
	type alias ContentPart
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Type != PartTypeText && a.Type != PartTypeImage {
		return fmt.Errorf("unknown content part type %q", a.Type)
	}
	*p = ContentPart(a)
	return nil
}

// ── OpenAI-style streaming chunk schema ─────────────────────────────────

type ChatStreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type StreamDelta struct {
	Content string `json:"content,omitempty"`
}

// ── Gemini-native schema ────────────────────────────────────────────────

type GeminiRequest struct {
	Contents          []GeminiContent  `json:"contents"`
	SystemInstruction *GeminiContent   `json:"system_instruction,omitempty"`
	GenerationConfig  *GeminiGenConfig `json:"generationConfig,omitempty"`
}

type GeminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []GeminiPart `json:"parts"`
}

type GeminiPart struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *GeminiInlineData `json:"inlineData,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
}

type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type GeminiGenConfig struct {
	Temperature        float64  `json:"temperature,omitempty"`
	MaxOutputTokens    int      `json:"maxOutputTokens,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}
