package proxy

import (
	"testing"
)

func TestToGeminiContentsRoleMapping(t *testing.T) {
	messages := []ChatMessage{
		{Role: "system", Content: TextContent("ignored in history")},
		{Role: "user", Content: TextContent("hello")},
		{Role: "assistant", Content: TextContent("hi there")},
		{Role: "tool", Content: TextContent("also dropped")},
	}

	contents := ToGeminiContents(messages)
	if len(contents) != 2 {
		t.Fatalf("len(contents) = %d, want 2 (system/tool roles dropped)", len(contents))
	}
	if contents[0].Role != "user" || contents[0].Parts[0].Text != "hello" {
		t.Errorf("contents[0] = %+v, want user/hello", contents[0])
	}
	if contents[1].Role != "model" || contents[1].Parts[0].Text != "hi there" {
		t.Errorf("contents[1] = %+v, want model/hi there", contents[1])
	}
}

func TestToGeminiContentsInlineImage(t *testing.T) {
	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(
			ContentPart{Type: PartTypeText, Text: "what is this?"},
			ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "data:image/png;base64,AAAA"}},
		),
	}}

	contents := ToGeminiContents(messages)
	if len(contents) != 1 || len(contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v, want 1 message with 2 parts", contents)
	}
	inline := contents[0].Parts[1].InlineData
	if inline == nil {
		t.Fatal("image part has no inline data")
	}
	if inline.MimeType != "image/png" || inline.Data != "AAAA" {
		t.Errorf("inline = %+v, want image/png / AAAA", inline)
	}
}

func TestToGeminiContentsSkipsMalformedImage(t *testing.T) {
	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(
			ContentPart{Type: PartTypeText, Text: "caption"},
			ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "http://example.com/a.png"}},
		),
	}}

	contents := ToGeminiContents(messages)
	if len(contents) != 1 {
		t.Fatalf("len(contents) = %d, want 1", len(contents))
	}
	// The malformed image drops, the text survives.
	if len(contents[0].Parts) != 1 || contents[0].Parts[0].Text != "caption" {
		t.Errorf("parts = %+v, want just the text part", contents[0].Parts)
	}
}

func TestToGeminiContentsOmitsEmptyMessages(t *testing.T) {
	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(
			ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "not-a-data-url"}},
		),
	}}

	if contents := ToGeminiContents(messages); len(contents) != 0 {
		t.Errorf("contents = %+v, want zero-part message omitted", contents)
	}
}

func TestToGeminiContentsCarriesSignature(t *testing.T) {
	messages := []ChatMessage{{
		Role: "assistant",
		Content: PartsContent(
			ContentPart{
				Type:             PartTypeImage,
				ImageURL:         &ImageURL{URL: "data:image/jpeg;base64,BBBB"},
				ThoughtSignature: "opaque-token",
			},
		),
	}}

	contents := ToGeminiContents(messages)
	if len(contents) != 1 || len(contents[0].Parts) != 1 {
		t.Fatalf("contents = %+v, want 1 message with 1 part", contents)
	}
	if got := contents[0].Parts[0].ThoughtSignature; got != "opaque-token" {
		t.Errorf("signature = %q, want %q", got, "opaque-token")
	}
}

func TestTranslationRoundTrip(t *testing.T) {
	original := []ChatMessage{
		{Role: "user", Content: PartsContent(
			ContentPart{Type: PartTypeText, Text: "look"},
			ContentPart{Type: PartTypeImage, ImageURL: &ImageURL{URL: "data:image/png;base64,CCCC"}},
		)},
		{Role: "assistant", Content: PartsContent(
			ContentPart{Type: PartTypeText, Text: "a cat", ThoughtSignature: "sig-1"},
		)},
	}

	back := FromGeminiContents(ToGeminiContents(original))
	if len(back) != len(original) {
		t.Fatalf("len = %d, want %d", len(back), len(original))
	}
	for i := range back {
		if back[i].Role != original[i].Role {
			t.Errorf("messages[%d].Role = %q, want %q", i, back[i].Role, original[i].Role)
		}
	}
	if back[0].Content.Parts[1].ImageURL.URL != "data:image/png;base64,CCCC" {
		t.Errorf("image url not preserved: %q", back[0].Content.Parts[1].ImageURL.URL)
	}
	if back[1].Content.Parts[0].ThoughtSignature != "sig-1" {
		t.Errorf("signature not preserved: %q", back[1].Content.Parts[0].ThoughtSignature)
	}
}

func TestParseDataURL(t *testing.T) {
	tests := []struct {
		url      string
		wantMime string
		wantData string
		wantErr  bool
	}{
		{"data:image/png;base64,AAAA", "image/png", "AAAA", false},
		{"data:image/jpeg;base64,", "image/jpeg", "", false},
		{"data:text/plain,hello", "text/plain", "hello", false},
		{"http://example.com/a.png", "", "", true},
		{"data:image/png;base64", "", "", true},
	}
	for _, tt := range tests {
		inline, err := parseDataURL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseDataURL(%q) error = nil, want error", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseDataURL(%q) error = %v", tt.url, err)
			continue
		}
		if inline.MimeType != tt.wantMime || inline.Data != tt.wantData {
			t.Errorf("parseDataURL(%q) = %q/%q, want %q/%q",
				tt.url, inline.MimeType, inline.Data, tt.wantMime, tt.wantData)
		}
	}
}
