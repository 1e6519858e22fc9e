package proxy

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/homellm/homechat/imagecache"
)

func newTestStore(t *testing.T) *imagecache.Store {
	t.Helper()
	store, err := imagecache.NewStore(t.TempDir(), 1000, 500)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return store
}

func writeCacheFile(t *testing.T, store *imagecache.Store, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(store.Dir(), name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestNormalizeInlinesLocalImage(t *testing.T) {
	store := newTestStore(t)
	imgBytes := []byte("jpeg-ish bytes")
	writeCacheFile(t, store, "abc.jpg", imgBytes)

	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(ContentPart{
			Type:     PartTypeImage,
			ImageURL: &ImageURL{URL: "/images/cache/abc.jpg"},
		}),
	}}

	out, err := NormalizeMessages(messages, store)
	if err != nil {
		t.Fatalf("NormalizeMessages() error = %v", err)
	}

	url := out[0].Content.Parts[0].ImageURL.URL
	want := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imgBytes)
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}
}

func TestNormalizeRejectsExternalPath(t *testing.T) {
	store := newTestStore(t)

	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(ContentPart{
			Type:     PartTypeImage,
			ImageURL: &ImageURL{URL: "/etc/passwd"},
		}),
	}}

	_, err := NormalizeMessages(messages, store)
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("error = %v, want ErrInvalidReference", err)
	}
}

func TestNormalizeRejectsMissingFile(t *testing.T) {
	store := newTestStore(t)

	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(ContentPart{
			Type:     PartTypeImage,
			ImageURL: &ImageURL{URL: "/images/cache/nope.jpg"},
		}),
	}}

	_, err := NormalizeMessages(messages, store)
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("error = %v, want ErrInvalidReference", err)
	}
}

func TestNormalizeResolvesSignature(t *testing.T) {
	store := newTestStore(t)
	writeCacheFile(t, store, "abc.sig", []byte("raw-signature-blob"))

	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(ContentPart{
			Type:             PartTypeText,
			Text:             "describe",
			ThoughtSignature: "/images/cache/abc.sig",
		}),
	}}

	out, err := NormalizeMessages(messages, store)
	if err != nil {
		t.Fatalf("NormalizeMessages() error = %v", err)
	}
	if got := out[0].Content.Parts[0].ThoughtSignature; got != "raw-signature-blob" {
		t.Errorf("signature = %q, want %q", got, "raw-signature-blob")
	}
}

func TestNormalizeRejectsExternalSignature(t *testing.T) {
	store := newTestStore(t)

	messages := []ChatMessage{{
		Role: "user",
		Content: PartsContent(ContentPart{
			Type:             PartTypeText,
			Text:             "hi",
			ThoughtSignature: "/tmp/evil.sig",
		}),
	}}

	_, err := NormalizeMessages(messages, store)
	if !errors.Is(err, ErrInvalidReference) {
		t.Errorf("error = %v, want ErrInvalidReference", err)
	}
}

func TestNormalizeLeavesPlainTextAlone(t *testing.T) {
	store := newTestStore(t)

	messages := []ChatMessage{
		{Role: "system", Content: TextContent("be nice")},
		{Role: "user", Content: PartsContent(ContentPart{Type: PartTypeText, Text: "hello"})},
	}

	out, err := NormalizeMessages(messages, store)
	if err != nil {
		t.Fatalf("NormalizeMessages() error = %v", err)
	}
	if out[0].Content.Text != "be nice" {
		t.Errorf("plain content = %q, want untouched", out[0].Content.Text)
	}
	if out[1].Content.Parts[0].Text != "hello" {
		t.Errorf("text part = %q, want untouched", out[1].Content.Parts[0].Text)
	}
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	store := newTestStore(t)
	writeCacheFile(t, store, "abc.jpg", []byte("img"))

	original := []ChatMessage{{
		Role: "user",
		Content: PartsContent(ContentPart{
			Type:     PartTypeImage,
			ImageURL: &ImageURL{URL: "/images/cache/abc.jpg"},
		}),
	}}

	if _, err := NormalizeMessages(original, store); err != nil {
		t.Fatalf("NormalizeMessages() error = %v", err)
	}
	if url := original[0].Content.Parts[0].ImageURL.URL; !strings.HasPrefix(url, "/images/cache/") {
		t.Errorf("input was mutated: url = %q", url)
	}
}
