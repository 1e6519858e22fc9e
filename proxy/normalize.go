package proxy

import (
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/homellm/homechat/imagecache"
)

// CacheURLPrefix is the URL prefix under which cached images and
// signatures are served. Content parts may only reference this space.
const CacheURLPrefix = "/images/cache/"

// ErrInvalidReference marks a content part referencing anything outside
// the managed cache. Such requests fail closed before any outbound call.
var ErrInvalidReference = errors.New("invalid image reference")

// NormalizeMessages rewrites every local cache reference in the message
// list into the inline representation the upstream APIs require: image
// URLs become base64 data URLs and signature references become the raw
// signature text. It must run before either outbound API call. The input
// slice is not modified.
func NormalizeMessages(messages []ChatMessage, store *imagecache.Store) ([]ChatMessage, error) {
	out := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if !msg.Content.IsParts() {
			out = append(out, msg)
			continue
		}

		parts := make([]ContentPart, 0, len(msg.Content.Parts))
		for _, part := range msg.Content.Parts {
			resolved, err := normalizePart(part, store)
			if err != nil {
				return nil, err
			}
			parts = append(parts, resolved)
		}
		out = append(out, ChatMessage{Role: msg.Role, Content: PartsContent(parts...)})
	}
	return out, nil
}

func normalizePart(part ContentPart, store *imagecache.Store) (ContentPart, error) {
	if part.Type == PartTypeImage {
		url := ""
		if part.ImageURL != nil {
			url = part.ImageURL.URL
		}
		if !strings.HasPrefix(url, CacheURLPrefix) {
			return ContentPart{}, fmt.Errorf("%w: %q", ErrInvalidReference, url)
		}
		name := path.Base(url)
		data, err := store.Get(name)
		if err != nil {
			return ContentPart{}, fmt.Errorf("%w: %q", ErrInvalidReference, url)
		}
		part.ImageURL = &ImageURL{
			URL: fmt.Sprintf("data:%s;base64,%s",
				imagecache.MimeForFilename(name),
				base64.StdEncoding.EncodeToString(data)),
		}
	}

	if part.ThoughtSignature != "" {
		if !strings.HasPrefix(part.ThoughtSignature, CacheURLPrefix) {
			return ContentPart{}, fmt.Errorf("%w: signature %q", ErrInvalidReference, part.ThoughtSignature)
		}
		name := path.Base(part.ThoughtSignature)
		sig, err := store.Get(name)
		if err != nil {
			return ContentPart{}, fmt.Errorf("%w: signature %q", ErrInvalidReference, part.ThoughtSignature)
		}
		part.ThoughtSignature = string(sig)
	}

	return part, nil
}
