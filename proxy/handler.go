package proxy

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/homellm/homechat/config"
	"github.com/homellm/homechat/imagecache"
	"github.com/homellm/homechat/middleware"
)

// Handler serves the chat, title, image-generation, and upload
// endpoints. One instance is shared across requests; per-request state
// (stream buffers, normalization output) never escapes the request.
type Handler struct {
	cfg         *config.Config
	store       *imagecache.Store
	client      *http.Client // chat/image calls; long-running by design, no overall timeout
	titleClient *http.Client // title helper; short fixed timeout
	mu          sync.RWMutex
}

const titleTimeout = 10 * time.Second

// NewHandler creates the handler with its upstream HTTP clients.
func NewHandler(cfg *config.Config, store *imagecache.Store) *Handler {
	return &Handler{
		cfg:         cfg,
		store:       store,
		client:      newHTTPClient(0),
		titleClient: newHTTPClient(titleTimeout),
	}
}

// newHTTPClient clones http.DefaultTransport (preserving proxy/HTTP2/dial
// defaults), disables Go's automatic gzip so the decompression transport
// owns that concern, and applies an overall timeout when given.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	return &http.Client{
		Transport: &middleware.CompressedTransport{Base: transport},
		Timeout:   timeout,
	}
}

// UpdateConfig swaps in a new configuration (thread-safe).
func (h *Handler) UpdateConfig(cfg *config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

func (h *Handler) getConfig() *config.Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
