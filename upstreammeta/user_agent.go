// Package upstreammeta centralizes the request metadata some upstream
// gateways are picky about.
package upstreammeta

const (
	// UserAgentBrowser is sent on OpenAI-compatible calls; some
	// compatibility gateways reject requests without a browser-style UA.
	UserAgentBrowser = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Backend identifies which upstream protocol a request targets.
type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendGemini Backend = "gemini"
)

// UserAgentFor returns the User-Agent to send for a backend, or "" when
// the Go default should stand.
func UserAgentFor(b Backend) string {
	if b == BackendOpenAI {
		return UserAgentBrowser
	}
	return ""
}
