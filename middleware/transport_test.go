package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

func fetch(t *testing.T, url string) *http.Response {
	t.Helper()
	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DisableCompression = true
	client := &http.Client{Transport: &CompressedTransport{Base: base}}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readAll(t *testing.T, r io.Reader) string {
	t.Helper()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return string(data)
}

func TestTransportDecompressesGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		io.WriteString(gw, "hello gzip")
		gw.Close()
	}))
	defer srv.Close()

	resp := fetch(t, srv.URL)
	if got := readAll(t, resp.Body); got != "hello gzip" {
		t.Errorf("body = %q, want decompressed payload", got)
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" {
		t.Errorf("Content-Encoding = %q, want removed", enc)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		t.Errorf("Content-Length = %q, want removed", cl)
	}
}

func TestTransportDecompressesZstd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "zstd")
		zw, err := zstd.NewWriter(w)
		if err != nil {
			t.Errorf("zstd.NewWriter: %v", err)
			return
		}
		io.WriteString(zw, "hello zstd")
		zw.Close()
	}))
	defer srv.Close()

	resp := fetch(t, srv.URL)
	if got := readAll(t, resp.Body); got != "hello zstd" {
		t.Errorf("body = %q, want decompressed payload", got)
	}
}

func TestTransportDecompressesBrotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		io.WriteString(bw, "hello brotli")
		bw.Close()
	}))
	defer srv.Close()

	resp := fetch(t, srv.URL)
	if got := readAll(t, resp.Body); got != "hello brotli" {
		t.Errorf("body = %q, want decompressed payload", got)
	}
}

func TestTransportPassesThroughIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "plain body")
	}))
	defer srv.Close()

	resp := fetch(t, srv.URL)
	if got := readAll(t, resp.Body); got != "plain body" {
		t.Errorf("body = %q", got)
	}
}

func TestTransportPassesThroughUnknownEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "snappy")
		io.WriteString(w, "opaque bytes")
	}))
	defer srv.Close()

	resp := fetch(t, srv.URL)
	if got := readAll(t, resp.Body); got != "opaque bytes" {
		t.Errorf("body = %q, want untouched payload", got)
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "snappy" {
		t.Errorf("Content-Encoding = %q, want preserved", enc)
	}
}

func TestTransportSkipsNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	resp := fetch(t, srv.URL)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	// No body to decompress; header passes through untouched.
	if enc := resp.Header.Get("Content-Encoding"); enc != "gzip" {
		t.Errorf("Content-Encoding = %q, want preserved on 204", enc)
	}
}
