package proxy

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// sseWriter emits OpenAI-framed SSE events: `data: <json>\n\n` blocks
// terminated by a literal `data: [DONE]\n\n`.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) writeData(payload []byte) {
	fmt.Fprintf(s.w, "data: %s\n\n", payload)
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// writeError emits a single in-band error frame. The stream terminates
// after it; no [DONE] follows an error.
func (s *sseWriter) writeError(msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	s.writeData(payload)
}

func (s *sseWriter) writeDone() {
	io.WriteString(s.w, "data: [DONE]\n\n")
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// ChunkAssembler reassembles Gemini's streamGenerateContent transport — a
// top-level JSON array delivered as raw lines with no per-line framing —
// into complete response objects. It is a two-state machine: empty, or
// accumulating a partial object. Each fed line is appended; the buffer is
// then structurally cleaned (one leading `,` or `[`, one trailing `,` or
// `]`) and parsed. A successful parse resets the buffer; a failed parse
// keeps accumulating.
type ChunkAssembler struct {
	buf strings.Builder
}

// Feed consumes one upstream line. When the line completes an object,
// ok is true and text holds the concatenation of all
// candidates[0].content.parts[*].text fragments (possibly empty).
func (a *ChunkAssembler) Feed(line string) (text string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	a.buf.WriteString(line)

	clean := a.buf.String()
	clean = strings.TrimPrefix(clean, ",")
	clean = strings.TrimPrefix(clean, "[")
	clean = strings.TrimSuffix(clean, ",")
	clean = strings.TrimSuffix(clean, "]")

	if clean == "" || !gjson.Valid(clean) {
		// Object still incomplete; keep accumulating.
		return "", false
	}

	a.buf.Reset()

	chunk := gjson.Parse(clean)
	var b strings.Builder
	for _, part := range chunk.Get("candidates.0.content.parts").Array() {
		b.WriteString(part.Get("text").String())
	}
	return b.String(), true
}

// Reset discards any partial buffer.
func (a *ChunkAssembler) Reset() { a.buf.Reset() }

// streamChunkPayload builds one client-facing chat.completion.chunk frame.
func streamChunkPayload(model, text string) []byte {
	payload, _ := json.Marshal(ChatStreamChunk{
		ID:      "chatcmpl-gemini",
		Object:  "chat.completion.chunk",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []StreamChoice{{Index: 0, Delta: StreamDelta{Content: text}}},
	})
	return payload
}

// RelayGeminiStream re-frames a Gemini streamGenerateContent response as
// OpenAI-style SSE chunks. The caller has already set the event-stream
// content type. A non-200 upstream status yields exactly one error frame
// and no [DONE]; normal completion always ends with [DONE].
func RelayGeminiStream(w http.ResponseWriter, resp *http.Response, model string) {
	sse := newSSEWriter(w)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		msg := fmt.Sprintf("Gemini API Error (%d): %s", resp.StatusCode, body)
		log.Printf("[GEMINI] %s", msg)
		sse.writeError(msg)
		return
	}

	var asm ChunkAssembler
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		text, ok := asm.Feed(scanner.Text())
		if ok && text != "" {
			sse.writeData(streamChunkPayload(model, text))
		}
	}

	if err := scanner.Err(); err != nil {
		// Transport failure mid-stream: surface it in-band, never as a
		// bare connection abort.
		log.Printf("[GEMINI] Stream read error: %v", err)
		sse.writeError(err.Error())
		return
	}

	sse.writeDone()
}

// PipeResult reports the outcome of a PipeStream call.
type PipeResult struct {
	BytesWritten  int64
	UpstreamErr   error // non-nil if upstream (src.Read) failed
	DownstreamErr error // non-nil if downstream (w.Write) failed (client disconnect)
}

// OK returns true if streaming completed without error.
func (r PipeResult) OK() bool { return r.UpstreamErr == nil && r.DownstreamErr == nil }

// PipeStream copies from src to w with per-chunk flushing so the client
// receives bytes as they arrive rather than when the upstream finishes.
func PipeStream(w http.ResponseWriter, src io.Reader) PipeResult {
	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			nw, writeErr := w.Write(buf[:n])
			total += int64(nw)
			if canFlush {
				flusher.Flush()
			}
			if writeErr != nil {
				return PipeResult{BytesWritten: total, DownstreamErr: writeErr}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return PipeResult{BytesWritten: total}
			}
			return PipeResult{BytesWritten: total, UpstreamErr: readErr}
		}
	}
}
