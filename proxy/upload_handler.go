package proxy

import (
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/homellm/homechat/imagecache"
)

// HandleUpload ingests a multipart image upload into the cache and
// returns its local URL.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeError(w, http.StatusBadRequest, "No selected file")
		return
	}

	name, err := h.store.Ingest(header.Filename, file)
	if err != nil {
		log.Printf("[UPLOAD] Processing failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": CacheURLPrefix + name})
}

// HandleCacheFile serves a cached image or signature file by name.
func (h *Handler) HandleCacheFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]

	data, err := h.store.Get(name)
	if err != nil {
		if err == imagecache.ErrNotFound {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if strings.HasSuffix(name, imagecache.SignatureExt) {
		w.Header().Set("Content-Type", "application/octet-stream")
	} else {
		w.Header().Set("Content-Type", imagecache.MimeForFilename(name))
	}
	w.Write(data)
}
