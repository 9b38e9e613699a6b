package publish

import (
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderFingerprint = "X-Artifact-Fingerprint"
	HeaderProducedAt  = "X-Artifact-Produced-At"
)

// Handler serves the current artifact with headers that keep every cache
// between server and display from answering on our behalf. Before anything
// has been published it answers 503.
func (p *Publisher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		a := p.Current()
		h := w.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")

		if a.Empty() {
			h.Set("Retry-After", "30")
			http.Error(w, "artifact not rendered yet", http.StatusServiceUnavailable)
			return
		}

		h.Set("Content-Type", "image/png")
		h.Set("Content-Length", strconv.Itoa(len(a.Bytes)))
		h.Set("ETag", `"`+a.Fingerprint+`"`)
		h.Set(HeaderFingerprint, a.Fingerprint)
		h.Set(HeaderProducedAt, a.ProducedAt.UTC().Format(time.RFC3339))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(a.Bytes)
	})
}
