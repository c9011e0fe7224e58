package prerender

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/prerender/horosafe"
	"github.com/hazyhaar/prerender/shield"
)

// RenderRequest is the body of POST /render.
type RenderRequest struct {
	Site string `json:"site"`
	URL  string `json:"url"`
}

// maxRenderRequest caps the POST /render body.
const maxRenderRequest = 16 << 10

// siteInfo is one entry of GET /sites.
type siteInfo struct {
	Name string   `json:"name"`
	URLs []string `json:"urls"`
}

// Handler exposes the runner over HTTP:
//
//	GET  /healthz
//	GET  /sites
//	POST /render {"site": "...", "url": "..."}  -> text/html
//
// Render requests never write files. Private and loopback targets are
// refused unless allowPrivate is set.
func (r *Runner) Handler(allowPrivate bool) http.Handler {
	mux := chi.NewRouter()
	for _, mw := range shield.DefaultStack(r.logger) {
		mux.Use(mw)
	}

	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.Get("/sites", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]siteInfo, 0, len(r.sites))
		for _, s := range r.sites {
			out = append(out, siteInfo{Name: s.Name, URLs: s.PageURLs()})
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.Post("/render", func(w http.ResponseWriter, req *http.Request) {
		log := shield.GetLogger(req.Context())

		raw, err := horosafe.LimitedReadAll(req.Body, maxRenderRequest)
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		var body RenderRequest
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if _, ok := r.Site(body.Site); !ok {
			writeError(w, http.StatusNotFound, errors.New("unknown site"))
			return
		}
		var urlOpts []horosafe.URLOption
		if allowPrivate {
			urlOpts = append(urlOpts, horosafe.AllowPrivate())
		}
		if err := horosafe.ValidateURL(body.URL, urlOpts...); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		res, err := r.Render(req.Context(), body.Site, body.URL)
		if errors.Is(err, ErrRenderBusy) {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		if err != nil {
			log.Warn("prerender: render request failed", "site", body.Site, "url", body.URL, "error", err)
			writeError(w, http.StatusBadGateway, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Prerender-ID", res.ID)
		w.Header().Set("X-Prerender-Hash", res.HTMLHash)
		w.WriteHeader(http.StatusOK)
		w.Write(res.HTML)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
