// Package api provides the HTTP handlers for the streaming API.
package api

import (
	"encoding/json"
	"net/http"

	"anistream-proxy-go/pkg/appctx"
	"anistream-proxy-go/pkg/auth"
	"anistream-proxy-go/pkg/hianime"
	"anistream-proxy-go/pkg/logging"
	"anistream-proxy-go/pkg/services"
	"anistream-proxy-go/pkg/translate"

	"github.com/pkg/errors"
)

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	// Catalog routes
	mux.HandleFunc("GET /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/detail", h.handleDetail)

	// Resolution routes
	mux.HandleFunc("GET /api/sources", h.handleSources)
	mux.HandleFunc("GET /api/segments", h.handleSegments)

	// Media routes
	mux.HandleFunc("GET /proxy", h.handleProxy)
	mux.HandleFunc("GET /subtitles", h.handleSubtitles)
	mux.HandleFunc("GET /translated-arabic", h.handleTranslatedArabic)

	// Auth routes
	mux.HandleFunc("POST /api/auth/verify-otp", h.handleVerifyOTP)

	// Status
	mux.HandleFunc("GET /api/info", h.handleAPIInfo)
}

// handleSearch scrapes catalog search results for a keyword.
func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{"results": []hianime.SearchResult{}})
		return
	}

	results, err := h.ctx.Catalog.Search(r.Context(), query)
	if err != nil {
		h.log.Error("search failed", "query", query, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Search failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleDetail returns series metadata plus its episode list.
func (h *Handlers) handleDetail(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("slug")
	if slug == "" {
		h.writeError(w, http.StatusBadRequest, "Missing slug", nil)
		return
	}

	detail, err := h.ctx.Catalog.Detail(r.Context(), slug)
	if err != nil {
		h.log.Error("detail failed", "slug", slug, "error", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load anime", err)
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

// handleSources resolves an episode to its proxied source and tracks.
func (h *Handlers) handleSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	epID := q.Get("epId")
	if epID == "" {
		h.writeError(w, http.StatusBadRequest, "epId is required", nil)
		return
	}

	category := q.Get("category")
	if category == "" {
		category = "sub"
	}
	title := q.Get("title")
	epNum := services.EpisodeNumber(q.Get("epNum"))

	resolved, err := h.ctx.Resolver.Sources(r.Context(), epID, category, title, epNum)
	if err != nil {
		h.log.Error("source resolution failed", "episode_id", epID, "category", category, "error", err)
		h.writeError(w, h.resolutionStatus(err), "Source resolution failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, resolved)
}

// handleSegments returns the flat proxied segment list for an episode.
func (h *Handlers) handleSegments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	epID := q.Get("epId")
	if epID == "" {
		h.writeError(w, http.StatusBadRequest, "epId is required", nil)
		return
	}

	category := q.Get("category")
	if category == "" {
		category = "sub"
	}

	segments, err := h.ctx.Resolver.Segments(r.Context(), epID, category)
	if err != nil {
		h.log.Error("segment extraction failed", "episode_id", epID, "category", category, "error", err)
		h.writeError(w, h.resolutionStatus(err), "Segment extraction failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, segments)
}

// handleProxy relays a media resource, rewriting playlists on the way
// through.
func (h *Handlers) handleProxy(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		h.writeText(w, http.StatusBadRequest, "Missing url")
		return
	}

	result, err := h.ctx.Proxy.Fetch(r.Context(), target)
	if err != nil {
		h.log.Error("proxy fetch failed", "url", target, "error", err)
		h.writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeFetchResult(w, result)
}

// handleSubtitles relays a subtitle file normalized to WebVTT.
func (h *Handlers) handleSubtitles(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		h.writeText(w, http.StatusBadRequest, "Missing url")
		return
	}

	result, err := h.ctx.Proxy.FetchSubtitle(r.Context(), target)
	if err != nil {
		h.log.Error("subtitle fetch failed", "url", target, "error", err)
		h.writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeFetchResult(w, result)
}

// handleTranslatedArabic serves a machine-translated subtitle document,
// optionally waiting for an in-flight generation to finish.
func (h *Handlers) handleTranslatedArabic(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		h.writeText(w, http.StatusBadRequest, "Missing key")
		return
	}

	if vtt, ok := h.ctx.Cache.Get(key); ok {
		h.writeVTT(w, vtt)
		return
	}

	if r.URL.Query().Get("wait") != "1" {
		h.writeText(w, http.StatusNotFound, "Translation not ready")
		return
	}

	vtt, err := h.ctx.Cache.Wait(r.Context(), key)
	if err != nil {
		if errors.Is(err, translate.ErrWaitTimeout) {
			h.writeText(w, http.StatusGatewayTimeout, "Translation timed out")
			return
		}
		// Client went away mid-wait.
		h.log.Debug("translation wait aborted", "key", key, "error", err)
		return
	}

	h.writeVTT(w, vtt)
}

// handleVerifyOTP validates a pending email verification code.
func (h *Handlers) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Code == "" {
		h.writeError(w, http.StatusBadRequest, "Missing fields", nil)
		return
	}

	identity, err := h.ctx.OTP.Verify(body.Email, body.Code)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, otpMessage(err), nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":          true,
		"displayName": identity.DisplayName,
		"username":    identity.Username,
	})
}

// handleAPIInfo returns server status as JSON.
func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "running",
		"version": "1.0.0",
	})
}

// resolutionStatus maps resolution errors to HTTP statuses.
func (h *Handlers) resolutionStatus(err error) int {
	if errors.Is(err, hianime.ErrServerNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func otpMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoPending):
		return "No pending verification for this email. Please sign up again."
	case errors.Is(err, auth.ErrExpired):
		return "Code expired. Please sign up again."
	case errors.Is(err, auth.ErrBadCode):
		return "Incorrect code. Try again."
	default:
		return "Verification failed."
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string, err error) {
	payload := map[string]string{"error": message}
	if err != nil {
		payload["message"] = err.Error()
	}
	h.writeJSON(w, status, payload)
}

func (h *Handlers) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}

func (h *Handlers) writeVTT(w http.ResponseWriter, vtt string) {
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(vtt))
}

func (h *Handlers) writeFetchResult(w http.ResponseWriter, result *services.FetchResult) {
	w.Header().Set("Content-Type", result.ContentType)
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}
