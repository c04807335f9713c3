package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/MimeLyc/dualsub/internal/apperr"
)

type tickRequest struct {
	Time float64 `json:"time"`
	// Text is the caption currently visible to the client, if any.
	Text string `json:"text,omitempty"`
}

type videoRequest struct {
	VideoID string `json:"video_id"`
}

type translateRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req tickRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if math.IsNaN(req.Time) || math.IsInf(req.Time, 0) || req.Time < 0 {
		writeError(w, http.StatusBadRequest, "time must be a non-negative number of seconds")
		return
	}

	frame, err := s.engine.Tick(r.Context(), req.Time, req.Text)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, frame)
}

func (s *Server) handleSetVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.VideoID = strings.TrimSpace(req.VideoID)
	if req.VideoID == "" {
		writeError(w, http.StatusBadRequest, "video_id is required")
		return
	}

	epoch, err := s.engine.SetVideo(r.Context(), req.VideoID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, epoch)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handleGetTranslate(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.TranslationState(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	st, err := s.engine.SetTranslationEnabled(r.Context(), *req.Enabled)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleUpdateSettings merges the body into the current settings, so fields
// left out keep their values.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	req := s.engine.Settings()
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	change, err := s.engine.UpdateSettings(r.Context(), req)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settings":      change.Next,
		"changed":       change.Fields(),
		"cache_reset":   change.RequiresCacheReset(),
		"tracks_reload": change.RequiresTrackReload(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "json"
	}
	if format != "json" && format != "srt" {
		writeError(w, http.StatusBadRequest, "format must be json or srt")
		return
	}

	out, err := s.engine.Export(r.Context())
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeAppError(w, err)
		return
	}

	if format == "json" {
		writeJSON(w, http.StatusOK, out)
		return
	}

	filename := fmt.Sprintf("dualsub-translations-%d.txt", out.ExportedAt.UnixMilli())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out.Text()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "session is busy")
	case apperr.Is(err, apperr.KindValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
