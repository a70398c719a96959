package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/indexer"
	"github.com/hyperjump/medibot/internal/models"
	"go.uber.org/zap"
)

type reloadResponse struct {
	Status     string         `json:"status"`
	Generation uint64         `json:"generation"`
	Build      *indexer.Stats `json:"build,omitempty"`
}

type statusResponse struct {
	Loaded     bool           `json:"loaded"`
	Generation uint64         `json:"generation"`
	Model      string         `json:"model"`
	Index      *bundle.Status `json:"index,omitempty"`
}

type sessionResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []models.Turn `json:"turns"`
}

// streamLine is one NDJSON line of a streamed answer: fragments first, then the final answer.
type streamLine struct {
	Fragment string         `json:"fragment,omitempty"`
	Answer   *models.Answer `json:"answer,omitempty"`
}

func (s *Server) decodeQuery(w http.ResponseWriter, r *http.Request) (*models.Query, bool) {
	var query models.Query
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	return &query, true
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	s.logger.Debug("ask request", zap.String("session", query.SessionID), zap.Int("question_length", len(query.Question)))
	answer := s.asker.Answer(r.Context(), query.Question, query.SessionID)
	s.respondJSON(w, answerStatus(answer), answer)
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	query, ok := s.decodeQuery(w, r)
	if !ok {
		return
	}
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	write := func(line streamLine) {
		if err := enc.Encode(line); err != nil {
			s.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	answer := s.asker.AnswerStream(r.Context(), query.Question, query.SessionID, func(fragment string) {
		write(streamLine{Fragment: fragment})
	})
	write(streamLine{Answer: answer})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns := s.asker.History(id)
	if len(turns) == 0 {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, sessionResponse{SessionID: id, Turns: turns})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("reset session request", zap.String("session", id))
	if !s.asker.Reset(id) {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "reset"})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.respondError(w, http.StatusNotImplemented, "index reload not enabled")
		return
	}
	rebuild, _ := strconv.ParseBool(r.URL.Query().Get("rebuild"))
	s.logger.Info("index reload request", zap.Bool("rebuild", rebuild))

	resp := reloadResponse{Status: "reloaded"}
	if rebuild {
		stats, err := s.refresher.Rebuild(r.Context())
		if err != nil {
			s.logger.Error("index rebuild failed", zap.Error(err))
			s.respondError(w, indexErrorStatus(err), err.Error())
			return
		}
		resp.Status = "rebuilt"
		resp.Build = stats
	} else if err := s.refresher.Reload(r.Context()); err != nil {
		s.logger.Error("index reload failed", zap.Error(err))
		s.respondError(w, indexErrorStatus(err), err.Error())
		return
	}
	resp.Generation = s.handle.Generation()
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Loaded:     s.handle.Loaded(),
		Generation: s.handle.Generation(),
		Model:      s.asker.Model(),
	}
	if resp.Loaded {
		err := s.handle.View(func(b *bundle.Bundle) error {
			status, err := b.Status(r.Context())
			resp.Index = status
			return err
		})
		if err != nil && !errors.Is(err, models.ErrIndexNotFound) {
			s.logger.Error("status failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Loaded = resp.Index != nil
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// answerStatus maps an answer to its HTTP status. Insufficient context is a successful answer.
func answerStatus(a *models.Answer) int {
	if a.Succeeded() {
		return http.StatusOK
	}
	switch a.Reason {
	case models.ReasonInvalidRequest:
		return http.StatusBadRequest
	case models.ReasonGenerationTimeout:
		return http.StatusGatewayTimeout
	case models.ReasonGenerationUnavailable, models.ReasonEmbeddingUnavailable, models.ReasonIndexUnavailable, models.ReasonCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func indexErrorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrIncompatibleIndex), errors.Is(err, models.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
