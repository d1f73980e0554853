package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/quizcraft/internal/config"
	"github.com/pavelanni/quizcraft/internal/i18n"
	"github.com/pavelanni/quizcraft/internal/model"
	"github.com/pavelanni/quizcraft/internal/session"
	"github.com/pavelanni/quizcraft/internal/store"
)

// Assistant provides the streamed hint and explanation affordances. They
// never touch the scored session state.
type Assistant interface {
	Hint(ctx context.Context, question, correctAnswer string, fn func(chunk string) error) error
	Explain(ctx context.Context, question, correctAnswer string, userAnswer *string, fn func(chunk string) error) error
}

// PrefsStore persists user preference flags.
type PrefsStore interface {
	GetPrefs() (model.Prefs, error)
	SetPrefs(model.Prefs) error
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	ctrl      *session.Controller
	history   store.HistoryStore
	prefs     PrefsStore // nil when the database is unavailable
	assistant Assistant
	settings  config.Settings
}

// New creates a new Handler.
func New(ctrl *session.Controller, history store.HistoryStore, prefs PrefsStore, assistant Assistant, settings config.Settings) *Handler {
	return &Handler{ctrl: ctrl, history: history, prefs: prefs, assistant: assistant, settings: settings}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/config", h.handleConfig)
	r.Get("/api/session", h.handleState)
	r.Post("/api/quiz", h.handleStartQuiz)
	r.Post("/api/session/answer", h.handleAnswer)
	r.Post("/api/session/next", h.handleAdvance)
	r.Post("/api/session/retry", h.handleRetry)
	r.Post("/api/session/reset", h.handleReset)
	r.Post("/api/session/replay/{entryID}", h.handleReplay)
	r.Get("/api/history", h.handleHistory)
	r.Delete("/api/history", h.handleClearHistory)
	r.Delete("/api/history/{entryID}", h.handleDeleteEntry)
	r.Post("/api/hint", h.handleHint)
	r.Post("/api/explain", h.handleExplain)
	r.Get("/api/prefs", h.handleGetPrefs)
	r.Put("/api/prefs", h.handlePutPrefs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// sessionError maps controller errors onto HTTP statuses. Validation and
// generation failures are the user's to see; everything else is a conflict
// with the current phase.
func (h *Handler) sessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrGenerationTimeout):
		writeError(w, http.StatusGatewayTimeout, i18n.T(r.Context(), "GenerationTimedOut"))
	case errors.Is(err, session.ErrGeneration):
		slog.Error("quiz generation failed", "error", err)
		writeError(w, http.StatusBadGateway, i18n.T(r.Context(), "GenerationFailed"))
	case errors.Is(err, session.ErrNoQuestion),
		errors.Is(err, session.ErrAlreadyAnswered),
		errors.Is(err, session.ErrNoSavedQuiz):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"settings": h.settings})
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleStartQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic        string `json:"topic"`
		NumQuestions int    `json:"numQuestions"`
		Difficulty   string `json:"difficulty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.ctrl.StartQuiz(r.Context(), req.Topic, req.NumQuestions, req.Difficulty); err != nil {
		h.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.ctrl.SelectAnswer(req.Answer); err != nil {
		h.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Advance(); err != nil {
		h.sessionError(w, r, err)
		return
	}
	snap := h.ctrl.Snapshot()
	resp := map[string]any{"session": snap}
	if snap.Phase == model.PhaseSummary && !snap.HistorySaved {
		resp["message"] = i18n.T(r.Context(), "HistoryNotSaved")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Retry(); err != nil {
		h.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StartNewQuiz()
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry ID")
		return
	}

	entries, err := h.history.GetAll()
	if err != nil {
		slog.Warn("history read failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, i18n.T(r.Context(), "HistoryUnavailable"))
		return
	}
	var entry *model.HistoryEntry
	for i := range entries {
		if entries[i].ID == id {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, i18n.T(r.Context(), "EntryNotFound"))
		return
	}

	if err := h.ctrl.LoadFromHistory(*entry); err != nil {
		h.sessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.history.GetAll()
	if err != nil {
		// Degrade rather than fail: the quiz flow never depends on history.
		slog.Warn("history read failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": []model.HistoryEntry{},
			"message": i18n.T(r.Context(), "HistoryUnavailable"),
		})
		return
	}

	// Storage order is unspecified; newest first for display.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].ID > entries[j].ID
	})
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.history.DeleteAll(); err != nil {
		slog.Warn("history clear failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, i18n.T(r.Context(), "HistoryUnavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": i18n.T(r.Context(), "HistoryCleared")})
}

func (h *Handler) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry ID")
		return
	}
	if err := h.history.DeleteOne(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, i18n.T(r.Context(), "EntryNotFound"))
			return
		}
		slog.Warn("history delete failed", "entry_id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, i18n.T(r.Context(), "HistoryUnavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": i18n.T(r.Context(), "EntryDeleted")})
}

// handleHint streams hint chunks as plain text. Hints are only offered
// before the question is answered.
func (h *Handler) handleHint(w http.ResponseWriter, r *http.Request) {
	q, selected, err := h.ctrl.CurrentQuestion()
	if err != nil {
		h.sessionError(w, r, err)
		return
	}
	if selected != nil {
		writeError(w, http.StatusConflict, "question already answered")
		return
	}
	h.stream(w, r, func(fn func(string) error) error {
		return h.assistant.Hint(r.Context(), q.Question, q.CorrectAnswer, fn)
	})
}

// handleExplain streams an explanation after the question was answered.
func (h *Handler) handleExplain(w http.ResponseWriter, r *http.Request) {
	q, selected, err := h.ctrl.CurrentQuestion()
	if err != nil {
		h.sessionError(w, r, err)
		return
	}
	if selected == nil {
		writeError(w, http.StatusConflict, "question not answered yet")
		return
	}
	h.stream(w, r, func(fn func(string) error) error {
		return h.assistant.Explain(r.Context(), q.Question, q.CorrectAnswer, selected, fn)
	})
}

// stream writes chunks to the client as they arrive, flushing after each
// one so the consumer can concatenate them in order.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, run func(fn func(string) error) error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	flusher, _ := w.(http.Flusher)

	err := run(func(chunk string) error {
		if _, err := io.WriteString(w, chunk); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})
	if err != nil {
		// Headers may already be on the wire; log and end the stream.
		slog.Error("assistant stream failed", "error", err)
	}
}

func (h *Handler) handleGetPrefs(w http.ResponseWriter, r *http.Request) {
	if h.prefs == nil {
		writeJSON(w, http.StatusOK, model.DefaultPrefs())
		return
	}
	prefs, err := h.prefs.GetPrefs()
	if err != nil {
		slog.Warn("prefs read failed", "error", err)
		writeJSON(w, http.StatusOK, model.DefaultPrefs())
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) handlePutPrefs(w http.ResponseWriter, r *http.Request) {
	var prefs model.Prefs
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.prefs == nil {
		writeError(w, http.StatusServiceUnavailable, i18n.T(r.Context(), "HistoryUnavailable"))
		return
	}
	if err := h.prefs.SetPrefs(prefs); err != nil {
		slog.Warn("prefs write failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, i18n.T(r.Context(), "HistoryUnavailable"))
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}
