// Package web serves the JSON study API over a scheduler.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	stdsync "sync"
	"time"

	"github.com/conorfennell/knolsched/internal/domain"
	"github.com/conorfennell/knolsched/internal/queue"
	"github.com/conorfennell/knolsched/internal/scheduler"
	"github.com/conorfennell/knolsched/internal/storage"
	"github.com/conorfennell/knolsched/internal/sync"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	db       *storage.DB
	router   *http.ServeMux
	logger   *slog.Logger
	syncOpts sync.Options

	// mu serialises every use of sched.
	mu    stdsync.Mutex
	sched *scheduler.Scheduler
}

// NewServer creates and configures a new server.
func NewServer(db *storage.DB, sched *scheduler.Scheduler, syncOpts sync.Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		db:       db,
		router:   http.NewServeMux(),
		logger:   logger,
		syncOpts: syncOpts,
		sched:    sched,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("GET /study/next", s.handleNextCard)
	s.router.HandleFunc("POST /study/answer", s.handleAnswer)
	s.router.HandleFunc("POST /study/reset", s.handleReset)
	s.router.HandleFunc("GET /study/counts", s.handleCounts)

	s.router.HandleFunc("GET /decks", s.handleDecks)
	s.router.HandleFunc("POST /decks/{id}/select", s.handleSelectDeck)
	s.router.HandleFunc("POST /filtered/{id}/rebuild", s.handleRebuildFiltered)
	s.router.HandleFunc("POST /filtered/{id}/empty", s.handleEmptyFiltered)

	s.router.HandleFunc("POST /sync", s.handleSync)
}

type cardResponse struct {
	ID      domain.CardID `json:"id"`
	DeckID  domain.DeckID `json:"deck_id"`
	Ordinal int           `json:"ordinal"`
	Queue   string        `json:"queue"`
	Front   string        `json:"front"`
	Back    string        `json:"back"`
	Context string        `json:"context,omitempty"`
}

type nextResponse struct {
	Done   bool          `json:"done"`
	Card   *cardResponse `json:"card,omitempty"`
	Counts queue.Counts  `json:"counts"`
}

type answerRequest struct {
	CardID      domain.CardID `json:"card_id"`
	Ease        domain.Ease   `json:"ease"`
	TimeTakenMS int64         `json:"time_taken_ms"`
}

type deckResponse struct {
	ID       domain.DeckID `json:"id"`
	Name     string        `json:"name"`
	Filtered bool          `json:"filtered"`
	Selected bool          `json:"selected"`
}

type syncResponse struct {
	sync.Report
	Errors []string `json:"errors"`
}

func (s *Server) handleNextCard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, err := s.sched.NextCard(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	var resp nextResponse
	if card == nil {
		resp.Done = true
	} else {
		note, err := s.db.NoteByID(r.Context(), card.NoteID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		front, back := note.Prompt(card.Ordinal)
		resp.Card = &cardResponse{
			ID:      card.ID,
			DeckID:  card.DeckID,
			Ordinal: card.Ordinal,
			Queue:   card.Queue.String(),
			Front:   front,
			Back:    back,
			Context: note.Context,
		}
	}
	if resp.Counts, err = s.sched.Counts(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err))
		return
	}
	if req.TimeTakenMS < 0 {
		s.writeError(w, fmt.Errorf("%w: negative time taken", domain.ErrInvalidInput))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	taken := time.Duration(req.TimeTakenMS) * time.Millisecond
	if err := s.sched.Answer(r.Context(), req.CardID, req.Ease, taken); err != nil {
		s.writeError(w, err)
		return
	}
	counts, err := s.sched.Counts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.sched.Reset()
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts, err := s.sched.Counts(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.db.Decks().All(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.mu.Lock()
	selected := s.sched.Selected()
	s.mu.Unlock()

	resp := make([]deckResponse, 0, len(decks))
	for _, d := range decks {
		resp = append(resp, deckResponse{
			ID:       d.ID,
			Name:     d.Name,
			Filtered: d.Filtered != nil,
			Selected: d.ID == selected,
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSelectDeck(w http.ResponseWriter, r *http.Request) {
	id, err := deckID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sched.SelectDeck(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRebuildFiltered(w http.ResponseWriter, r *http.Request) {
	s.filteredOp(w, r, s.sched.RebuildFiltered)
}

func (s *Server) handleEmptyFiltered(w http.ResponseWriter, r *http.Request) {
	s.filteredOp(w, r, s.sched.EmptyFiltered)
}

func (s *Server) filteredOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, deck domain.DeckID) (int, error)) {
	id, err := deckID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := op(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"cards": n})
}

// handleSync runs in the foreground so the caller waits for the result.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := sync.Run(r.Context(), s.db, s.syncOpts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.sched.Reset()

	resp := syncResponse{Report: report, Errors: make([]string, 0, len(report.Errors))}
	for _, e := range report.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func deckID(r *http.Request) (domain.DeckID, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid deck id %q", domain.ErrInvalidInput, r.PathValue("id"))
	}
	return domain.DeckID(id), nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStaleCard):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
