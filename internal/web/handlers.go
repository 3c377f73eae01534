package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/conorfennell/coursedeck/internal/domain"
	"github.com/conorfennell/coursedeck/internal/storage"
)

// handleIndex renders the document library and the deck list.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	listing, err := s.Library.List()
	if err != nil {
		s.fail(w, r, "Failed to list documents", err)
		return
	}
	decks, err := s.Store.ListDecks(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list decks", err)
		return
	}
	s.render(w, http.StatusOK, "index", map[string]any{
		"Originals": listing.Originals,
		"Uploads":   listing.Uploads,
		"Decks":     decks,
	})
}

// handleUpload stores an uploaded PDF and returns to the index.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("document")
	if err != nil {
		http.Error(w, "A PDF file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name, err := s.Library.Save(header.Filename, file)
	if err != nil {
		s.fail(w, r, "Failed to store upload", err)
		return
	}
	s.Log.Info("document uploaded", "name", name, "user", userFrom(r.Context()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleDeckProgress renders the user's score and draw weight per card.
func (s *Server) handleDeckProgress(w http.ResponseWriter, r *http.Request) {
	deck := r.URL.Query().Get("deck")
	rows, err := s.Study.DeckProgress(r.Context(), userFrom(r.Context()), deck)
	if err != nil {
		s.fail(w, r, "Failed to load progress", err)
		return
	}
	s.render(w, http.StatusOK, "deck_progress", map[string]any{
		"Deck":  deck,
		"Cards": rows,
	})
}

// handleGetNextReview renders the front of the next drawn card.
func (s *Server) handleGetNextReview(w http.ResponseWriter, r *http.Request) {
	deck := r.URL.Query().Get("deck")
	card, err := s.Study.NextCard(r.Context(), userFrom(r.Context()), deck)
	if err != nil {
		s.fail(w, r, "Failed to draw the next card", err)
		return
	}
	s.renderCard(w, deck, card)
}

// handleShowAnswer renders the back of a card.
func (s *Server) handleShowAnswer(w http.ResponseWriter, r *http.Request) {
	deck := r.URL.Query().Get("deck")
	card, err := s.Store.FindCard(r.Context(), deck, chi.URLParam(r, "hash"))
	if err != nil {
		s.fail(w, r, "Failed to load card", err)
		return
	}
	if card == nil {
		http.NotFound(w, r)
		return
	}
	s.render(w, http.StatusOK, "card_back", map[string]any{"Deck": deck, "Card": card})
}

type voteForm struct {
	Deck    string `validate:"required"`
	Outcome string `validate:"required,oneof=known unknown"`
}

// handlePostReview records a vote and renders the next card.
func (s *Server) handlePostReview(w http.ResponseWriter, r *http.Request) {
	form := voteForm{
		Deck:    r.PostFormValue("deck"),
		Outcome: r.PostFormValue("outcome"),
	}
	if err := s.validate.Struct(form); err != nil {
		http.Error(w, "Invalid vote: "+err.Error(), http.StatusBadRequest)
		return
	}
	outcome, err := domain.ParseOutcome(form.Outcome)
	if err != nil {
		s.fail(w, r, "Invalid vote", err)
		return
	}

	next, err := s.Study.RecordVote(r.Context(), userFrom(r.Context()), form.Deck, chi.URLParam(r, "hash"), outcome)
	if err != nil {
		s.fail(w, r, "Failed to record vote", err)
		return
	}
	s.renderCard(w, form.Deck, next)
}

func (s *Server) renderCard(w http.ResponseWriter, deck string, card *domain.Card) {
	if card == nil {
		s.render(w, http.StatusOK, "deck_empty", map[string]any{"Deck": deck})
		return
	}
	s.render(w, http.StatusOK, "card_front", map[string]any{"Deck": deck, "Card": card})
}

// handleGetSources renders the main sources management page.
func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	s.renderSources(w, r, "sources")
}

// handlePostSource adds a new source and re-renders the source list.
func (s *Server) handlePostSource(w http.ResponseWriter, r *http.Request) {
	path := r.PostFormValue("path")
	if path == "" {
		http.Error(w, "Path cannot be empty", http.StatusBadRequest)
		return
	}
	if _, err := s.Syncer.AddSource(r.Context(), path); err != nil {
		s.fail(w, r, "Failed to add source", err)
		return
	}
	s.renderSources(w, r, "source_list")
}

// handleDeleteSource deletes a source and re-renders the source list.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid source ID", http.StatusBadRequest)
		return
	}
	if err := s.Store.DeleteSource(r.Context(), id); err != nil {
		s.fail(w, r, "Failed to delete source", err)
		return
	}
	s.renderSources(w, r, "source_list")
}

// handlePostSync runs a sync in the foreground and re-renders the source list.
func (s *Server) handlePostSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.Syncer.Run(r.Context())
	if err != nil {
		s.fail(w, r, "Sync failed", err)
		return
	}
	sources, err := s.Store.GetAllSources(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list sources", err)
		return
	}
	s.render(w, http.StatusOK, "sync_result", map[string]any{
		"Report":  report,
		"Errors":  errorStrings(report.Errors),
		"Sources": sources,
	})
}

func (s *Server) renderSources(w http.ResponseWriter, r *http.Request, name string) {
	sources, err := s.Store.GetAllSources(r.Context())
	if err != nil {
		s.fail(w, r, "Failed to list sources", err)
		return
	}
	if sources == nil {
		sources = []storage.Source{}
	}
	s.render(w, http.StatusOK, name, map[string]any{"Sources": sources})
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}
