package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/m-novikov/bookhaven/internal/enrich"
	"github.com/m-novikov/bookhaven/internal/errs"
	"github.com/m-novikov/bookhaven/internal/ingest"
	"github.com/m-novikov/bookhaven/internal/localstore"
	"github.com/m-novikov/bookhaven/internal/model"
	"github.com/m-novikov/bookhaven/internal/session"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	id, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"user_id": id})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	tok, user, err := s.auth.Login(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		writeError(w, err)
		return
	}

	fresh, err := s.ctrl.SignIn(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.local.SaveToken(localstore.Token{
		AccessToken: tok.AccessToken,
		UserID:      user.ID,
		ExpiresAt:   tok.ExpiresAt,
	}); err != nil {
		s.logger.Warn("persist token: " + err.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"fresh":      fresh,
		"migratable": fresh && len(s.ctrl.Snapshot().Bookmarks) > 0,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.SignOut()
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

func (s *Server) handleGetStore(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var b model.Bookmark
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	if b.ExternalID == "" || (b.Content == "" && b.URL == "") {
		writeError(w, fmt.Errorf("bookmark needs an id and content or url: %w", errs.ErrValidation))
		return
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if !b.ReadingStatus.Valid() {
		b.ReadingStatus = model.StatusUnread
	}
	if b.PostedAt.IsZero() {
		b.PostedAt = time.Now().UTC()
	}

	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		st.Bookmarks = append(st.Bookmarks, b)
		return st, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Status model.ReadingStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	now := time.Now().UTC()
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		next, err := model.SetReadingStatus(st, id, req.Status, now)
		if err != nil {
			return st, fmt.Errorf("%v: %w", err, errs.ErrValidation)
		}
		return next, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (s *Server) handleSetPriority(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Priority model.Priority `json:"priority"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		next, err := model.SetPriority(st, id, req.Priority)
		if err != nil {
			return st, fmt.Errorf("%v: %w", err, errs.ErrValidation)
		}
		return next, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Progress int `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		return model.SetProgress(st, id, req.Progress), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" {
		writeError(w, fmt.Errorf("category required: %w", errs.ErrValidation))
		return
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		return model.ToggleFavorite(st, id, req.Category), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAcceptTags(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		return model.AcceptSuggestedTags(st, id), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAppendNotes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, fmt.Errorf("text required: %w", errs.ErrValidation))
		return
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		return model.AppendNotes(st, id, req.Text), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddHighlight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req model.Highlight
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, fmt.Errorf("highlight text required: %w", errs.ErrValidation))
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		return model.AddHighlight(st, id, req), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (s *Server) handleAddCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		ParentID string `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		next, err := model.AddCollection(st, req.ID, req.Name, req.ParentID)
		if err != nil {
			return st, fmt.Errorf("%v: %w", err, errs.ErrValidation)
		}
		return next, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleReparent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		ParentID string `json:"parentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %w", errs.ErrValidation))
		return
	}
	err := s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		next, err := model.Reparent(st, id, req.ParentID)
		if err != nil {
			return st, fmt.Errorf("%v: %w", err, errs.ErrValidation)
		}
		return next, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImport ingests a CSV archive from the request body. Imported rows are
// appended and deduplicated against what the store already holds.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	res, err := ingest.ParseCSV(r.Body, time.Now().UTC())
	if err != nil {
		writeError(w, fmt.Errorf("%v: %w", err, errs.ErrValidation))
		return
	}
	before := 0
	err = s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		before = len(st.Bookmarks)
		st.Bookmarks = append(st.Bookmarks, res.Bookmarks...)
		for _, b := range res.Bookmarks {
			if !containsID(st.Queue.Unread, b.ExternalID) &&
				!containsID(st.Queue.Reading, b.ExternalID) &&
				!containsID(st.Queue.Completed, b.ExternalID) {
				st.Queue.Unread = append(st.Queue.Unread, b.ExternalID)
			}
		}
		return st, nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	after := len(s.ctrl.Snapshot().Bookmarks)
	writeJSON(w, http.StatusOK, map[string]int{
		"imported": after - before,
		"merged":   len(res.Bookmarks) - (after - before),
		"dropped":  res.Dropped,
	})
}

func (s *Server) handleEnrich(w http.ResponseWriter, r *http.Request) {
	if s.enricher == nil {
		writeError(w, fmt.Errorf("enrichment is not configured: %w", errs.ErrUnavailable))
		return
	}
	id := chi.URLParam(r, "id")

	var target *model.Bookmark
	snap := s.ctrl.Snapshot()
	for i := range snap.Bookmarks {
		if snap.Bookmarks[i].ExternalID == id {
			target = &snap.Bookmarks[i]
			break
		}
	}
	if target == nil {
		writeError(w, fmt.Errorf("bookmark %q: %w", id, errs.ErrNotFound))
		return
	}

	res, err := s.enricher.Analyze(r.Context(), *target)
	if errors.Is(err, errs.ErrUnavailable) {
		// one retry per user request, never in background
		res, err = s.enricher.Analyze(r.Context(), *target)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	err = s.ctrl.Update(r.Context(), func(st model.Store) (model.Store, error) {
		return enrich.Apply(st, id, res), nil
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	rep, err := s.ctrl.MigrateLocal(r.Context(), s.migrator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.ReloadRemote(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// handleErase purges every remote row of the signed-in owner. Destruction is
// gated behind an explicit confirmation phrase in the body.
func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Confirm != "ERASE" {
		writeError(w, fmt.Errorf(`body must carry {"confirm":"ERASE"}: %w`, errs.ErrValidation))
		return
	}
	rep, err := s.ctrl.EraseRemote(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"state":       stateName(s.ctrl.State()),
		"lastWarning": s.ctrl.LastWarning(),
	})
}

func stateName(st session.State) string {
	switch st {
	case session.Authenticated:
		return "authenticated"
	case session.Authenticating:
		return "authenticating"
	default:
		return "anonymous"
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func containsID(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}
