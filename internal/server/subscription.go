package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/user/githubalerts/internal/domain"
)

// Subscriptions is the coordinator surface the HTTP layer drives.
type Subscriptions interface {
	FindAll(ctx context.Context, slackID domain.SlackUserID) ([]domain.Subscription, error)
	Subscribe(ctx context.Context, slackID domain.SlackUserID, sub domain.Subscription) error
	Unsubscribe(ctx context.Context, slackID domain.SlackUserID, repo domain.Repository) error
}

const maxBodyBytes = 1 << 20

type subscriptionHandler struct {
	subs Subscriptions
}

func slackUserParam(w http.ResponseWriter, r *http.Request) (domain.SlackUserID, bool) {
	id := r.URL.Query().Get("slackUserId")
	if id == "" {
		badRequest(w, "slackUserId query parameter is required")
		return "", false
	}
	return domain.SlackUserID(id), true
}

func repositoryBody(w http.ResponseWriter, r *http.Request) (domain.Repository, bool) {
	var repo domain.Repository
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&repo); err != nil {
		badRequest(w, "body must be a JSON object with owner and name")
		return repo, false
	}
	if !repo.Valid() {
		badRequest(w, "owner and name must not be empty")
		return repo, false
	}
	return repo, true
}

func (h *subscriptionHandler) list(w http.ResponseWriter, r *http.Request) {
	slackID, ok := slackUserParam(w, r)
	if !ok {
		return
	}
	subs, err := h.subs.FindAll(r.Context(), slackID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *subscriptionHandler) subscribe(w http.ResponseWriter, r *http.Request) {
	slackID, ok := slackUserParam(w, r)
	if !ok {
		return
	}
	repo, ok := repositoryBody(w, r)
	if !ok {
		return
	}
	if err := h.subs.Subscribe(r.Context(), slackID, domain.Subscription{Repository: repo}); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *subscriptionHandler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	slackID, ok := slackUserParam(w, r)
	if !ok {
		return
	}
	repo, ok := repositoryBody(w, r)
	if !ok {
		return
	}
	if err := h.subs.Unsubscribe(r.Context(), slackID, repo); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
