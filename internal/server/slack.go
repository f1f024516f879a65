package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"github.com/user/githubalerts/internal/domain"
	"github.com/user/githubalerts/pkg/logger"
)

// SlackReply is the JSON body Slack renders for a slash command.
type SlackReply struct {
	ResponseType string `json:"response_type"`
	Text         string `json:"text"`
}

const helpText = "*Commands*\n" +
	"• `/subscribe owner/repo` subscribe to a repository\n" +
	"• `/unsubscribe owner/repo` stop notifications\n" +
	"• `/list` show your subscriptions"

type slackHandler struct {
	subs   Subscriptions
	secret string
}

func (h *slackHandler) reply(w http.ResponseWriter, text string) {
	writeJSON(w, http.StatusOK, SlackReply{ResponseType: "ephemeral", Text: text})
}

// ServeHTTP handles a slash command form post.
func (h *slackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		badRequest(w, "failed to read body")
		return
	}

	if h.secret != "" {
		if err := h.verify(r.Header, body); err != nil {
			logger.Warn().Err(err).Msg("Invalid Slack signature")
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "invalid signature"})
			return
		}
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		badRequest(w, "malformed form body")
		return
	}
	slackID := domain.SlackUserID(cmd.UserID)
	if slackID == "" {
		badRequest(w, "user_id is required")
		return
	}

	command := strings.TrimPrefix(cmd.Command, "/")
	args := strings.TrimSpace(cmd.Text)

	logger.Debug().
		Str("command", command).
		Str("args", args).
		Str("slack_user_id", string(slackID)).
		Msg("Received command")

	switch command {
	case "subscribe", "sub":
		h.handleSubscribe(w, r, slackID, args)
	case "unsubscribe", "unsub":
		h.handleUnsubscribe(w, r, slackID, args)
	case "list", "subscriptions":
		h.handleList(w, r, slackID)
	default:
		h.reply(w, helpText)
	}
}

func (h *slackHandler) handleSubscribe(w http.ResponseWriter, r *http.Request, slackID domain.SlackUserID, args string) {
	if args == "" {
		h.reply(w, "Please name a repository: `/subscribe owner/repo`")
		return
	}
	repo, err := domain.ParseRepository(args)
	if err != nil {
		h.reply(w, "Invalid repository, use `owner/repo`")
		return
	}

	err = h.subs.Subscribe(r.Context(), slackID, domain.Subscription{Repository: repo})
	switch {
	case err == nil:
		h.reply(w, fmt.Sprintf("Subscribed to *%s*. New events will be sent to you here.", repo))
	case errors.Is(err, domain.ErrRepositoryNotFound):
		h.reply(w, fmt.Sprintf("Repository `%s` does not exist or is not accessible", repo))
	default:
		h.failed(w, r, err)
	}
}

func (h *slackHandler) handleUnsubscribe(w http.ResponseWriter, r *http.Request, slackID domain.SlackUserID, args string) {
	if args == "" {
		h.reply(w, "Please name a repository: `/unsubscribe owner/repo`")
		return
	}
	repo, err := domain.ParseRepository(args)
	if err != nil {
		h.reply(w, "Invalid repository, use `owner/repo`")
		return
	}

	err = h.subs.Unsubscribe(r.Context(), slackID, repo)
	switch {
	case err == nil:
		h.reply(w, fmt.Sprintf("Unsubscribed from *%s*", repo))
	case errors.Is(err, domain.ErrSlackUserNotFound):
		h.reply(w, "You have no subscriptions yet.")
	default:
		h.failed(w, r, err)
	}
}

func (h *slackHandler) handleList(w http.ResponseWriter, r *http.Request, slackID domain.SlackUserID) {
	subs, err := h.subs.FindAll(r.Context(), slackID)
	if err != nil && !errors.Is(err, domain.ErrSlackUserNotFound) {
		h.failed(w, r, err)
		return
	}
	if len(subs) == 0 {
		h.reply(w, "You have no subscriptions yet. Use `/subscribe owner/repo` to add one.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Your subscriptions*\n")
	for _, s := range subs {
		fmt.Fprintf(&sb, "• %s (since %s)\n", s.Repository, s.SubscribedAt.Format("2006-01-02"))
	}
	h.reply(w, strings.TrimSuffix(sb.String(), "\n"))
}

func (h *slackHandler) failed(w http.ResponseWriter, r *http.Request, err error) {
	logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Msg("Slack command failed")
	h.reply(w, "Something went wrong, please try again later")
}

// verify checks the v0 request signature Slack sends with every command.
// Requests older than five minutes are rejected as replays.
func (h *slackHandler) verify(header http.Header, body []byte) error {
	sv, err := slack.NewSecretsVerifier(header, h.secret)
	if err != nil {
		return err
	}
	if _, err := sv.Write(body); err != nil {
		return err
	}
	return sv.Ensure()
}
