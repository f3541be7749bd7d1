package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/buttons"
	"github.com/Dhivyaa21/pull-request-notifier-for-bitbucket/internal/scm"
)

// userHeader names the header carrying the authenticated user set by
// the fronting proxy. Blank means anonymous.
const userHeader = "X-Forwarded-User"

// buttonView is the wire shape of one visible button. Allow-lists stay
// server side.
type buttonView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// pressedRequest is the wire shape of one button press.
type pressedRequest struct {
	Repository  string `json:"repository"`
	PullRequest int64  `json:"pull_request"`
	Button      string `json:"button"`
}

// handleButtons lists buttons visible to the calling user on one pull request.
// Params: GET with repository and pull_request query parameters.
// Returns: JSON array of id/title pairs.
func (s *Service) handleButtons(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	repoID, prID, ok := pullRequestParams(writer, request)
	if !ok {
		return
	}

	visible, err := s.buttons.GetButtons(request.Context(), request.Header.Get(userHeader), repoID, prID)
	if err != nil {
		if errors.Is(err, scm.ErrNotFound) {
			http.Error(writer, "pull request not found", http.StatusNotFound)
			return
		}
		http.Error(writer, "pull request lookup failed", http.StatusBadGateway)
		return
	}

	views := make([]buttonView, 0, len(visible))
	for _, button := range visible {
		views = append(views, buttonView{ID: button.ID.String(), Title: button.Title})
	}
	writeJSON(writer, http.StatusOK, views)
}

// handleButtonPressed runs the notifications behind one pressed button.
// Params: POST with JSON repository, pull_request, and button id.
// Returns: 204 on dispatch, 403/404 on permission or lookup failures.
func (s *Service) handleButtonPressed(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var pressed pressedRequest
	if err := json.NewDecoder(request.Body).Decode(&pressed); err != nil {
		http.Error(writer, "malformed request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(pressed.Repository) == "" || pressed.PullRequest <= 0 {
		http.Error(writer, "repository and pull_request are required", http.StatusBadRequest)
		return
	}
	buttonID, err := uuid.Parse(pressed.Button)
	if err != nil {
		http.Error(writer, "malformed button id", http.StatusBadRequest)
		return
	}

	err = s.buttons.HandlePressed(request.Context(), request.Header.Get(userHeader), pressed.Repository, pressed.PullRequest, buttonID)
	switch {
	case err == nil:
		writer.WriteHeader(http.StatusNoContent)
	case errors.Is(err, buttons.ErrNotAllowed):
		http.Error(writer, "button not allowed for user", http.StatusForbidden)
	case errors.Is(err, buttons.ErrButtonNotFound):
		http.Error(writer, "button not found", http.StatusNotFound)
	case errors.Is(err, scm.ErrNotFound):
		http.Error(writer, "pull request not found", http.StatusNotFound)
	default:
		http.Error(writer, "pull request lookup failed", http.StatusBadGateway)
	}
}

// handleOutcomes serves recent dispatch outcomes, newest first.
// Params: GET with optional limit query parameter.
// Returns: JSON array of dispatch records.
func (s *Service) handleOutcomes(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodGet {
		http.Error(writer, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit := defaultOutcomeRows
	if raw := request.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(writer, "malformed limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	writeJSON(writer, http.StatusOK, s.history.Recent(limit))
}

// pullRequestParams extracts repository and pull-request coordinates.
// Params: response writer for error replies and inbound request.
// Returns: repo id, pull-request id, and whether parsing succeeded.
func pullRequestParams(writer http.ResponseWriter, request *http.Request) (string, int64, bool) {
	repoID := strings.TrimSpace(request.URL.Query().Get("repository"))
	if repoID == "" {
		http.Error(writer, "repository is required", http.StatusBadRequest)
		return "", 0, false
	}
	prID, err := strconv.ParseInt(request.URL.Query().Get("pull_request"), 10, 64)
	if err != nil || prID <= 0 {
		http.Error(writer, "malformed pull_request", http.StatusBadRequest)
		return "", 0, false
	}
	return repoID, prID, true
}

// writeJSON writes one JSON response with status.
// Params: writer, status code, and payload.
// Returns: nothing. Encode errors are ignored after headers are sent.
func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}
