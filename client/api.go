// Package client is a Go client for the quick elections API: a typed HTTP
// wrapper, client-held caches (session, vote history, access grants) and the
// periodic synchronization loop that keeps a local view consistent with the
// server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/quick-elections/backend/internal/middleware"
	"github.com/quick-elections/backend/internal/models"
)

// APIError is a non-2xx response. Detail is the server's human-readable
// message, surfaced to users verbatim.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 API error. A not-found on an access
// code means the cached grant must be dropped; any other failure keeps it.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsConflict reports whether err is a 409 API error (poll closed, already voted).
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// API is a typed HTTP client for the polling endpoints.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI creates an API client. httpClient may be nil to use http.DefaultClient.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Login resolves a display name into a session.
func (a *API) Login(ctx context.Context, name string) (models.Session, error) {
	var s models.Session
	err := a.do(ctx, http.MethodPost, "/login", "", map[string]string{"name": name}, &s)
	return s, err
}

// ListPolls fetches the full poll collection (admin credential required).
func (a *API) ListPolls(ctx context.Context, adminKey string) ([]*models.Poll, error) {
	var list []*models.Poll
	err := a.do(ctx, http.MethodGet, "/polls", adminKey, nil, &list)
	return list, err
}

// CreatePoll creates a poll (admin credential required).
func (a *API) CreatePoll(ctx context.Context, adminKey, title string, options []string, accessCode string) (*models.Poll, error) {
	body := map[string]interface{}{"title": title, "options": options, "access_code": accessCode}
	var p models.Poll
	if err := a.do(ctx, http.MethodPost, "/polls", adminKey, body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ClosePoll closes a poll (admin credential required).
func (a *API) ClosePoll(ctx context.Context, adminKey string, id uuid.UUID) (*models.Poll, error) {
	var p models.Poll
	if err := a.do(ctx, http.MethodPost, "/polls/"+id.String()+"/close", adminKey, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Vote casts a vote and returns the updated poll.
func (a *API) Vote(ctx context.Context, id uuid.UUID, voterName string, optionID uuid.UUID) (*models.Poll, error) {
	body := map[string]string{"voter_name": voterName, "option_id": optionID.String()}
	var p models.Poll
	if err := a.do(ctx, http.MethodPost, "/polls/"+id.String()+"/vote", "", body, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PollByCode fetches the poll unlocked by an access code.
func (a *API) PollByCode(ctx context.Context, code string) (*models.Poll, error) {
	var p models.Poll
	if err := a.do(ctx, http.MethodPost, "/polls/access", "", map[string]string{"code": code}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (a *API) do(ctx context.Context, method, path, adminKey string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if adminKey != "" {
		req.Header.Set(middleware.AdminKeyHeader, adminKey)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Detail: "request failed"}
		var envelope struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Detail != "" {
			apiErr.Detail = envelope.Detail
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
