package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"stockmaster/backend/internal/domain"
	"stockmaster/backend/internal/validation"
)

const (
	csrfPath   = "/api/v1/auth/csrf-token"
	submitPath = "/api/v1/items/submit"
)

// httpSubmitter posts line-item forms to the server's submit endpoint.
type httpSubmitter struct {
	baseURL    string
	httpClient *http.Client
	token      func() string
}

func (s httpSubmitter) Submit(ctx context.Context, form url.Values) (domain.SubmissionResponse, error) {
	csrf, err := s.csrfToken(ctx)
	if err != nil {
		return domain.SubmissionResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+submitPath, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.SubmissionResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+s.token())
	req.Header.Set("X-CSRF-Token", csrf)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.SubmissionResponse{}, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out domain.SubmissionResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return domain.SubmissionResponse{}, fmt.Errorf("submit decode error: %w", err)
		}
		return out, nil
	case http.StatusUnprocessableEntity:
		var failure struct {
			Fields validation.Errors `json:"fields"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
			return domain.SubmissionResponse{}, fmt.Errorf("submit decode error: %w", err)
		}
		return domain.SubmissionResponse{}, failure.Fields
	default:
		return domain.SubmissionResponse{}, fmt.Errorf("submit failed: %s", readError(resp))
	}
}

func (s httpSubmitter) csrfToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+csrfPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("csrf request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("csrf token failed: %s", readError(resp))
	}

	var payload struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("csrf decode error: %w", err)
	}
	return payload.Token, nil
}

func readError(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return resp.Status
}
