package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPProvider calls the spreadsheet service's JSON API. Every call waits on
// a shared token bucket so a burst of jobs cannot exceed the upstream quota.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
}

func NewHTTPProvider(cfg Config) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: newLimiter(cfg.RatePerSec),
	}
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) Validate(ctx context.Context, req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	return p.do(ctx, "validate", "/v1/validate", req, nil)
}

func (p *HTTPProvider) CreateFolder(ctx context.Context, req Request) (*Folder, error) {
	var out Folder
	if err := p.do(ctx, "folder", "/v1/folders", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type copyRequest struct {
	Request
	FolderID string `json:"folder_id"`
}

func (p *HTTPProvider) CopyTemplate(ctx context.Context, req Request, folder *Folder) (*Sheet, error) {
	body := copyRequest{Request: req}
	if folder != nil {
		body.FolderID = folder.ID
	}
	var out Sheet
	if err := p.do(ctx, "copy", "/v1/spreadsheets/copy", body, &out); err != nil {
		return nil, err
	}
	if out.SpreadsheetID == "" || out.URL == "" {
		return nil, &ProviderError{Op: "copy", Status: http.StatusOK, Message: "response missing spreadsheet id or url"}
	}
	return &out, nil
}

type linkRequest struct {
	Request
	SpreadsheetID string `json:"spreadsheet_id"`
	URL           string `json:"url"`
}

func (p *HTTPProvider) SaveLink(ctx context.Context, req Request, sheet *Sheet) error {
	return p.do(ctx, "save", "/v1/links", linkRequest{
		Request:       req,
		SpreadsheetID: sheet.SpreadsheetID,
		URL:           sheet.URL,
	}, nil)
}

func (p *HTTPProvider) do(ctx context.Context, op, path string, body, out any) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sheets %s: %w", op, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sheets %s marshal: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sheets %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("sheets %s http: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("sheets %s read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &ProviderError{Op: op, Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("sheets %s unmarshal: %w", op, err)
	}
	return nil
}
