// Package sheets talks to the spreadsheet service that materializes creator
// sheets: validating a request, creating a folder, copying the template and
// registering the finished link.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Request describes one generation job.
type Request struct {
	JobID       string `json:"job_id"`
	ModelName   string `json:"model_name"`
	DisplayName string `json:"display_name"`
	Title       string `json:"title"`
	TemplateID  string `json:"template_id"`
}

// Folder is the destination folder created for a job.
type Folder struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Sheet is the spreadsheet copied from the template.
type Sheet struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	URL           string `json:"url"`
}

// Provider is implemented by each spreadsheet backend.
type Provider interface {
	Name() string
	Validate(ctx context.Context, req Request) error
	CreateFolder(ctx context.Context, req Request) (*Folder, error)
	CopyTemplate(ctx context.Context, req Request, folder *Folder) (*Sheet, error)
	SaveLink(ctx context.Context, req Request, sheet *Sheet) error
}

// ProviderError is a non-2xx answer from the spreadsheet service.
type ProviderError struct {
	Op      string
	Status  int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sheets %s failed (status %d): %s", e.Op, e.Status, e.Message)
}

var ErrInvalidRequest = errors.New("invalid sheet request")

// Config selects and tunes a provider.
type Config struct {
	BaseURL    string
	APIKey     string
	RatePerSec float64
	TemplateID string
	StepDelay  time.Duration
}

// NewProvider returns the HTTP provider when a base URL is configured and the
// local dev provider otherwise.
func NewProvider(cfg Config) Provider {
	if cfg.BaseURL == "" {
		return NewDevProvider(cfg.StepDelay)
	}
	return NewHTTPProvider(cfg)
}

func newLimiter(perSec float64) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func validateRequest(req Request) error {
	switch {
	case req.JobID == "":
		return fmt.Errorf("%w: job id is required", ErrInvalidRequest)
	case req.ModelName == "":
		return fmt.Errorf("%w: model name is required", ErrInvalidRequest)
	case req.TemplateID == "":
		return fmt.Errorf("%w: template id is required", ErrInvalidRequest)
	}
	return nil
}
