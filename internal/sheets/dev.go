package sheets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DevProvider fabricates folders and spreadsheets locally so the wizard can
// be exercised without the real service. Each step sleeps StepDelay to make
// progress visible.
type DevProvider struct {
	StepDelay time.Duration
	// FailStep makes the named operation fail; used by tests.
	FailStep string
}

func NewDevProvider(stepDelay time.Duration) *DevProvider {
	return &DevProvider{StepDelay: stepDelay}
}

func (p *DevProvider) Name() string { return "dev" }

func (p *DevProvider) Validate(ctx context.Context, req Request) error {
	if err := p.step(ctx, "validate"); err != nil {
		return err
	}
	return validateRequest(req)
}

func (p *DevProvider) CreateFolder(ctx context.Context, req Request) (*Folder, error) {
	if err := p.step(ctx, "folder"); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Folder{ID: id, URL: "https://drive.local/folders/" + id}, nil
}

func (p *DevProvider) CopyTemplate(ctx context.Context, req Request, _ *Folder) (*Sheet, error) {
	if err := p.step(ctx, "copy"); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Sheet{SpreadsheetID: id, URL: fmt.Sprintf("https://sheets.local/d/%s/edit", id)}, nil
}

func (p *DevProvider) SaveLink(ctx context.Context, _ Request, _ *Sheet) error {
	return p.step(ctx, "save")
}

func (p *DevProvider) step(ctx context.Context, op string) error {
	if p.StepDelay > 0 {
		timer := time.NewTimer(p.StepDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if p.FailStep == op {
		return &ProviderError{Op: op, Status: 500, Message: "simulated failure"}
	}
	return nil
}
