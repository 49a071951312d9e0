// Package sheetwizard drives the select → configure → generate flow for
// creator model spreadsheets and follows the server's progress stream.
package sheetwizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"studiodesk/internal/apiclient"
	"studiodesk/internal/models"
)

// Stage of the wizard.
type Stage int

const (
	StageSelect Stage = iota
	StageConfigure
	StageGenerating
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageSelect:
		return "select"
	case StageConfigure:
		return "configure"
	case StageGenerating:
		return "generating"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

var (
	ErrWrongStage          = errors.New("action not allowed in the current wizard stage")
	ErrCancelled           = errors.New("generation cancelled")
	ErrStreamClosed        = errors.New("generation stream closed before completion")
	ErrInsufficientBalance = errors.New("insufficient balance for generation")
)

// GenerationError is returned when the server reports a failed step.
type GenerationError struct {
	Step    models.SheetStep
	Message string
}

func (e *GenerationError) Error() string {
	if e.Step == "" {
		return "generation failed: " + e.Message
	}
	return fmt.Sprintf("generation failed at %s: %s", e.Step, e.Message)
}

// Stream yields generation events until it ends.
type Stream interface {
	Next() (string, models.GenerationProgress, error)
	Close() error
}

// Opener starts a generation for model and returns its event stream.
type Opener func(ctx context.Context, model, title string) (Stream, error)

// ClientOpener opens streams through the HTTP client.
func ClientOpener(c *apiclient.Client) Opener {
	return func(ctx context.Context, model, title string) (Stream, error) {
		stream, err := c.OpenGeneration(ctx, model, title)
		if err != nil {
			return nil, err
		}
		return stream, nil
	}
}

// BalanceChecker reports whether the user can pay for one generation.
type BalanceChecker func(ctx context.Context) (*models.BalanceCheck, error)

// Notification levels.
const (
	LevelInfo  = "info"
	LevelError = "error"
)

// Notification is surfaced to the user when a generation ends.
type Notification struct {
	Level   string
	Message string
}

// Snapshot is a copy of the wizard state.
type Snapshot struct {
	Stage     Stage
	Model     string
	Title     string
	JobID     string
	Completed []models.SheetStep
	StepIndex int
	Percent   int
	Link      *models.SheetLink
	Err       string
}

// Wizard is safe for concurrent use; Cancel may be called while Generate
// blocks in another goroutine.
type Wizard struct {
	open    Opener
	balance BalanceChecker
	notify  func(Notification)
	logger  *slog.Logger

	mu        sync.Mutex
	stage     Stage
	model     string
	title     string
	jobID     string
	completed []models.SheetStep
	stepIndex int
	percent   int
	link      *models.SheetLink
	errMsg    string
	cancel    context.CancelFunc
	// run changes whenever a generation is abandoned, so a late event or
	// failure from the old stream is dropped.
	run uint64
}

type Option func(*Wizard)

func WithNotifier(fn func(Notification)) Option {
	return func(w *Wizard) { w.notify = fn }
}

// WithBalanceCheck makes Generate refuse to start without enough balance.
func WithBalanceCheck(fn BalanceChecker) Option {
	return func(w *Wizard) { w.balance = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wizard) { w.logger = logger }
}

func New(open Opener, opts ...Option) *Wizard {
	w := &Wizard{open: open, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Snapshot returns a copy of the current state.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Stage:     w.stage,
		Model:     w.model,
		Title:     w.title,
		JobID:     w.jobID,
		Completed: slices.Clone(w.completed),
		StepIndex: w.stepIndex,
		Percent:   w.percent,
		Link:      w.link,
		Err:       w.errMsg,
	}
}

// SelectModel picks the creator model. It is allowed again from the
// configure stage to change the choice.
func (w *Wizard) SelectModel(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return models.NewValidationError("model name is required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StageSelect && w.stage != StageConfigure {
		return ErrWrongStage
	}
	w.model = name
	w.stage = StageConfigure
	return nil
}

// Configure sets the sheet title. An empty title lets the server choose.
func (w *Wizard) Configure(title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StageConfigure {
		return ErrWrongStage
	}
	w.title = strings.TrimSpace(title)
	return nil
}

// Generate opens the progress stream and follows it to the end. It returns
// nil once the server reports completion. An error event or a dropped
// connection fails the wizard; nothing is retried and only Reset starts
// over.
func (w *Wizard) Generate(ctx context.Context) error {
	w.mu.Lock()
	if w.stage != StageConfigure {
		w.mu.Unlock()
		return ErrWrongStage
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.stage = StageGenerating
	w.cancel = cancel
	w.clearProgress()
	w.run++
	run, model, title := w.run, w.model, w.title
	w.mu.Unlock()

	if w.balance != nil {
		check, err := w.balance(ctx)
		if err != nil {
			return w.fail(run, fmt.Errorf("check balance: %w", err))
		}
		if !check.Sufficient {
			return w.fail(run, fmt.Errorf("%w: %d of %d cents", ErrInsufficientBalance,
				check.BalanceCents, check.RequiredCents))
		}
	}

	stream, err := w.open(ctx, model, title)
	if err != nil {
		return w.fail(run, err)
	}
	defer func() { _ = stream.Close() }()

	for {
		name, progress, err := stream.Next()
		if err != nil {
			return w.fail(run, fmt.Errorf("%w: %v", ErrStreamClosed, err))
		}
		if done, err := w.apply(run, name, progress); done {
			return err
		}
	}
}

// apply folds one event into the state and reports whether the stream is
// finished.
func (w *Wizard) apply(run uint64, name string, p models.GenerationProgress) (bool, error) {
	w.mu.Lock()
	if run != w.run {
		w.mu.Unlock()
		return true, ErrCancelled
	}

	switch name {
	case models.EventProgress, models.EventComplete:
		if applied := w.stepIndex; p.StepIndex < applied {
			w.mu.Unlock()
			w.logger.Debug("dropping out-of-order progress event",
				slog.Int("step_index", p.StepIndex),
				slog.Int("applied", applied),
			)
			return false, nil
		}
		w.completed = slices.Clone(p.Completed)
		w.stepIndex = p.StepIndex
		w.percent = p.Percent
		if p.JobID != "" {
			w.jobID = p.JobID
		}
		if name == models.EventProgress {
			w.mu.Unlock()
			return false, nil
		}

		w.stage = StageDone
		w.link = p.Link
		w.cancel = nil
		title := w.title
		w.mu.Unlock()
		if p.Link != nil {
			title = p.Link.Title
		}
		w.emit(Notification{Level: LevelInfo, Message: fmt.Sprintf("Spreadsheet %q is ready", title)})
		return true, nil

	case models.EventError:
		w.mu.Unlock()
		msg := p.Error
		if msg == "" {
			msg = p.Message
		}
		return true, w.fail(run, &GenerationError{Step: p.Step, Message: msg})
	}

	w.mu.Unlock()
	return false, nil
}

// fail moves the wizard to StageFailed and notifies, unless the run was
// abandoned in the meantime.
func (w *Wizard) fail(run uint64, err error) error {
	w.mu.Lock()
	if run != w.run {
		w.mu.Unlock()
		return ErrCancelled
	}
	w.stage = StageFailed
	w.errMsg = err.Error()
	w.cancel = nil
	w.mu.Unlock()

	w.logger.Warn("sheet generation failed", slog.String("error", err.Error()))
	w.emit(Notification{Level: LevelError, Message: err.Error()})
	return err
}

func (w *Wizard) emit(n Notification) {
	if w.notify != nil {
		w.notify(n)
	}
}

func (w *Wizard) clearProgress() {
	w.jobID = ""
	w.completed = nil
	w.stepIndex = 0
	w.percent = 0
	w.link = nil
	w.errMsg = ""
}

// Cancel closes a running stream and dismisses the wizard. It is a no-op
// outside generation.
func (w *Wizard) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StageGenerating {
		return
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.run++
	w.resetLocked()
}

// Reset starts over after a finished or failed generation. During
// generation use Cancel.
func (w *Wizard) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage == StageGenerating {
		return ErrWrongStage
	}
	w.resetLocked()
	return nil
}

func (w *Wizard) resetLocked() {
	w.stage = StageSelect
	w.model = ""
	w.title = ""
	w.clearProgress()
}
