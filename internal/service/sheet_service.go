package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"studiodesk/internal/cache"
	"studiodesk/internal/middleware"
	"studiodesk/internal/models"
	"studiodesk/internal/notifications"
	"studiodesk/internal/observability"
	"studiodesk/internal/repository"
	"studiodesk/internal/sheets"

	"github.com/google/uuid"
)

// generationLockTTL bounds how long a crashed job can block its model.
const generationLockTTL = 5 * time.Minute

// EmitFunc writes one event to the progress stream. An error means the
// client is gone.
type EmitFunc func(event string, progress models.GenerationProgress) error

type SheetService struct {
	creators   repository.CreatorRepository
	billing    repository.BillingRepository
	users      repository.UserRepository
	provider   sheets.Provider
	templateID string
	costCents  int64
	events     EventPublisher
}

// SheetDeps wires a SheetService.
type SheetDeps struct {
	Creators   repository.CreatorRepository
	Billing    repository.BillingRepository
	Users      repository.UserRepository
	Provider   sheets.Provider
	TemplateID string
	CostCents  int64
	Events     EventPublisher
}

type GenerateInput struct {
	UserID    uint
	ModelName string
	Title     string
}

// GenerationJob is a prepared, locked generation ready to run.
type GenerationJob struct {
	ID     string
	UserID uint
	Title  string
	Model  *models.CreatorModel

	lockKey string
}

func NewSheetService(deps SheetDeps) *SheetService {
	events := deps.Events
	if events == nil {
		events = noopPublisher{}
	}
	return &SheetService{
		creators:   deps.Creators,
		billing:    deps.Billing,
		users:      deps.Users,
		provider:   deps.Provider,
		templateID: deps.TemplateID,
		costCents:  deps.CostCents,
		events:     events,
	}
}

// ListLinks returns a model's sheet links, newest first.
func (s *SheetService) ListLinks(ctx context.Context, modelName string) ([]models.SheetLink, error) {
	model, err := s.creators.GetModelByName(ctx, modelName)
	if err != nil {
		return nil, err
	}

	links, err := cache.Aside(ctx, cache.SheetLinksKey(model.Name), cache.SheetLinksTTL, func(ctx context.Context) ([]models.SheetLink, error) {
		return s.creators.ListSheetLinks(ctx, model.ID)
	})
	if err != nil {
		return nil, err
	}
	if links == nil {
		links = []models.SheetLink{}
	}
	return links, nil
}

// Prepare checks permissions and balance and takes the per-model lock. The
// caller must hand the job to Run, which releases the lock.
func (s *SheetService) Prepare(ctx context.Context, in GenerateInput) (*GenerationJob, error) {
	model, err := s.creators.GetModelByName(ctx, in.ModelName)
	if err != nil {
		return nil, err
	}
	if !model.Active {
		return nil, models.NewValidationError("Model is inactive")
	}

	if model.OwnerID != in.UserID {
		user, err := s.users.GetByID(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if !user.IsAdmin {
			return nil, models.NewForbiddenError("Only the model owner or an admin can generate sheets")
		}
	}

	if s.costCents > 0 {
		acct, err := s.billing.GetAccount(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		var balance int64
		if acct != nil {
			balance = acct.BalanceCents
		}
		if balance < s.costCents {
			return nil, models.NewInsufficientBalanceError(balance, s.costCents)
		}
	}

	lockKey := cache.GenerationLockKey(model.Name)
	acquired, err := cache.AcquireLock(ctx, lockKey, generationLockTTL)
	if errors.Is(err, cache.ErrNoLocks) {
		return nil, models.NewUnavailableError("Sheet generation needs Redis for its per-model lock", err)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	if !acquired {
		return nil, models.NewConflictError("A sheet is already being generated for this model")
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = fmt.Sprintf("%s - %s", model.DisplayName, time.Now().Format("2006-01-02"))
	}

	return &GenerationJob{
		ID:      uuid.NewString(),
		UserID:  in.UserID,
		Title:   title,
		Model:   model,
		lockKey: lockKey,
	}, nil
}

// Abandon releases a prepared job that will not run.
func (s *SheetService) Abandon(ctx context.Context, job *GenerationJob) {
	if job != nil {
		cache.ReleaseLock(ctx, job.lockKey)
	}
}

// generationRun holds what each step produces for the next.
type generationRun struct {
	req    sheets.Request
	folder *sheets.Folder
	sheet  *sheets.Sheet
	link   *models.SheetLink
}

// Run executes the steps in order. After each step it emits the cumulative
// progress; the last step emits the complete event carrying the link. On
// failure it emits an error event and stops. Nothing is retried.
func (s *SheetService) Run(ctx context.Context, job *GenerationJob, emit EmitFunc) (*models.SheetLink, error) {
	defer cache.ReleaseLock(context.WithoutCancel(ctx), job.lockKey)

	run := &generationRun{req: sheets.Request{
		JobID:       job.ID,
		ModelName:   job.Model.Name,
		DisplayName: job.Model.DisplayName,
		Title:       job.Title,
		TemplateID:  s.templateID,
	}}

	for i, step := range models.SheetSteps {
		if err := s.runStep(ctx, job, step, run); err != nil {
			observability.SheetGenerations.WithLabelValues("failed").Inc()
			middleware.Logger.WarnContext(ctx, "sheet generation failed",
				slog.String("job_id", job.ID),
				slog.String("model", job.Model.Name),
				slog.String("step", string(step)),
				slog.String("error", err.Error()),
			)
			failure := models.GenerationProgress{
				JobID:     job.ID,
				Step:      step,
				StepIndex: i,
				Percent:   i * 100 / len(models.SheetSteps),
				Completed: append([]models.SheetStep{}, models.SheetSteps[:i]...),
				Error:     failureMessage(err),
			}
			_ = emit(models.EventError, failure)
			return nil, err
		}

		progress := models.ProgressAfter(job.ID, i)
		event := models.EventProgress
		if step == models.StepComplete {
			event = models.EventComplete
			progress.Link = run.link
			progress.Message = "Sheet ready"
		}
		if err := emit(event, progress); err != nil {
			observability.SheetGenerations.WithLabelValues("disconnected").Inc()
			return run.link, fmt.Errorf("emit %s: %w", step, err)
		}
	}

	observability.SheetGenerations.WithLabelValues("completed").Inc()
	return run.link, nil
}

func (s *SheetService) runStep(ctx context.Context, job *GenerationJob, step models.SheetStep, run *generationRun) (err error) {
	defer observability.TrackStep(string(step))()
	ctx, span := observability.StartSheetStepSpan(ctx, job.ID, string(step))
	defer func() { observability.EndSpan(span, err) }()

	switch step {
	case models.StepValidate:
		return s.provider.Validate(ctx, run.req)
	case models.StepFolder:
		run.folder, err = s.provider.CreateFolder(ctx, run.req)
		return err
	case models.StepCopy:
		run.sheet, err = s.provider.CopyTemplate(ctx, run.req, run.folder)
		return err
	case models.StepSave:
		return s.save(ctx, job, run)
	case models.StepComplete:
		cache.Invalidate(ctx, cache.SheetLinksKey(job.Model.Name))
		s.events.PublishUser(ctx, job.UserID, notifications.EventSheetsReady, run.link)
		return nil
	}
	return fmt.Errorf("unknown step %q", step)
}

// save registers the link upstream, charges the user and records the link.
// A failed insert refunds the charge.
func (s *SheetService) save(ctx context.Context, job *GenerationJob, run *generationRun) error {
	if err := s.provider.SaveLink(ctx, run.req, run.sheet); err != nil {
		return err
	}

	if s.costCents > 0 {
		if err := s.billing.Debit(ctx, job.UserID, s.costCents); err != nil {
			if errors.Is(err, repository.ErrInsufficientBalance) {
				return models.NewInsufficientBalanceError(0, s.costCents)
			}
			return err
		}
	}

	link := &models.SheetLink{
		CreatorModelID: job.Model.ID,
		Title:          job.Title,
		SpreadsheetID:  run.sheet.SpreadsheetID,
		SheetURL:       run.sheet.URL,
		JobID:          job.ID,
		CreatedByID:    job.UserID,
	}
	if run.folder != nil {
		link.FolderURL = run.folder.URL
	}
	if err := s.creators.CreateSheetLink(ctx, link); err != nil {
		if s.costCents > 0 {
			if _, refundErr := s.billing.Credit(context.WithoutCancel(ctx), job.UserID, s.costCents); refundErr != nil {
				middleware.Logger.ErrorContext(ctx, "sheet generation refund failed",
					slog.String("job_id", job.ID),
					slog.String("error", refundErr.Error()),
				)
			}
		}
		return err
	}
	run.link = link
	return nil
}

func failureMessage(err error) string {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	var perr *sheets.ProviderError
	if errors.As(err, &perr) {
		return perr.Message
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "generation cancelled"
	}
	return "sheet generation failed"
}
