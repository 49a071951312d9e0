package models

// SheetStep identifies one stage of spreadsheet generation.
type SheetStep string

const (
	StepValidate SheetStep = "validate"
	StepFolder   SheetStep = "folder"
	StepCopy     SheetStep = "copy"
	StepSave     SheetStep = "save"
	StepComplete SheetStep = "complete"
)

// SheetSteps lists the generation steps in execution order.
var SheetSteps = []SheetStep{StepValidate, StepFolder, StepCopy, StepSave, StepComplete}

// Server-sent event names on the generation stream.
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
)

// GenerationProgress is the payload of every generation stream event.
//
// Completed is the authoritative set of finished steps and StepIndex counts
// them, so it only grows over a job. Consumers replace their state with each
// event instead of deriving it from step transitions.
type GenerationProgress struct {
	JobID     string      `json:"job_id"`
	Step      SheetStep   `json:"step"`
	StepIndex int         `json:"step_index"`
	Percent   int         `json:"percent"`
	Completed []SheetStep `json:"completed"`
	Message   string      `json:"message,omitempty"`
	Link      *SheetLink  `json:"link,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// ProgressAfter builds the event emitted once steps[0..i] have finished.
func ProgressAfter(jobID string, i int) GenerationProgress {
	completed := make([]SheetStep, i+1)
	copy(completed, SheetSteps[:i+1])
	return GenerationProgress{
		JobID:     jobID,
		Step:      SheetSteps[i],
		StepIndex: i + 1,
		Percent:   (i + 1) * 100 / len(SheetSteps),
		Completed: completed,
	}
}

// StepPosition returns the index of step in SheetSteps, or -1.
func StepPosition(step SheetStep) int {
	for i, s := range SheetSteps {
		if s == step {
			return i
		}
	}
	return -1
}
