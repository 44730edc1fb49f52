package pipeline

import (
	"time"
)

// Kind distinguishes the artifact classes flowing between stages.
type Kind string

const (
	// KindImage is the artifact of stages 1 and 2.
	KindImage Kind = "image"
	// KindModel is the 3D asset produced by stage 3.
	KindModel Kind = "model"
)

// StageOutput is the normalized artifact handed from one stage to the
// next. It is valid only when produced by a succeeded job; stages
// receive the previous output by read-only reference and build a new
// one. At least one of URL and Data is always set.
type StageOutput struct {
	Kind        Kind
	Stage       int
	Model       string
	URL         string
	Data        []byte
	ContentType string
	SavedPath   string
}

// Status is a pipeline run's state-machine state.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusStage1Running Status = "stage1_running"
	StatusStage2Running Status = "stage2_running"
	StatusStage3Running Status = "stage3_running"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
)

// Terminal reports whether no further transition occurs from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Run carries one pipeline execution's state. It is mutated only by the
// coordinating goroutine, stage by stage, and is immutable once Status
// turns terminal.
type Run struct {
	ID          string
	Status      Status
	History     []Status
	Stages      [3]*StageOutput
	FailedStage int
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Output returns the StageOutput of the given stage (1-based), or nil if
// that stage never completed. Outputs of completed stages remain
// available after a later stage fails.
func (r *Run) Output(stage int) *StageOutput {
	if stage < 1 || stage > len(r.Stages) {
		return nil
	}
	return r.Stages[stage-1]
}

// StageConfig holds the fixed per-stage parameters: the ordered
// candidate models (best first) and the polling budget.
type StageConfig struct {
	Candidates   []string      `yaml:"candidates"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}
