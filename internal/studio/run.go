package studio

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/segmentio/ksuid"

	"studio/internal/infra"
)

// RunState is the lifecycle of one pipeline run.
type RunState string

const (
	RunIdle      RunState = "IDLE"
	RunRunning   RunState = "RUNNING"
	RunSucceeded RunState = "SUCCEEDED"
	RunFailed    RunState = "FAILED"
)

func (s RunState) Terminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// Run is a snapshot of a pipeline run.
type Run struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	State     RunState  `json:"state"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Result    any       `json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	err error
}

// Err returns the failure of a FAILED run.
func (r Run) Err() error { return r.err }

const defaultMaxRuns = 256

// RunRegistry tracks runs in memory. States only move forward:
// IDLE -> RUNNING -> SUCCEEDED | FAILED.
type RunRegistry struct {
	mu      sync.Mutex
	runs    map[string]*Run
	maxRuns int
	now     func() time.Time
	logger  *infra.Logger
}

func NewRunRegistry(maxRuns int, logger *infra.Logger) *RunRegistry {
	if maxRuns <= 0 {
		maxRuns = defaultMaxRuns
	}
	return &RunRegistry{
		runs:    make(map[string]*Run),
		maxRuns: maxRuns,
		now:     time.Now,
		logger:  infra.ComponentLogger(logger, "runs"),
	}
}

// Create registers a new IDLE run.
func (r *RunRegistry) Create(kind string) Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	run := &Run{ID: ksuid.New().String(), Kind: kind, State: RunIdle, CreatedAt: now, UpdatedAt: now}
	r.runs[run.ID] = run
	r.evictLocked()
	return *run
}

// Get returns a snapshot of run id.
func (r *RunRegistry) Get(id string) (Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return *run, nil
}

func (r *RunRegistry) Start(id string) error {
	return r.update(id, func(run *Run) error {
		if run.State != RunIdle {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.State, RunRunning)
		}
		run.State = RunRunning
		return nil
	})
}

// Report updates progress of a RUNNING run. Progress never decreases.
func (r *RunRegistry) Report(id string, percent float64, message string) error {
	return r.update(id, func(run *Run) error {
		if run.State != RunRunning {
			return fmt.Errorf("%w: progress on %s run", ErrInvalidTransition, run.State)
		}
		if percent > run.Progress {
			run.Progress = min(percent, 100)
		}
		run.Message = message
		return nil
	})
}

func (r *RunRegistry) Succeed(id string, result any) error {
	return r.update(id, func(run *Run) error {
		if run.State != RunRunning {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.State, RunSucceeded)
		}
		run.State = RunSucceeded
		run.Progress = 100
		run.Result = result
		return nil
	})
}

func (r *RunRegistry) Fail(id string, cause error) error {
	return r.update(id, func(run *Run) error {
		if run.State.Terminal() {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, run.State, RunFailed)
		}
		run.State = RunFailed
		run.err = cause
		if cause != nil {
			run.Error = cause.Error()
		}
		return nil
	})
}

func (r *RunRegistry) update(id string, fn func(*Run) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if err := fn(run); err != nil {
		return err
	}
	run.UpdatedAt = r.now()
	return nil
}

// Go creates a run and executes fn in the background, driving the run
// through its states. It returns the new run's id.
func (r *RunRegistry) Go(ctx context.Context, kind string, fn func(ctx context.Context, progress func(float64, string)) (any, error)) string {
	run := r.Create(kind)
	_ = r.Start(run.ID)
	go func() {
		progress := func(p float64, msg string) {
			_ = r.Report(run.ID, p, msg)
		}
		result, err := fn(ctx, progress)
		if err != nil {
			r.logger.Error().Err(err).Str("run", run.ID).Str("kind", kind).Msg("run failed")
			_ = r.Fail(run.ID, err)
			return
		}
		_ = r.Succeed(run.ID, result)
		r.logger.Info().Str("run", run.ID).Str("kind", kind).Msg("run succeeded")
	}()
	return run.ID
}

// evictLocked drops the oldest terminal runs beyond maxRuns.
func (r *RunRegistry) evictLocked() {
	if len(r.runs) <= r.maxRuns {
		return
	}
	var done []*Run
	for _, run := range r.runs {
		if run.State.Terminal() {
			done = append(done, run)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].UpdatedAt.Before(done[j].UpdatedAt) })
	for _, run := range done {
		if len(r.runs) <= r.maxRuns {
			return
		}
		delete(r.runs, run.ID)
	}
}
