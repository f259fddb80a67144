package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/Cloudsky01/gh-ipabuild/internal/clock"
	"github.com/Cloudsky01/gh-ipabuild/pkg/models"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultBuildTimeout = 30 * time.Minute

	// DefaultMaxConsecutiveErrors is how many failed observations in a row abort the wait
	DefaultMaxConsecutiveErrors = 3
)

// State is the poller's view of the dispatched run
type State int

const (
	StateAwaitingDefinition State = iota
	StateAwaitingRun
	StateRunActive
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingDefinition:
		return "awaiting definition"
	case StateAwaitingRun:
		return "awaiting run"
	case StateRunActive:
		return "run active"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IsTerminal reports whether no further transition is possible
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition table: from -> allowed tos
var validTransitions = map[State][]State{
	StateAwaitingDefinition: {StateAwaitingRun},
	StateAwaitingRun:        {StateRunActive},
	StateRunActive:          {StateSucceeded, StateFailed},
	StateSucceeded:          {},
	StateFailed:             {},
}

func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusAPI is the read-only view of workflows and runs the poller needs
type StatusAPI interface {
	GetWorkflows(ctx context.Context, repo models.Repository) ([]models.GHWorkflow, error)
	ListRuns(ctx context.Context, repo models.Repository, workflowFile, branch string) ([]models.GHRun, error)
	GetRun(ctx context.Context, repo models.Repository, runID int64) (*models.GHRun, error)
}

type PollerOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// NotBefore hides runs created earlier, so a previous invocation's run is never tracked
	NotBefore            time.Time
	MaxConsecutiveErrors int
	Clock                clock.Clock
	Logger               *slog.Logger
	// OnTransition is called after every state change
	OnTransition func(from, to State, run *models.GHRun)
}

// Outcome is the poller's final observation
type Outcome struct {
	State   State
	Run     *models.GHRun
	Polls   int
	Elapsed time.Duration
}

type Poller struct {
	api  StatusAPI
	opts PollerOptions
}

func NewPoller(api StatusAPI, opts PollerOptions) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBuildTimeout
	}
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Poller{api: api, opts: opts}
}

type pollState struct {
	state State
	run   *models.GHRun
}

// Wait observes the target until its run completes or the timeout elapses.
// It returns a *RunFailedError for a non-success conclusion and a *TimeoutError
// when the budget runs out; the outcome is returned in every case.
func (p *Poller) Wait(ctx context.Context, target models.RunTarget) (*Outcome, error) {
	start := p.opts.Clock.Now()
	st := &pollState{state: StateAwaitingDefinition}
	out := &Outcome{}
	failures := 0

	finish := func() *Outcome {
		out.State = st.state
		out.Run = st.run
		out.Elapsed = p.opts.Clock.Now().Sub(start)
		return out
	}

	for {
		if p.opts.Clock.Now().Sub(start) >= p.opts.Timeout {
			finish()
			te := &TimeoutError{Timeout: p.opts.Timeout, State: st.state}
			if st.run != nil {
				te.RunID = st.run.DatabaseID
			}
			p.opts.Logger.Warn("timed out waiting for workflow", "state", st.state.String(), "polls", out.Polls)
			return out, te
		}

		out.Polls++
		if err := p.observe(ctx, target, st); err != nil {
			if ctx.Err() != nil {
				return finish(), ctx.Err()
			}
			failures++
			p.opts.Logger.Warn("poll failed", "state", st.state.String(), "attempt", failures, "error", err)
			if failures >= p.opts.MaxConsecutiveErrors {
				return finish(), fmt.Errorf("polling aborted after %d consecutive errors: %w", failures, err)
			}
		} else {
			failures = 0
		}

		switch st.state {
		case StateSucceeded:
			p.opts.Logger.Info("workflow completed successfully", "run", st.run.DatabaseID)
			return finish(), nil
		case StateFailed:
			return finish(), &RunFailedError{
				RunID:      st.run.DatabaseID,
				Conclusion: st.run.Conclusion,
				URL:        st.run.URL,
			}
		}

		p.opts.Logger.Debug("waiting before next poll", "state", st.state.String(), "interval", p.opts.Interval)
		if err := p.opts.Clock.Sleep(ctx, p.opts.Interval); err != nil {
			return finish(), err
		}
	}
}

// observe advances st as far as the current remote state allows within one tick
func (p *Poller) observe(ctx context.Context, target models.RunTarget, st *pollState) error {
	if st.state == StateAwaitingDefinition {
		workflows, err := p.api.GetWorkflows(ctx, target.Repository)
		if isAbsent(err) {
			p.opts.Logger.Info("workflow not registered yet", "workflow", target.Workflow)
			return nil
		}
		if err != nil {
			return err
		}
		if !hasWorkflow(workflows, target.Workflow) {
			p.opts.Logger.Info("workflow not registered yet", "workflow", target.Workflow)
			return nil
		}
		p.advance(st, StateAwaitingRun)
	}

	if st.state == StateAwaitingRun {
		runs, err := p.api.ListRuns(ctx, target.Repository, target.Workflow, target.Branch)
		if isAbsent(err) {
			p.opts.Logger.Info("no run started yet", "branch", target.Branch)
			return nil
		}
		if err != nil {
			return err
		}
		run := latestRun(runs, p.opts.NotBefore)
		if run == nil {
			p.opts.Logger.Info("no run started yet", "branch", target.Branch)
			return nil
		}
		st.run = run
		p.advance(st, StateRunActive)
		p.evaluate(st)
		return nil
	}

	if st.state == StateRunActive {
		run, err := p.api.GetRun(ctx, target.Repository, st.run.DatabaseID)
		if err != nil {
			return err
		}
		st.run = run
		p.evaluate(st)
	}
	return nil
}

func (p *Poller) evaluate(st *pollState) {
	if !st.run.IsCompleted() {
		p.opts.Logger.Info("workflow is still running", "run", st.run.DatabaseID, "status", st.run.Status)
		return
	}
	if st.run.Succeeded() {
		p.advance(st, StateSucceeded)
		return
	}
	p.advance(st, StateFailed)
}

func (p *Poller) advance(st *pollState, to State) {
	from := st.state
	if !canTransition(from, to) {
		panic(fmt.Sprintf("invalid transition from %s to %s", from, to))
	}
	st.state = to
	p.opts.Logger.Debug("poller transition", "from", from.String(), "to", to.String())
	if p.opts.OnTransition != nil {
		p.opts.OnTransition(from, to, st.run)
	}
}

// isAbsent reports whether err means "not visible yet" rather than a failure
func isAbsent(err error) bool {
	var nf interface{ NotFound() bool }
	return errors.As(err, &nf) && nf.NotFound()
}

func hasWorkflow(workflows []models.GHWorkflow, file string) bool {
	for _, wf := range workflows {
		if wf.Path == file || path.Base(wf.Path) == file {
			return true
		}
	}
	return false
}

// latestRun picks the most recently created run at or after notBefore
func latestRun(runs []models.GHRun, notBefore time.Time) *models.GHRun {
	candidates := make([]models.GHRun, 0, len(runs))
	for _, r := range runs {
		if !notBefore.IsZero() && r.CreatedAt.Before(notBefore) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].CreatedAt.Equal(candidates[j].CreatedAt) {
			return candidates[i].DatabaseID > candidates[j].DatabaseID
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	run := candidates[0]
	return &run
}
