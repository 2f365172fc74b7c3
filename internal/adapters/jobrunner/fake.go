package jobrunner

import (
	"context"
	"sync"

	"github.com/checkwatch/checkwatch/internal/domain/check"
	"github.com/checkwatch/checkwatch/internal/ports"
)

// Fake is an in-memory ports.JobRunner used by scheduler tests and by
// anything exercising the Check Scheduler without a live orchestrator.
// Tests drive it by setting StatusSequence/LogsText/StartErr/etc. before or
// between calls; it does not simulate timing on its own.
type Fake struct {
	mu sync.Mutex

	// StartErr, when set, is returned by every Start call.
	StartErr error
	// StatusSequence is popped from the front on each Poll call; the last
	// entry repeats once the sequence is exhausted.
	StatusSequence []ports.JobStatus
	// PollErr, when set, is returned by every Poll call instead of a status.
	PollErr error
	// LogsText is returned by every Logs call.
	LogsText string
	// LogsErr, when set, is returned by every Logs call instead of LogsText.
	LogsErr error
	// DestroyErr, when set, is returned by every Destroy call.
	DestroyErr error

	StartCalls   int
	PollCalls    int
	LogsCalls    int
	DestroyCalls int
	Destroyed    bool
	LastConfig   check.Config
}

var _ ports.JobRunner = (*Fake)(nil)

// Start records the call and returns StartErr.
func (f *Fake) Start(_ context.Context, cfg check.Config) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartCalls++
	f.LastConfig = cfg
	return f.StartErr
}

// Poll returns the next status in StatusSequence, or PollErr if set.
func (f *Fake) Poll(_ context.Context) (ports.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PollCalls++

	if f.PollErr != nil {
		return ports.JobStatus{}, f.PollErr
	}
	if len(f.StatusSequence) == 0 {
		return ports.JobStatus{}, nil
	}
	next := f.StatusSequence[0]
	if len(f.StatusSequence) > 1 {
		f.StatusSequence = f.StatusSequence[1:]
	}
	return next, nil
}

// Logs returns LogsText, or LogsErr if set.
func (f *Fake) Logs(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LogsCalls++
	if f.LogsErr != nil {
		return "", f.LogsErr
	}
	return f.LogsText, nil
}

// Destroy records the call and returns DestroyErr.
func (f *Fake) Destroy(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DestroyCalls++
	f.Destroyed = true
	return f.DestroyErr
}
