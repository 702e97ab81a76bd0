// File: internal/jobs/registry.go

// Package jobs tracks asynchronous scrape jobs triggered over the HTTP API.
// Finished jobs stay queryable until they have been idle for the configured
// timeout, after which a background sweep evicts them.
package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/clipsight/internal/scrape"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// terminal reports whether a status can no longer change.
func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job is one scrape request and its accumulated results.
type Job struct {
	ID        string           `json:"id"`
	Keywords  []string         `json:"keywords"`
	MaxVideos int              `json:"max_videos"`
	Analyze   bool             `json:"analyze"`
	Status    Status           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Results   []scrape.Summary `json:"results"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

const defaultSweepInterval = time.Minute

// Registry is an in-memory job table with idle-based eviction.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	ttl    time.Duration
	logger *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewRegistry starts a registry whose sweep goroutine evicts jobs untouched
// for longer than ttl. Close must be called to stop the sweeper.
func NewRegistry(ttl time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = time.Hour
	}
	r := &Registry{
		jobs:   make(map[string]*Job),
		ttl:    ttl,
		logger: logger.Named("jobs"),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go r.sweep()
	return r
}

// Create registers a new pending job and returns it.
func (r *Registry) Create(keywords []string, maxVideos int, analyze bool) *Job {
	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Keywords:  keywords,
		MaxVideos: maxVideos,
		Analyze:   analyze,
		Status:    StatusPending,
		Results:   []scrape.Summary{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()

	r.logger.Info("Job created", zap.String("job_id", job.ID), zap.Strings("keywords", keywords))
	return job
}

// Get returns a snapshot of the job, refreshing its idle timer.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	job.UpdatedAt = time.Now().UTC()
	return snapshot(job), true
}

// SetStatus transitions a job's lifecycle state. Transitions out of a
// terminal state are rejected.
func (r *Registry) SetStatus(id string, status Status) error {
	return r.update(id, func(job *Job) error {
		if job.Status.terminal() {
			return fmt.Errorf("job %s is already %s", id, job.Status)
		}
		job.Status = status
		return nil
	})
}

// Fail marks a job failed with the given reason.
func (r *Registry) Fail(id string, reason string) error {
	return r.update(id, func(job *Job) error {
		job.Status = StatusFailed
		job.Error = reason
		return nil
	})
}

// AddResult appends one keyword summary to a running job.
func (r *Registry) AddResult(id string, summary scrape.Summary) error {
	return r.update(id, func(job *Job) error {
		job.Results = append(job.Results, summary)
		return nil
	})
}

// SetResult replaces the summary for the given keyword, or appends it if not
// present. Used to report partial progress while a keyword is mid-run.
func (r *Registry) SetResult(id string, summary scrape.Summary) error {
	return r.update(id, func(job *Job) error {
		for i := range job.Results {
			if job.Results[i].Keyword == summary.Keyword {
				job.Results[i] = summary
				return nil
			}
		}
		job.Results = append(job.Results, summary)
		return nil
	})
}

// List returns snapshots of all live jobs, most recent first not guaranteed.
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, snapshot(job))
	}
	return out
}

// Close stops the sweep goroutine. Idempotent.
func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	<-r.done
}

func (r *Registry) update(id string, fn func(*Job) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	if err := fn(job); err != nil {
		return err
	}
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *Registry) sweep() {
	defer close(r.done)

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case now := <-ticker.C:
			r.evictIdle(now)
		}
	}
}

func (r *Registry) evictIdle(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, job := range r.jobs {
		// Running jobs are never evicted even when their timer lapses;
		// the runner always touches them again on completion.
		if !job.Status.terminal() {
			continue
		}
		if now.Sub(job.UpdatedAt) > r.ttl {
			delete(r.jobs, id)
			r.logger.Debug("Evicted idle job", zap.String("job_id", id))
		}
	}
}

// snapshot deep-copies the slices so callers cannot race the registry.
func snapshot(job *Job) Job {
	cp := *job
	cp.Keywords = append([]string(nil), job.Keywords...)
	cp.Results = append([]scrape.Summary(nil), job.Results...)
	return cp
}
