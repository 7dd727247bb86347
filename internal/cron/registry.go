package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type schedule struct {
	job   Job
	every time.Duration
	next  time.Time
}

// Registry holds jobs and when each is next due. A newly registered job is
// due on the first tick.
type Registry struct {
	mu        sync.Mutex
	schedules []*schedule
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register schedules job to run once every interval. Job names must be unique
// because they key the distributed lock.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.job.Name() == job.Name() {
			return fmt.Errorf("job %s already registered", job.Name())
		}
	}
	r.schedules = append(r.schedules, &schedule{job: job, every: every})
	return nil
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]Job, 0, len(r.schedules))
	for _, s := range r.schedules {
		jobs = append(jobs, s.job)
	}
	return jobs
}

// Due returns the jobs whose next run is at or before now, earliest first, and
// moves each one's next run a full interval past now.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	due := make([]*schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		if s.next.After(now) {
			continue
		}
		due = append(due, s)
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })

	jobs := make([]Job, 0, len(due))
	for _, s := range due {
		s.next = now.Add(s.every)
		jobs = append(jobs, s.job)
	}
	return jobs
}
