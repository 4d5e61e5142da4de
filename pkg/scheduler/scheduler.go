package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Job is a periodic unit of background work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job on its own ticker until the context ends.
type Scheduler struct {
	mu   sync.Mutex
	jobs []Job
	wg   sync.WaitGroup
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) Add(job Job) error {
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %q needs a positive interval", job.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Start blocks until ctx is cancelled and every job loop has returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	for _, job := range jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}

	<-ctx.Done()
	s.wg.Wait()
	logrus.Info("Scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	logrus.WithFields(logrus.Fields{
		"job":      job.Name,
		"interval": job.Interval.String(),
	}).Info("Scheduled job started")

	for {
		select {
		case <-ticker.C:
			if err := job.Run(ctx); err != nil && ctx.Err() == nil {
				logrus.WithField("job", job.Name).Errorf("Scheduled job failed: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
