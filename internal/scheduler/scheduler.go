package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultJobTimeout = 10 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	mu       sync.Mutex
	jobs     map[string]cron.EntryID
	timezone *time.Location
	logger   zerolog.Logger

	// JobTimeout bounds each run of a job.
	JobTimeout time.Duration
}

// New creates a new scheduler with the given timezone.
// Runs of the same job never overlap; a tick that arrives while the previous
// run is still going is skipped.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	logger := log.With().Str("component", "scheduler").Logger()
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
	)

	return &Scheduler{
		cron:       c,
		jobs:       make(map[string]cron.EntryID),
		timezone:   loc,
		logger:     logger,
		JobTimeout: defaultJobTimeout,
	}, nil
}

// AddJob adds a job with a cron schedule
// schedule format: "0 */6 * * *" (every six hours) or "@every 30m"
func (s *Scheduler) AddJob(name, schedule string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(name, job); err != nil {
			s.logger.Error().Err(err).Str("job", name).Msg("job failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("added job")

	return nil
}

func (s *Scheduler) run(name string, job Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.JobTimeout)
	defer cancel()

	s.logger.Info().Str("job", name).Msg("starting job")
	start := time.Now()

	if err := job(ctx); err != nil {
		return err
	}
	s.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("job completed")
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.ListJobs())).Msg("starting scheduler")
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info().Msg("stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job with the scheduler's timeout.
func (s *Scheduler) RunNow(name string, job Job) error {
	s.logger.Info().Str("job", name).Msg("running job now")
	return s.run(name, job)
}

// ListJobs returns info about scheduled jobs
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	infos := make([]JobInfo, 0, len(s.jobs))

	for name, entryID := range s.jobs {
		for _, entry := range entries {
			if entry.ID == entryID {
				infos = append(infos, JobInfo{
					Name:    name,
					NextRun: entry.Next,
					LastRun: entry.Prev,
				})
				break
			}
		}
	}

	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	LastRun time.Time `json:"last_run"`
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
