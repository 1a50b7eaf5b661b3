// Package scheduler runs periodic maintenance jobs (idle model sweep, cache
// expiry and flush, session autosave) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Func is a job body. ctx is canceled when the scheduler stops.
type Func func(ctx context.Context) error

type job struct {
	name string
	spec string
	fn   Func
	id   cron.EntryID
}

// Scheduler wraps a cron runner. Jobs never overlap with themselves.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*job
	parser cron.Parser
	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a stopped scheduler.
func New(log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "scheduler").Logger()
	ctx, cancel := context.WithCancel(context.Background())
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		jobs:   make(map[string]*job),
		parser: parser,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers a job. An empty spec skips the job and is not an error.
func (s *Scheduler) Add(name, spec string, fn Func) error {
	if spec == "" {
		s.log.Debug().Str("job", name).Msg("job disabled")
		return nil
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	j := &job{name: name, spec: spec, fn: fn}
	j.id = s.cron.Schedule(sched, cron.FuncJob(func() { s.run(j) }))
	s.jobs[name] = j
	return nil
}

func (s *Scheduler) run(j *job) {
	start := time.Now()
	if err := j.fn(s.ctx); err != nil {
		s.log.Warn().Err(err).Str("job", j.name).Dur("dur", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Debug().Str("job", j.name).Dur("dur", time.Since(start)).Msg("job done")
}

// RunNow runs a registered job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	return j.fn(s.ctx)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev"`
}

// Jobs lists registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		e := s.cron.Entry(j.id)
		out = append(out, JobInfo{Name: j.name, Spec: j.spec, Next: e.Next, Prev: e.Prev})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.Jobs())).Msg("scheduler started")
}

// Stop cancels running jobs' context and waits for them, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
