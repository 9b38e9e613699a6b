package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "inkday/internal/log"
)

// cronLogger adapts the app logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

// Scheduler runs the refresh stage and the render stage on their own cron
// schedules. A stage whose previous run is still going is skipped rather than
// stacked, so a slow upstream never causes overlapping cycles.
type Scheduler struct {
	p      *Pipeline
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	refreshJob cron.Job
	renderJob  cron.Job
	wg         sync.WaitGroup
}

// NewScheduler validates both cron specs and prepares the jobs.
func NewScheduler(p *Pipeline, refreshSpec, renderSpec string) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(cron.WithLocation(p.Location()), cron.WithLogger(logger))

	s := &Scheduler{p: p, cron: c}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	// Wrap once so the immediate run and scheduled runs share the skip guard.
	chain := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))
	s.refreshJob = chain.Then(cron.FuncJob(s.runRefresh))
	s.renderJob = chain.Then(cron.FuncJob(s.runRender))

	refreshSched, err := cron.ParseStandard(refreshSpec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: refresh spec %q: %w", refreshSpec, err)
	}
	renderSched, err := cron.ParseStandard(renderSpec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: render spec %q: %w", renderSpec, err)
	}
	c.Schedule(refreshSched, s.refreshJob)
	c.Schedule(renderSched, s.renderJob)
	return s, nil
}

func (s *Scheduler) runRefresh() {
	if err := s.p.Refresh(s.ctx); err != nil {
		appLog.Warn("refresh completed with failures", "err", err)
	}
}

func (s *Scheduler) runRender() {
	// Failures are already logged per stage; the previous artifact stays.
	_ = s.p.RenderAndPublish(s.ctx)
}

// Start runs one refresh and one render immediately, then hands over to
// the cron schedules.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshJob.Run()
		s.renderJob.Run()
	}()
	s.cron.Start()
	appLog.Info("scheduler started", "entries", len(s.cron.Entries()))
}

// Stop cancels in-flight work and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
	appLog.Info("scheduler stopped")
}

// ExpectedInterval is the gap between the next two activations of spec,
// used to judge how old an artifact may get before it counts as stale.
func ExpectedInterval(spec string, loc *time.Location) (time.Duration, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, err
	}
	if loc == nil {
		loc = time.Local
	}
	first := sched.Next(time.Now().In(loc))
	return sched.Next(first).Sub(first), nil
}
