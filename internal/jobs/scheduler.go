package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/metrics"
)

// Job is a unit of periodic background work.
type Job interface {
	Name() string
	Run() error
}

type schedule struct {
	job      Job
	interval time.Duration
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool

	schedules []schedule
	tickers   []*time.Ticker
	wg        sync.WaitGroup

	// Guards against overlapping runs of the same job
	processingMutex sync.Mutex
	processing      map[string]bool
}

// NewScheduler wires folio's retention and maintenance jobs.
func NewScheduler(dbManager events.Connector, logger *slog.Logger) (*Scheduler, error) {
	cfg := config.GetConfig()

	s := newScheduler(logger)
	s.Every(24*time.Hour, NewCleanupJob(dbManager, logger, cfg))
	s.Every(time.Duration(cfg.JobIntervalSeconds)*time.Second, NewPresencePruneJob(dbManager, logger, cfg))
	s.Every(GeoReloadInterval, NewGeoReloadJob(cfg.GeoDBPath, logger))

	return s, nil
}

func newScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		processing: make(map[string]bool),
	}
}

// Every registers job to run at interval once the scheduler starts.
func (s *Scheduler) Every(interval time.Duration, job Job) {
	if interval <= 0 {
		s.logger.Warn("Ignoring job with non-positive interval", slog.String("job", job.Name()))
		return
	}
	s.schedules = append(s.schedules, schedule{job: job, interval: interval})
}

// executeJobSafely runs a job only if its previous run has finished
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.processing[jobName] {
		s.logger.Debug("Skipping job execution - previous run still going", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.processing[jobName] = true
	s.processingMutex.Unlock()

	var err error
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
			err = errPanicked
		}
		metrics.RecordJobRun(jobName, err)

		s.processingMutex.Lock()
		s.processing[jobName] = false
		s.processingMutex.Unlock()
	}()

	if err = jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	for _, sc := range s.schedules {
		s.startJob(sc)
	}

	s.logger.Info("Background jobs started", slog.Int("jobs", len(s.schedules)))
	return nil
}

func (s *Scheduler) startJob(sc schedule) {
	name := sc.job.Name()
	s.logger.Info("Starting job", slog.String("job", name), slog.Duration("interval", sc.interval))

	ticker := time.NewTicker(sc.interval)
	s.tickers = append(s.tickers, ticker)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.executeJobSafely(name, sc.job.Run)

		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(name, sc.job.Run)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", name))
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range s.tickers {
		ticker.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// RunNow executes the named job synchronously, e.g. from folioctl.
func (s *Scheduler) RunNow(name string) error {
	for _, sc := range s.schedules {
		if sc.job.Name() == name {
			return sc.job.Run()
		}
	}
	return errUnknownJob(name)
}
