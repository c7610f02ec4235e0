package background

import (
	"context"
	"log"
	"sync"
	"time"

	"connectsprobot/internal/services"

	"github.com/go-co-op/gocron/v2"
)

// JobScheduler manages the recurring maintenance jobs: the trial sweep and
// the message retention cleanup.
type JobScheduler struct {
	scheduler  gocron.Scheduler
	trialSvc   *services.TrialService
	cleanupSvc *services.CleanupService
	jobs       map[string]gocron.Job
	mu         sync.RWMutex
}

// NewJobScheduler creates the scheduler and registers all jobs.
func NewJobScheduler(trialSvc *services.TrialService, cleanupSvc *services.CleanupService) *JobScheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	js := &JobScheduler{
		scheduler:  scheduler,
		trialSvc:   trialSvc,
		cleanupSvc: cleanupSvc,
		jobs:       make(map[string]gocron.Job),
	}

	js.registerJobs()

	return js
}

// Start starts the job scheduler
func (js *JobScheduler) Start() error {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
	return nil
}

// Stop stops the job scheduler
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

// registerJobs registers all background jobs
func (js *JobScheduler) registerJobs() {
	// Trial sweep - every hour. Singleton mode: a slow sweep must never
	// overlap the next one, or tenants could be stopped twice.
	trialJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(js.runTrialSweep, context.Background()),
		gocron.WithName("trial-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create trial sweep job: %v", err)
	} else {
		js.jobs["trial-sweep"] = trialJob
	}

	// Retention cleanup - daily at 03:00
	cleanupJob, err := js.scheduler.NewJob(
		gocron.CronJob("0 3 * * *", false),
		gocron.NewTask(js.runRetentionCleanup, context.Background()),
		gocron.WithName("retention-cleanup"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create retention cleanup job: %v", err)
	} else {
		js.jobs["retention-cleanup"] = cleanupJob
	}

	log.Printf("Registered %d background jobs", len(js.jobs))
}

// runTrialSweep expires overdue trials and stops their instances
func (js *JobScheduler) runTrialSweep(ctx context.Context) error {
	log.Printf("Starting trial sweep")

	summary, err := js.trialSvc.RunSweep(ctx)
	if err != nil {
		log.Printf("Trial sweep failed: %v", err)
		return err
	}

	log.Printf("Trial sweep completed: %d checked, %d expired, %d active",
		summary.Checked, summary.Expired, summary.Active)
	return nil
}

// runRetentionCleanup purges messages past the retention horizon
func (js *JobScheduler) runRetentionCleanup(ctx context.Context) error {
	log.Printf("Starting retention cleanup")

	purged, err := js.cleanupSvc.RunDailyCleanup(ctx)
	if err != nil {
		log.Printf("Retention cleanup failed: %v", err)
		return err
	}

	log.Printf("Retention cleanup completed: %d messages purged", purged)
	return nil
}

// RunJobNow triggers a registered job immediately, outside its schedule.
func (js *JobScheduler) RunJobNow(name string) error {
	js.mu.RLock()
	job, exists := js.jobs[name]
	js.mu.RUnlock()

	if !exists {
		return nil
	}
	return job.RunNow()
}

// GetJobStatus returns information about scheduled jobs
func (js *JobScheduler) GetJobStatus() map[string]interface{} {
	js.mu.RLock()
	defer js.mu.RUnlock()

	status := make(map[string]interface{})
	status["total_jobs"] = len(js.jobs)
	jobs := make([]string, 0, len(js.jobs))

	for name := range js.jobs {
		jobs = append(jobs, name)
	}

	status["jobs"] = jobs

	return status
}
