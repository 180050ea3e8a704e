package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/psp-tools/group-archive/app/cfg"
	"github.com/psp-tools/group-archive/app/database"
	"github.com/psp-tools/group-archive/app/ingest"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type Scheduler struct {
	syncer          *ingest.IncrementalSyncer
	backfillRunner  *ingest.BackfillRunner
	messageRepo     database.MessageRepository
	fetchInterval   time.Duration
	backfillEnabled bool
	workerCount     int
	cron            *cron.Cron
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	taskQueue       chan TaskInterface

	mu       sync.Mutex
	inFlight map[TaskType]bool
}

func NewScheduler(syncer *ingest.IncrementalSyncer, backfillRunner *ingest.BackfillRunner,
	messageRepo database.MessageRepository) TaskSchedulerInterface {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := cfg.Get()

	return &Scheduler{
		syncer:          syncer,
		backfillRunner:  backfillRunner,
		messageRepo:     messageRepo,
		fetchInterval:   time.Duration(cfg.FetchInterval) * time.Second,
		backfillEnabled: cfg.BackfillEnabled,
		workerCount:     cfg.WorkerCount,
		cron:            cron.New(),
		ctx:             ctx,
		cancel:          cancel,
		taskQueue:       make(chan TaskInterface, 100),
		inFlight:        make(map[TaskType]bool),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.enqueueStartupTasks()

	s.cron.AddFunc(fmt.Sprintf("@every %s", s.fetchInterval), func() {
		s.enqueueIfIdle(NewFetchNewTask(s.syncer))
	})

	if s.backfillEnabled {
		// Re-kicks an interrupted walk from its checkpoint; a completed walk
		// is a cheap no-op inside the runner.
		s.cron.AddFunc("@every 15m", func() {
			s.enqueueIfIdle(NewBackfillTask(s.backfillRunner))
		})
	}

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// enqueueIfIdle drops the task when one of the same type is already queued
// or running. At most one sync run per type is active at any time.
func (s *Scheduler) enqueueIfIdle(task TaskInterface) {
	s.mu.Lock()
	if s.inFlight[task.GetType()] {
		s.mu.Unlock()
		slog.Debug("Previous task still active, skipping", "type", string(task.GetType()))
		return
	}
	s.inFlight[task.GetType()] = true
	s.mu.Unlock()

	if err := s.EnqueueTask(task); err != nil {
		s.release(task.GetType())
		slog.Warn("Failed to enqueue task", "type", string(task.GetType()), "error", err)
	}
}

func (s *Scheduler) release(taskType TaskType) {
	s.mu.Lock()
	delete(s.inFlight, taskType)
	s.mu.Unlock()
}

func (s *Scheduler) enqueueStartupTasks() {
	s.enqueueIfIdle(NewReindexSearchTask(s.messageRepo))
	s.enqueueIfIdle(NewFetchNewTask(s.syncer))

	if s.backfillEnabled {
		s.enqueueIfIdle(NewBackfillTask(s.backfillRunner))
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 30*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	s.release(task.GetType())

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

		if task.CanRetry() {
			task.IncrementRetryCount()
			retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
			if retryDelay > 30*time.Second {
				retryDelay = 30 * time.Second
			}

			slog.Warn("Task retry scheduled", "type", string(task.GetType()), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

			go func() {
				time.Sleep(retryDelay)
				select {
				case <-s.ctx.Done():
					slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
					return
				default:
					s.enqueueIfIdle(task)
				}
			}()
		}
	}
}
