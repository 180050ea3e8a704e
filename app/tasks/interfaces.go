package tasks

// TaskSchedulerInterface defines the interface for background task
// scheduling. Used by the main application to manage the worker pool and
// the periodic sync triggers.
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}
