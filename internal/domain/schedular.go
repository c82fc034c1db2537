package domain

import "context"

// ScheduledTask is a named piece of work run on a cron schedule.
type ScheduledTask struct {
	Name     string
	Schedule string // cron expression with a leading seconds field
	Run      func(ctx context.Context) error
}

type Schedular interface {
	Start(ctx context.Context) error
	Stop()

	AddTask(task *ScheduledTask) error
	RemoveTask(name string) error
}
