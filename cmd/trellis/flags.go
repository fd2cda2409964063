package main

import (
	"time"

	"github.com/dukex/trellis/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Persistence URL: file://<dir> or postgres://...",
		Value:   defaultDatabaseURL,
		Sources: cli.EnvVars("DATABASE_URL"),
	}
}

// engineFlags configure the engine in every command that runs workflows.
func engineFlags() []cli.Flag {
	return []cli.Flag{
		databaseFlag(),
		&cli.StringFlag{
			Name:    "scheduler-url",
			Usage:   "Scheduler state URL (redis://...); defaults to the database",
			Sources: cli.EnvVars("SCHEDULER_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider (gochannel, kafka)",
			Value:   defaultEventBus,
			Sources: cli.EnvVars("EVENT_BUS"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers for the kafka event bus",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "Upper bound of a single action",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("ACTION_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "history-retention",
			Usage:   "Number of executions kept in history",
			Value:   defaultHistoryLength,
			Sources: cli.EnvVars("HISTORY_RETENTION"),
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "How often the scheduler looks for due resumes and cron schedules",
			Value:   scheduler.DefaultPollInterval,
			Sources: cli.EnvVars("POLL_INTERVAL"),
		},
	}
}
