package prometheus

import "github.com/prometheus/client_golang/prometheus"

// Core collectors. Registered once at package init; callers record through
// the exported vars.
var (
	TaskTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clawdeck_task_transitions_total",
		Help: "Task lifecycle transitions applied, by action and outcome.",
	}, []string{"action", "outcome"})

	TasksRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clawdeck_tasks_running",
		Help: "Number of tasks currently in the running state.",
	})

	CronFirings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clawdeck_cron_firings_total",
		Help: "Cron job firings, by outcome.",
	}, []string{"outcome"})

	ZombieFlags = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clawdeck_zombie_flags_total",
		Help: "Agent sessions flagged as suspected zombies.",
	})

	HeartbeatsIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clawdeck_heartbeats_ingested_total",
		Help: "Heartbeat signals received from executing agents.",
	})
)

func init() {
	registry.MustRegister(
		TaskTransitions,
		TasksRunning,
		CronFirings,
		ZombieFlags,
		HeartbeatsIngested,
	)
}
