package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 每日更新运行次数
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updater_runs_total",
			Help: "Total number of daily update triggers by result",
		},
		[]string{"status"}, // status: succeeded, partial, failed, skipped, error
	)

	// 每日更新耗时（秒）
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "updater_run_duration_seconds",
			Help:    "Duration of claimed daily update runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		},
	)

	// 习惯处理结果计数
	HabitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updater_habits_processed_total",
			Help: "Habits handled by the advancer, by outcome",
		},
		[]string{"outcome"},
	)

	HabitFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updater_habit_failures_total",
			Help: "Per-habit failures isolated during a run",
		},
		[]string{"error_type"},
	)

	OccurrencesRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "updater_occurrences_recorded_total",
			Help: "Occurrence markers inserted by the updater",
		},
	)

	StreakResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "updater_streak_resets_total",
			Help: "Positive streaks dropped to zero by a missed due day",
		},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	// 慢查询计数
	DBSlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Queries slower than the configured threshold",
		},
		[]string{"operation"},
	)

	OutboxPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox events handed to the broker, by result",
		},
		[]string{"status"}, // status: sent, failed, breaker_open
	)
)

// RecordRun 记录一次触发的结果；skipped/error 不记录耗时
func RecordRun(status string, duration time.Duration) {
	RunsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		RunDuration.Observe(duration.Seconds())
	}
}

func IncrementHabitProcessed(outcome string) {
	HabitsProcessed.WithLabelValues(outcome).Inc()
}

func IncrementHabitFailure(errorType string) {
	HabitFailures.WithLabelValues(errorType).Inc()
}

func IncrementOccurrenceRecorded() {
	OccurrencesRecorded.Inc()
}

func AddStreakResets(n int) {
	if n > 0 {
		StreakResets.Add(float64(n))
	}
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementSlowQuery 增加慢查询计数
func IncrementSlowQuery(operation string) {
	DBSlowQueries.WithLabelValues(operation).Inc()
}

func IncrementOutboxPublished(status string) {
	OutboxPublished.WithLabelValues(status).Inc()
}
