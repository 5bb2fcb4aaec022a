package metrics

import (
	"time"

	"github.com/repochain/repochain/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	ResolutionsTotal          = "resolutions_total"
	ResolutionDuration        = "resolution_duration_ms"
	RepositoryQueriesTotal    = "repository_queries_total"
	RepositoryQueryDuration   = "repository_query_duration_ms"
	CandidatesReplacedTotal   = "changing_candidates_replaced_total"
	UnparsableTimestampsTotal = "snapshot_timestamps_unparsable_total"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordResolution records the outcome of one chain resolution.
func RecordResolution(outcome string, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	tags := map[string]string{"outcome": outcome}
	_ = observability.TelemetrySystem.Counter(ResolutionsTotal, 1, tags)
	_ = observability.TelemetrySystem.Histogram(ResolutionDuration, duration, tags)
}

// RecordRepositoryQuery records one repository attempt.
func RecordRepositoryQuery(repository string, state string, fromCache bool, duration time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}
	cache := "miss"
	if fromCache {
		cache = "hit"
	}
	_ = observability.TelemetrySystem.Counter(RepositoryQueriesTotal, 1, map[string]string{
		"repository": repository,
		"state":      state,
		"cache":      cache,
	})
	_ = observability.TelemetrySystem.Histogram(RepositoryQueryDuration, duration, map[string]string{
		"repository": repository,
	})
}

// RecordCandidateReplaced counts a newer changing module displacing the best so far.
func RecordCandidateReplaced(repository string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(CandidatesReplacedTotal, 1, map[string]string{
			"repository": repository,
		})
	}
}

// RecordUnparsableTimestamp counts tie-breaks abandoned for lack of a usable timestamp.
func RecordUnparsableTimestamp(repository string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(UnparsableTimestampsTotal, 1, map[string]string{
			"repository": repository,
		})
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
	}
}
