// Package observability provides OpenTelemetry metrics and tracing for the hub API.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameHTTPRequests             = "hub_http_requests_total"
	MetricNameHTTPRequestDuration      = "hub_http_request_duration_seconds"
	MetricNameRequestBodyTooLarge      = "hub_request_body_too_large_total"
	MetricNameRecommendations          = "hub_recommendations_total"
	MetricNameRecommendationDuration   = "hub_recommendation_duration_seconds"
	MetricNameRecommendationCandidates = "hub_recommendation_candidates"
	MetricNameRerankOutcomes           = "hub_rerank_outcomes_total"
	MetricNameEmbeddingOutcomes        = "hub_embedding_outcomes_total"
	MetricNameEmbeddingDuration        = "hub_embedding_duration_seconds"
	MetricNameBackfillMovies           = "hub_backfill_movies_total"
	MetricNameBackfillJobsEnqueued     = "hub_backfill_jobs_enqueued_total"
	MetricNameCacheLookups             = "hub_cache_lookups_total"
)

// Attribute keys.
const (
	AttrOutcome = "outcome"
	AttrStatus  = "status"
	AttrStage   = "stage"
	AttrCache   = "cache"
	AttrResult  = "result"
)

// AllowedRecommendationOutcomes for hub_recommendations_total.
var AllowedRecommendationOutcomes = map[string]bool{
	"ok":       true,
	"empty":    true,
	"degraded": true,
	"failed":   true,
	"invalid":  true,
}

// AllowedRerankOutcomes for hub_rerank_outcomes_total.
var AllowedRerankOutcomes = map[string]bool{
	"ranked":         true,
	"fallback_call":  true,
	"fallback_parse": true,
}

// AllowedEmbeddingStages for hub_embedding_outcomes_total (which caller asked for the embedding).
var AllowedEmbeddingStages = map[string]bool{
	"query":    true,
	"backfill": true,
	"sample":   true,
}

// AllowedEmbeddingStatuses for hub_embedding_outcomes_total and hub_embedding_duration_seconds.
var AllowedEmbeddingStatuses = map[string]bool{
	"success": true,
	"failed":  true,
}

// AllowedBackfillStatuses for hub_backfill_movies_total.
var AllowedBackfillStatuses = map[string]bool{
	"embedded": true,
	"failed":   true,
}

// AllowedCacheNames for hub_cache_lookups_total.
var AllowedCacheNames = map[string]bool{
	"ranking": true,
}

// NormalizeReason returns reason if in allowed, otherwise "other".
func NormalizeReason(reason string, allowed map[string]bool) string {
	if allowed[reason] {
		return reason
	}

	return "other"
}

// NormalizeCacheName returns name if it is a known cache, otherwise "other".
func NormalizeCacheName(name string) string {
	return NormalizeReason(name, AllowedCacheNames)
}

// statusClass maps an HTTP status code to 2xx/3xx/4xx/5xx.
func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
