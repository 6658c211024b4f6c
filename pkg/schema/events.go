package schema

// Event type constants for the run progress stream.
const (
	EventRunStarted   = "run_started"
	EventRunPlanning  = "run_planning"
	EventRunProgress  = "run_progress"
	EventRunItem      = "run_item"
	EventRunRetry     = "run_retry"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"

	EventAnimationStarted   = "animation_started"
	EventAnimationCompleted = "animation_completed"
	EventAnimationFailed    = "animation_failed"

	EventBreakerOpen     = "breaker_open"
	EventBreakerHalfOpen = "breaker_half_open"
	EventBreakerClosed   = "breaker_closed"
)
