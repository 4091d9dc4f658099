package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so the alerting
// pipeline can be queried end to end: a queued alert carries the same
// entry_id from enqueue through drain to delivery.
const (
	// Tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID

	// Gateway requests
	KeyRequestID = "request_id" // chi middleware request ID
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // request path
	KeyClass     = "class"      // router classification: static, critical, deferred
	KeyStatus    = "status"     // HTTP status answered to the caller
	KeyUpstream  = "upstream"   // upstream origin URL

	// Cache tiers
	KeyTier       = "tier"       // tier name including generation
	KeyGeneration = "generation" // generation tag
	KeyIdentity   = "identity"   // normalized request identity (method + URL)
	KeyAsset      = "asset"      // static asset URL during install

	// Offline queue and sync
	KeyEntryID   = "entry_id"   // queue entry id
	KeyQueueLen  = "queue_len"  // queue length after an operation
	KeyTrigger   = "trigger"    // drain trigger: online, interval, manual
	KeyDelivered = "delivered"  // entries delivered in a drain
	KeyRemaining = "remaining"  // entries still queued after a drain
	KeyEndpoint  = "endpoint"   // remote alert endpoint URL
	KeyDuration  = "duration_ms"
)
