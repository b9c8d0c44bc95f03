package kafka

// Topic definitions for pipeline event streaming
const (
	// Throttled progress events emitted while a batch is processing
	TopicPipelineProgress = "pipeline.progress"

	// One summary event per completed (or failed) processing run
	TopicPipelineRuns = "pipeline.runs"
)
