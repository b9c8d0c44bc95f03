package run

// PipelineConfig carries every tunable of the candidate pipeline.
// Populated from the environment by the config adapter; tests use
// DefaultPipelineConfig and override what they need.
type PipelineConfig struct {
	BatchSize             int     `envconfig:"PIPELINE_BATCH_SIZE" default:"100"`
	ChunkSize             int     `envconfig:"PIPELINE_CHUNK_SIZE" default:"100"`
	AutoApplyThreshold    float64 `envconfig:"PIPELINE_AUTO_APPLY_THRESHOLD" default:"0.85"`
	ReviewLowerThreshold  float64 `envconfig:"PIPELINE_REVIEW_LOWER_THRESHOLD" default:"0.60"`
	FuzzyThreshold        int     `envconfig:"PIPELINE_FUZZY_THRESHOLD" default:"65"`
	CosCandidateThreshold float64 `envconfig:"PIPELINE_COS_CANDIDATE_THRESHOLD" default:"0.60"`
	CosAutoThreshold      float64 `envconfig:"PIPELINE_COS_AUTO_THRESHOLD" default:"0.80"`
	MaxRetries            int     `envconfig:"PIPELINE_MAX_RETRIES" default:"2"`
	RetryBackoffSeconds   float64 `envconfig:"PIPELINE_RETRY_BACKOFF_SECONDS" default:"2.0"`

	// UseANN pushes embedding candidate search down to the vector index
	// instead of the in-memory similarity matrix. Worth it only for large
	// ticker universes.
	UseANN bool `envconfig:"PIPELINE_USE_ANN" default:"false"`

	DryRun                  bool    `envconfig:"PIPELINE_DRY_RUN" default:"false"`
	Version                 string  `envconfig:"PIPELINE_VERSION" default:"v1"`
	ProgressRefreshInterval float64 `envconfig:"PIPELINE_PROGRESS_REFRESH_INTERVAL" default:"0.5"`
	AutoApplyConfirm        bool    `envconfig:"PIPELINE_AUTO_APPLY_CONFIRM" default:"true"`
	HistoryKeepMax          int     `envconfig:"PIPELINE_HISTORY_KEEP_MAX" default:"10"`
	CacheEmbeddings         bool    `envconfig:"PIPELINE_CACHE_EMBEDDINGS" default:"true"`
	AllowConfirmedOverwrite bool    `envconfig:"PIPELINE_ALLOW_CONFIRMED_OVERWRITE" default:"false"`
}

// DefaultPipelineConfig returns the documented defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BatchSize:               100,
		ChunkSize:               100,
		AutoApplyThreshold:      0.85,
		ReviewLowerThreshold:    0.60,
		FuzzyThreshold:          65,
		CosCandidateThreshold:   0.60,
		CosAutoThreshold:        0.80,
		MaxRetries:              2,
		RetryBackoffSeconds:     2.0,
		UseANN:                  false,
		DryRun:                  false,
		Version:                 "v1",
		ProgressRefreshInterval: 0.5,
		AutoApplyConfirm:        true,
		HistoryKeepMax:          10,
		CacheEmbeddings:         true,
		AllowConfirmedOverwrite: false,
	}
}
