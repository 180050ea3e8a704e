package cfg

type Cfg struct {
	// Database configuration
	DBPath string

	// Upstream source configuration
	SourceBaseUrl string
	SourceToken   string
	GroupID       int64
	UserAgent     string

	// Sync configuration
	FetchInterval   int
	PageSize        int
	MaxPerCycle     int
	BackfillEnabled bool
	BackfillDelay   int
	WorkerCount     int

	// HTTP server configuration
	Port string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}
