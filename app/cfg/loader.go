package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./group-archive.db" description:"Path to the SQLite database file"`

	// Upstream source configuration
	SourceBaseUrl string `long:"source-base-url" env:"SOURCE_BASE_URL" default:"https://groups.io/api/v1" description:"Base URL of the upstream message-group API"`
	SourceToken   string `long:"source-token" env:"SOURCE_TOKEN" description:"Bearer token for the upstream API (required)" required:"true"`
	GroupID       int64  `long:"group-id" env:"GROUP_ID" description:"Numeric id of the message group to archive (required)" required:"true"`
	UserAgent     string `long:"user-agent" env:"USER_AGENT" default:"group-archive/1.0" description:"User agent string for upstream requests"`

	// Sync configuration
	FetchInterval   int  `long:"fetch-interval" env:"FETCH_INTERVAL" default:"300" description:"Seconds between incremental sync runs"`
	PageSize        int  `long:"page-size" env:"PAGE_SIZE" default:"100" description:"Messages per upstream page (max 100)"`
	MaxPerCycle     int  `long:"max-per-cycle" env:"MAX_PER_CYCLE" default:"1000" description:"Safety cap on messages fetched per incremental cycle"`
	BackfillEnabled bool `long:"backfill" env:"BACKFILL_ENABLED" description:"Enable historical backfill"`
	BackfillDelay   int  `long:"backfill-delay" env:"BACKFILL_DELAY" default:"5" description:"Seconds to wait between backfill pages (be gentle with the API)"`
	WorkerCount     int  `long:"worker-count" env:"WORKER_COUNT" default:"2" description:"Number of background workers for sync tasks"`

	// HTTP server configuration
	Port string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:          raw.DBPath,
		SourceBaseUrl:   raw.SourceBaseUrl,
		SourceToken:     raw.SourceToken,
		GroupID:         raw.GroupID,
		UserAgent:       raw.UserAgent,
		FetchInterval:   raw.FetchInterval,
		PageSize:        raw.PageSize,
		MaxPerCycle:     raw.MaxPerCycle,
		BackfillEnabled: raw.BackfillEnabled,
		BackfillDelay:   raw.BackfillDelay,
		WorkerCount:     raw.WorkerCount,
		Port:            raw.Port,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if cfg.PageSize > 100 {
		cfg.PageSize = 100
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
