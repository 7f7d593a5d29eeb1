package cfg

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// Config holds the application-level settings that do not belong to a
// single component, plus the pipeline tunables wired through to the
// store, alert engine, and scheduler.
type Config struct {
	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int

	IngestIntervalMinutes   int
	BreakingIntervalMinutes int
	CleanupIntervalHours    int
	AdapterTimeoutSeconds   int

	MatchToleranceHours int
	RetentionDays       int
	MaxIncidents        int

	SeverityThreshold      int
	CooldownMinutes        int
	MaxAlertsPerHour       int
	PingIntervalSeconds    int

	StatePath       string
	DatabaseURL     string
	SlackWebhookURL string
	EmailRecipients string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.IntVar(&c.IngestIntervalMinutes, "ingest-interval-minutes", 15, "minutes between full ingestion cycles (1..1440)")
	fs.IntVar(&c.BreakingIntervalMinutes, "breaking-interval-minutes", 5, "minutes between breaking-news passes (1..1440)")
	fs.IntVar(&c.CleanupIntervalHours, "cleanup-interval-hours", 24, "hours between retention cleanups (1..168)")
	fs.IntVar(&c.AdapterTimeoutSeconds, "adapter-timeout-seconds", 60, "per-source fetch budget in seconds (1..300)")
	fs.IntVar(&c.MatchToleranceHours, "match-tolerance-hours", 2, "time window in hours for merging reports of the same event (1..48)")
	fs.IntVar(&c.RetentionDays, "retention-days", 30, "days to retain non-active incidents (1..365)")
	fs.IntVar(&c.MaxIncidents, "max-incidents", 1000, "hard ceiling on stored incidents (1..100000)")
	fs.IntVar(&c.SeverityThreshold, "severity-threshold", 7, "minimum severity for an incident to alert (1..10)")
	fs.IntVar(&c.CooldownMinutes, "cooldown-minutes", 5, "minutes before the same asset and category may alert again (1..1440)")
	fs.IntVar(&c.MaxAlertsPerHour, "max-alerts-per-hour", 20, "hard cap on alerts fired per rolling hour (1..1000)")
	fs.IntVar(&c.PingIntervalSeconds, "ping-interval-seconds", 30, "websocket liveness probe cadence in seconds (1..300)")
	fs.StringVar(&c.StatePath, "state-path", "airsight-state.json", "snapshot file path (ignored when database-url is set)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = file snapshot)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for alert delivery (empty = disabled)")
	fs.StringVar(&c.EmailRecipients, "email-recipients", "", "comma-separated email alert recipients (empty = disabled)")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if c.IngestIntervalMinutes <= 0 || c.IngestIntervalMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid INGEST_INTERVAL_MINUTES %d (must be 1..1440)", c.IngestIntervalMinutes))
	}
	if c.BreakingIntervalMinutes <= 0 || c.BreakingIntervalMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid BREAKING_INTERVAL_MINUTES %d (must be 1..1440)", c.BreakingIntervalMinutes))
	}
	if c.CleanupIntervalHours <= 0 || c.CleanupIntervalHours > 168 {
		errs = append(errs, fmt.Errorf("invalid CLEANUP_INTERVAL_HOURS %d (must be 1..168)", c.CleanupIntervalHours))
	}
	if c.AdapterTimeoutSeconds <= 0 || c.AdapterTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid ADAPTER_TIMEOUT_SECONDS %d (must be 1..300)", c.AdapterTimeoutSeconds))
	}

	if c.MatchToleranceHours <= 0 || c.MatchToleranceHours > 48 {
		errs = append(errs, fmt.Errorf("invalid MATCH_TOLERANCE_HOURS %d (must be 1..48)", c.MatchToleranceHours))
	}
	if c.RetentionDays <= 0 || c.RetentionDays > 365 {
		errs = append(errs, fmt.Errorf("invalid RETENTION_DAYS %d (must be 1..365)", c.RetentionDays))
	}
	if c.MaxIncidents <= 0 || c.MaxIncidents > 100000 {
		errs = append(errs, fmt.Errorf("invalid MAX_INCIDENTS %d (must be 1..100000)", c.MaxIncidents))
	}

	if c.SeverityThreshold < 1 || c.SeverityThreshold > 10 {
		errs = append(errs, fmt.Errorf("invalid SEVERITY_THRESHOLD %d (must be 1..10)", c.SeverityThreshold))
	}
	if c.CooldownMinutes <= 0 || c.CooldownMinutes > 1440 {
		errs = append(errs, fmt.Errorf("invalid COOLDOWN_MINUTES %d (must be 1..1440)", c.CooldownMinutes))
	}
	if c.MaxAlertsPerHour <= 0 || c.MaxAlertsPerHour > 1000 {
		errs = append(errs, fmt.Errorf("invalid MAX_ALERTS_PER_HOUR %d (must be 1..1000)", c.MaxAlertsPerHour))
	}
	if c.PingIntervalSeconds <= 0 || c.PingIntervalSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid PING_INTERVAL_SECONDS %d (must be 1..300)", c.PingIntervalSeconds))
	}

	// A snapshot destination is required so restarts do not lose state
	if c.DatabaseURL == "" && c.StatePath == "" {
		errs = append(errs, errors.New("STATE_PATH is required when DATABASE_URL is empty"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IngestInterval returns the full-cycle cadence as a duration.
func (c *Config) IngestInterval() time.Duration {
	return time.Duration(c.IngestIntervalMinutes) * time.Minute
}

// BreakingInterval returns the breaking-news cadence as a duration.
func (c *Config) BreakingInterval() time.Duration {
	return time.Duration(c.BreakingIntervalMinutes) * time.Minute
}

// CleanupInterval returns the retention cleanup cadence as a duration.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalHours) * time.Hour
}

// AdapterTimeout returns the per-source fetch budget as a duration.
func (c *Config) AdapterTimeout() time.Duration {
	return time.Duration(c.AdapterTimeoutSeconds) * time.Second
}

// MatchTolerance returns the merge window as a duration.
func (c *Config) MatchTolerance() time.Duration {
	return time.Duration(c.MatchToleranceHours) * time.Hour
}

// RetentionHorizon returns the non-active retention span as a duration.
func (c *Config) RetentionHorizon() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Cooldown returns the per-asset alert cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// PingInterval returns the websocket probe cadence as a duration.
func (c *Config) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSeconds) * time.Second
}
