// Package config loads runtime settings from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime settings for the fleetpilot server.
type Config struct {
	Addr   string
	DBPath string

	// Engine selects the workflow engine: "sync", "goworkflows", or "dbos".
	Engine string
	// WorkflowDBPath backs the goworkflows durable store.
	WorkflowDBPath string
	// DBOSDatabaseURL is the Postgres URL the dbos engine persists to.
	DBOSDatabaseURL string
	DBOSAppName     string

	// Driver selects the member driver: "mem" (in-process simulator) or
	// "exec" (configured commands).
	Driver         string
	DriverCommands DriverCommands

	// Release lifecycle tuning. Zero means the workflow default.
	MaxStartWait          time.Duration
	LivenessInterval      time.Duration
	MaxValidationAttempts int
	RetryDelay            time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	Capacity CapacityConfig
}

// DriverCommands holds the argv per exec-driver operation.
type DriverCommands struct {
	Stop        []string `json:"stop"`
	Install     []string `json:"install"`
	Start       []string `json:"start"`
	IsLive      []string `json:"isLive"`
	Diagnostics []string `json:"diagnostics"`
}

// CapacityConfig configures the capacity control loop. The loop runs only
// when an Auto Scaling group name is set.
type CapacityConfig struct {
	Signals  map[string]SignalConfig
	MinCount int
	MaxCount int

	ScaleOutCooldown time.Duration
	ScaleInCooldown  time.Duration
	// TickPeriod and SampleTimeout of zero mean the controller defaults.
	TickPeriod    time.Duration
	SampleTimeout time.Duration

	ASGName   string
	AWSRegion string
}

// SignalConfig configures one load signal: the policy parameters plus the
// CloudWatch metric it samples.
type SignalConfig struct {
	TargetRatio float64 `json:"targetRatio"`
	Weight      float64 `json:"weight"`
	// Normalize is "ratio" (default), "percent", or "capacity".
	Normalize string `json:"normalize"`
	// Capacity is the rated per-fleet capacity for the "capacity" kind.
	Capacity float64 `json:"capacity"`

	Namespace  string            `json:"namespace"`
	MetricName string            `json:"metricName"`
	Dimensions map[string]string `json:"dimensions"`
	Stat       string            `json:"stat"`
}

const (
	defaultAddr           = ":8080"
	defaultDBPath         = "fleetpilot.db"
	defaultWorkflowDBPath = "fleetpilot-workflows.db"
	defaultKafkaTopic     = "fleetpilot.events"
	defaultMinCount       = 1
	defaultMaxCount       = 10
)

// Load reads environment variables and returns a Config.
func Load() (Config, error) {
	cfg := Config{
		Addr:   getEnv("FLEETPILOT_ADDR", defaultAddr),
		DBPath: getEnv("FLEETPILOT_DB_PATH", defaultDBPath),

		Engine:          getEnv("FLEETPILOT_ENGINE", "sync"),
		WorkflowDBPath:  getEnv("FLEETPILOT_WORKFLOW_DB_PATH", defaultWorkflowDBPath),
		DBOSDatabaseURL: firstNonEmpty(os.Getenv("FLEETPILOT_DBOS_DATABASE_URL"), os.Getenv("DBOS_SYSTEM_DATABASE_URL")),
		DBOSAppName:     getEnv("FLEETPILOT_DBOS_APP_NAME", "fleetpilot"),

		Driver: getEnv("FLEETPILOT_DRIVER", "mem"),

		MaxStartWait:          getSeconds("FLEETPILOT_MAX_START_WAIT_SECONDS", 0),
		LivenessInterval:      getSeconds("FLEETPILOT_LIVENESS_INTERVAL_SECONDS", 0),
		MaxValidationAttempts: getInt("FLEETPILOT_MAX_VALIDATION_ATTEMPTS", 0),
		RetryDelay:            getSeconds("FLEETPILOT_RETRY_DELAY_SECONDS", 0),

		KafkaBrokers: splitList(os.Getenv("FLEETPILOT_KAFKA_BROKERS")),
		KafkaTopic:   getEnv("FLEETPILOT_KAFKA_TOPIC", defaultKafkaTopic),

		Capacity: CapacityConfig{
			MinCount:         getInt("FLEETPILOT_MIN_COUNT", defaultMinCount),
			MaxCount:         getInt("FLEETPILOT_MAX_COUNT", defaultMaxCount),
			ScaleOutCooldown: getSeconds("FLEETPILOT_SCALE_OUT_COOLDOWN_SECONDS", time.Minute),
			ScaleInCooldown:  getSeconds("FLEETPILOT_SCALE_IN_COOLDOWN_SECONDS", 5*time.Minute),
			TickPeriod:       getSeconds("FLEETPILOT_TICK_PERIOD_SECONDS", 0),
			SampleTimeout:    getSeconds("FLEETPILOT_SAMPLE_TIMEOUT_SECONDS", 0),
			ASGName:          os.Getenv("FLEETPILOT_ASG_NAME"),
			AWSRegion:        os.Getenv("FLEETPILOT_AWS_REGION"),
		},
	}

	if v := os.Getenv("FLEETPILOT_DRIVER_COMMANDS"); v != "" {
		if err := json.Unmarshal([]byte(v), &cfg.DriverCommands); err != nil {
			return Config{}, fmt.Errorf("FLEETPILOT_DRIVER_COMMANDS: %w", err)
		}
	}
	if v := os.Getenv("FLEETPILOT_CAPACITY_SIGNALS"); v != "" {
		if err := json.Unmarshal([]byte(v), &cfg.Capacity.Signals); err != nil {
			return Config{}, fmt.Errorf("FLEETPILOT_CAPACITY_SIGNALS: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CapacityEnabled reports whether the capacity control loop should run.
func (c Config) CapacityEnabled() bool {
	return c.Capacity.ASGName != ""
}

func (c Config) validate() error {
	switch c.Engine {
	case "sync", "goworkflows", "dbos":
	default:
		return fmt.Errorf("FLEETPILOT_ENGINE: unknown engine %q", c.Engine)
	}
	if c.Engine == "dbos" && c.DBOSDatabaseURL == "" {
		return fmt.Errorf("FLEETPILOT_DBOS_DATABASE_URL is required for the dbos engine")
	}

	switch c.Driver {
	case "mem":
	case "exec":
		cmds := c.DriverCommands
		if len(cmds.Stop) == 0 || len(cmds.Install) == 0 || len(cmds.Start) == 0 || len(cmds.IsLive) == 0 {
			return fmt.Errorf("FLEETPILOT_DRIVER_COMMANDS: exec driver needs stop, install, start, and isLive commands")
		}
	default:
		return fmt.Errorf("FLEETPILOT_DRIVER: unknown driver %q", c.Driver)
	}

	if c.CapacityEnabled() {
		if len(c.Capacity.Signals) == 0 {
			return fmt.Errorf("FLEETPILOT_CAPACITY_SIGNALS is required when FLEETPILOT_ASG_NAME is set")
		}
		for name, sig := range c.Capacity.Signals {
			if sig.TargetRatio <= 0 {
				return fmt.Errorf("FLEETPILOT_CAPACITY_SIGNALS: signal %q needs a positive targetRatio", name)
			}
			switch sig.Normalize {
			case "", "ratio", "percent":
			case "capacity":
				if sig.Capacity <= 0 {
					return fmt.Errorf("FLEETPILOT_CAPACITY_SIGNALS: signal %q needs a positive capacity", name)
				}
			default:
				return fmt.Errorf("FLEETPILOT_CAPACITY_SIGNALS: signal %q has unknown normalize kind %q", name, sig.Normalize)
			}
			if sig.Namespace == "" || sig.MetricName == "" {
				return fmt.Errorf("FLEETPILOT_CAPACITY_SIGNALS: signal %q needs a namespace and metricName", name)
			}
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return i
		}
	}
	return fallback
}

func getSeconds(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
