// Package config assembles scheduler settings from defaults, an optional
// YAML file and FLEET_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"

	"github.com/cheeseonhead/bb-for-fun/pkg/capacity"
	"github.com/cheeseonhead/bb-for-fun/pkg/constants"
	"github.com/cheeseonhead/bb-for-fun/pkg/decision"
	"github.com/cheeseonhead/bb-for-fun/pkg/util"
)

type Config struct {
	ScheduleInterval time.Duration `yaml:"schedule_interval"`
	StatusInterval   time.Duration `yaml:"status_interval"`
	TopologyInterval time.Duration `yaml:"topology_interval"`

	TopK                  int      `yaml:"top_k"`
	HarvestFraction       float64  `yaml:"harvest_fraction"`
	RestoreTimeMultiplier float64  `yaml:"restore_time_multiplier"`
	ReservedTargets       []string `yaml:"reserved_targets"`

	UnitCostGB         float64 `yaml:"unit_cost_gb"`
	ControlNode        string  `yaml:"control_node"`
	ReserveSchedulerGB float64 `yaml:"reserve_scheduler_gb"`
	ReserveStatusGB    float64 `yaml:"reserve_status_gb"`

	ListenAddr   string  `yaml:"listen_addr"`
	APIRateLimit float64 `yaml:"api_rate_limit"`
	APIBurst     int     `yaml:"api_burst"`

	WorldFile string `yaml:"world_file"`
}

func Default() Config {
	d := decision.DefaultConfig()
	return Config{
		ScheduleInterval:      time.Second,
		StatusInterval:        500 * time.Millisecond,
		TopologyInterval:      10 * time.Second,
		TopK:                  d.TopK,
		HarvestFraction:       d.HarvestFraction,
		RestoreTimeMultiplier: d.RestoreTimeMultiplier,
		ReservedTargets:       d.ReservedTargets,
		UnitCostGB:            constants.DefaultUnitCostGB,
		ControlNode:           constants.DefaultControlNode,
		ReserveSchedulerGB:    float64(constants.ReserveScheduler),
		ReserveStatusGB:       float64(constants.ReserveStatus),
		ListenAddr:            ":8080",
		APIRateLimit:          20,
		APIBurst:              40,
	}
}

// Load reads path over the defaults and then applies the environment.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from FLEET_* variables. Unparseable values
// are ignored.
func (c *Config) ApplyEnv() {
	c.ScheduleInterval = util.GetEnvDuration("FLEET_SCHEDULE_INTERVAL", c.ScheduleInterval)
	c.StatusInterval = util.GetEnvDuration("FLEET_STATUS_INTERVAL", c.StatusInterval)
	c.TopologyInterval = util.GetEnvDuration("FLEET_TOPOLOGY_INTERVAL", c.TopologyInterval)
	c.TopK = util.GetEnvInt("FLEET_TOP_K", c.TopK)
	c.HarvestFraction = util.GetEnvFloat("FLEET_HARVEST_FRACTION", c.HarvestFraction)
	c.RestoreTimeMultiplier = util.GetEnvFloat("FLEET_RESTORE_TIME_MULTIPLIER", c.RestoreTimeMultiplier)
	c.ReservedTargets = util.GetEnvList("FLEET_RESERVED_TARGETS", c.ReservedTargets)
	c.UnitCostGB = util.GetEnvFloat("FLEET_UNIT_COST_GB", c.UnitCostGB)
	c.ControlNode = util.GetEnvOrDefault("FLEET_CONTROL_NODE", c.ControlNode)
	c.ReserveSchedulerGB = util.GetEnvFloat("FLEET_RESERVE_SCHEDULER_GB", c.ReserveSchedulerGB)
	c.ReserveStatusGB = util.GetEnvFloat("FLEET_RESERVE_STATUS_GB", c.ReserveStatusGB)
	c.ListenAddr = util.GetEnvOrDefault("FLEET_LISTEN_ADDR", c.ListenAddr)
	c.APIRateLimit = util.GetEnvFloat("FLEET_API_RATE_LIMIT", c.APIRateLimit)
	c.APIBurst = util.GetEnvInt("FLEET_API_BURST", c.APIBurst)
	c.WorldFile = util.GetEnvOrDefault("FLEET_WORLD_FILE", c.WorldFile)
}

func (c Config) Validate() error {
	if c.ScheduleInterval <= 0 || c.StatusInterval <= 0 || c.TopologyInterval <= 0 {
		return fmt.Errorf("cycle intervals must be positive")
	}
	if c.UnitCostGB <= 0 {
		return fmt.Errorf("unit cost %v must be positive", c.UnitCostGB)
	}
	if c.ReserveSchedulerGB < 0 || c.ReserveStatusGB < 0 {
		return fmt.Errorf("reservations must not be negative")
	}
	if c.APIRateLimit <= 0 || c.APIBurst <= 0 {
		return fmt.Errorf("api rate limit and burst must be positive")
	}
	if err := c.Decision().Validate(); err != nil {
		return err
	}
	if c.StatusInterval >= c.ScheduleInterval {
		klog.Warningf("Status interval %v is not shorter than schedule interval %v", c.StatusInterval, c.ScheduleInterval)
	}
	return nil
}

func (c Config) Decision() decision.Config {
	return decision.Config{
		HarvestFraction:       c.HarvestFraction,
		TopK:                  c.TopK,
		RestoreTimeMultiplier: c.RestoreTimeMultiplier,
		ReservedTargets:       c.ReservedTargets,
	}
}

// SchedulerPool is what the scheduling cycle allocates from.
func (c Config) SchedulerPool() capacity.PoolOptions {
	return capacity.PoolOptions{
		ControlNode: c.ControlNode,
		Reservation: constants.Reservation(c.ReserveSchedulerGB),
		UnitCostGB:  c.UnitCostGB,
	}
}

// StatusPool is what the status cycle reports.
func (c Config) StatusPool() capacity.PoolOptions {
	return capacity.PoolOptions{
		ControlNode: c.ControlNode,
		Reservation: constants.Reservation(c.ReserveStatusGB),
		UnitCostGB:  c.UnitCostGB,
	}
}
