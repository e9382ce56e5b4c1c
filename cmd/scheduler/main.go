package main

import (
	"flag"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/cheeseonhead/bb-for-fun/pkg/config"
	"github.com/cheeseonhead/bb-for-fun/pkg/controller"
	"github.com/cheeseonhead/bb-for-fun/pkg/port"
	"github.com/cheeseonhead/bb-for-fun/pkg/signals"
	"github.com/cheeseonhead/bb-for-fun/pkg/sim"
	"github.com/cheeseonhead/bb-for-fun/pkg/statusapi"
)

var (
	configFile       string
	worldFile        string
	listenAddr       string
	scheduleInterval time.Duration
	statusInterval   time.Duration
	topK             int
)

func main() {
	klog.InitFlags(nil)
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.StringVar(&configFile, "config", "", "Path to scheduler config (YAML)")
	pflag.StringVar(&worldFile, "world", "", "Path to simulated world (YAML)")
	pflag.StringVar(&listenAddr, "listen", "", "Status API listen address")
	pflag.DurationVar(&scheduleInterval, "schedule-interval", 0, "Scheduling cycle interval")
	pflag.DurationVar(&statusInterval, "status-interval", 0, "Status cycle interval")
	pflag.IntVar(&topK, "top-k", 0, "Targets worked per cycle")
	pflag.Parse()
	defer klog.Flush()

	ctx := signals.SetupSignalContext()

	cfg, err := config.Load(configFile)
	if err != nil {
		klog.Fatalf("Error loading config: %s", err.Error())
	}
	// Flags override file and environment.
	pflag.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "world":
			cfg.WorldFile = worldFile
		case "listen":
			cfg.ListenAddr = listenAddr
		case "schedule-interval":
			cfg.ScheduleInterval = scheduleInterval
		case "status-interval":
			cfg.StatusInterval = statusInterval
		case "top-k":
			cfg.TopK = topK
		}
	})
	if err := cfg.Validate(); err != nil {
		klog.Fatalf("Invalid config: %s", err.Error())
	}
	if cfg.WorldFile == "" {
		klog.Fatal("No world file given (-world or world_file)")
	}

	world, err := sim.LoadWorld(cfg.WorldFile)
	if err != nil {
		klog.Fatalf("Error loading world: %s", err.Error())
	}
	if world.UnitCostGB != cfg.UnitCostGB {
		klog.Warningf("World unit cost %.2fGB differs from scheduler unit cost %.2fGB", world.UnitCostGB, cfg.UnitCostGB)
	}

	clk := clock.RealClock{}
	host := sim.NewHost(*world, clk)

	ports := controller.Ports{
		Nodes:   port.New("nodes"),
		Ranking: port.New("ranking"),
		Status:  port.New("status"),
	}
	nodesWriter, err := ports.Nodes.Claim("topology")
	if err != nil {
		klog.Fatalf("Error claiming node port: %s", err.Error())
	}
	topology := sim.NewTopology(host, nodesWriter, clk)
	if err := topology.PublishOnce(); err != nil {
		klog.Fatalf("Error publishing topology: %s", err.Error())
	}
	go topology.Run(ctx, cfg.TopologyInterval)

	ctrl, err := controller.NewController(host, ports, clk, controller.Config{
		ScheduleInterval: cfg.ScheduleInterval,
		StatusInterval:   cfg.StatusInterval,
		SchedulerPool:    cfg.SchedulerPool(),
		StatusPool:       cfg.StatusPool(),
		Decision:         cfg.Decision(),
	})
	if err != nil {
		klog.Fatalf("Error building controller: %s", err.Error())
	}

	api := statusapi.NewServer(ports.Status, rate.NewLimiter(rate.Limit(cfg.APIRateLimit), cfg.APIBurst))
	go func() {
		if err := api.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
			klog.Errorf("Status API stopped: %v", err)
		}
	}()

	if err = ctrl.Run(ctx); err != nil {
		klog.Fatalf("Error running controller: %s", err.Error())
	}
}
