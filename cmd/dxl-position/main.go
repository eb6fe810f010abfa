// Command dxl-position reads the present position of one Dynamixel actuator,
// disables its torque and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Jimmy-Hu/DynamixelSDK/dynamixel"
	"github.com/Jimmy-Hu/DynamixelSDK/internal/config"
	"github.com/Jimmy-Hu/DynamixelSDK/internal/monitor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("dxl-position", flag.ContinueOnError)
	var (
		cfgPath    = fs.String("config", "", "YAML config file")
		port       = fs.String("port", "", "serial device (overrides config)")
		baud       = fs.Int("baud", 0, "baud rate (overrides config)")
		id         = fs.Int("id", -1, "actuator ID (overrides config)")
		protocol   = fs.Float64("protocol", 0, "protocol version 1.0 or 2.0 (overrides config)")
		model      = fs.String("model", "", "control table name (overrides config)")
		driver     = fs.String("driver", "", "serial driver: bugst, goburrow or tarm (overrides config)")
		iterations = fs.Int("iterations", 0, "read cycles (overrides config)")
		scan       = fs.Bool("scan", false, "list responding actuators and exit")
		debug      = fs.Bool("debug", false, "human-readable debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		logger.Error("config load failed", zap.Error(err))
		return 1
	}

	if *port != "" {
		cfg.Device.Port = *port
	}
	if *baud != 0 {
		cfg.Device.BaudRate = *baud
	}
	if *driver != "" {
		cfg.Device.Driver = *driver
	}
	if *id >= 0 {
		cfg.Actuator.ID = *id
	}
	if *protocol != 0 && *protocol != cfg.Actuator.ProtocolVersion {
		cfg.Actuator.ProtocolVersion = *protocol
		// The configured table belongs to the other protocol.
		cfg.Actuator.Model = ""
	}
	if *model != "" {
		cfg.Actuator.Model = *model
	}
	if *iterations != 0 {
		cfg.Poll.Iterations = *iterations
	}

	if err := config.Validate(cfg); err != nil {
		logger.Error("config validation failed", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *scan {
		err = scanBus(ctx, cfg)
	} else {
		err = monitor.Run(ctx, monitor.Options{
			Config: cfg,
			Out:    os.Stdout,
			Logger: logger,
		})
	}
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func scanBus(ctx context.Context, cfg *config.Config) error {
	version, err := cfg.Protocol()
	if err != nil {
		return err
	}

	bus, err := monitor.OpenSerial(cfg.Device, version)
	if err != nil {
		return errors.Wrap(err, "open port")
	}
	defer bus.Close()

	fmt.Printf("Scanning %s at %d bps (protocol %s)...\n", cfg.Device.Port, cfg.Device.BaudRate, version)

	found, err := bus.Scan(ctx, 0, dynamixel.MaxServoID)
	if err != nil {
		return errors.Wrap(err, "scan")
	}

	if len(found) == 0 {
		fmt.Println("No actuators found")
		return nil
	}
	for _, f := range found {
		name := "unknown"
		if f.Model != nil {
			name = f.Model.Name
		}
		fmt.Printf("[ID:%03d] model %d (%s)\n", f.ID, f.ModelNumber, name)
	}
	return nil
}
