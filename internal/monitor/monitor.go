// Package monitor runs the present-position read cycle against one actuator:
// open the port, set the baud rate, poll, disable torque, close.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Jimmy-Hu/DynamixelSDK/dynamixel"
	"github.com/Jimmy-Hu/DynamixelSDK/internal/config"
	"github.com/Jimmy-Hu/DynamixelSDK/internal/console"
)

// Messages printed to Out.
const (
	MsgOpenOK      = "Succeeded to open the port!"
	MsgOpenFailed  = "Failed to open the port!"
	MsgBaudOK      = "Succeeded to change the baudrate!"
	MsgBaudFailed  = "Failed to change the baudrate!"
	MsgPressAnyKey = "Press any key to terminate..."
)

// OpenFunc acquires a bus for the configured device.
type OpenFunc func(dev config.DeviceConfig, version dynamixel.ProtocolVersion) (*dynamixel.Bus, error)

// Options wires Run to its collaborators. Only Config is required.
type Options struct {
	Config *config.Config

	// Out receives the user-facing lines. Defaults to os.Stdout.
	Out io.Writer

	// Logger receives structured logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// Open defaults to OpenSerial.
	Open OpenFunc

	// Pause defaults to console.Pause.
	Pause func(ctx context.Context, d time.Duration) error

	// WaitKey blocks until the user presses a key. Defaults to reading
	// one key from stdin.
	WaitKey func() error
}

// OpenSerial opens the serial device described by dev.
func OpenSerial(dev config.DeviceConfig, version dynamixel.ProtocolVersion) (*dynamixel.Bus, error) {
	return dynamixel.NewBus(dynamixel.BusConfig{
		Port:     dev.Port,
		Driver:   dev.Driver,
		BaudRate: dev.BaudRate,
		Protocol: version,
		Timeout:  dev.Timeout,
	})
}

func waitStdinKey() error {
	_, err := console.WaitKey(int(os.Stdin.Fd()))
	return err
}

func (o *Options) applyDefaults() {
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Open == nil {
		o.Open = OpenSerial
	}
	if o.Pause == nil {
		o.Pause = console.Pause
	}
	if o.WaitKey == nil {
		o.WaitKey = waitStdinKey
	}
}

// Run executes one monitoring session. Failing to open the port or to set
// the baud rate prints a message, waits for a key and returns an error.
// Communication and device errors while polling are printed and retried
// until poll.read_timeout; a poll that times out still disables torque
// before Run returns the error. The bus is closed on every path.
func Run(ctx context.Context, opts Options) (err error) {
	if opts.Config == nil {
		return errors.New("monitor: nil config")
	}
	opts.applyDefaults()
	cfg := opts.Config

	version, err := cfg.Protocol()
	if err != nil {
		return errors.Wrap(err, "protocol")
	}
	model, err := cfg.Model()
	if err != nil {
		return errors.Wrap(err, "model")
	}
	cal, err := cfg.ServoCalibration()
	if err != nil {
		return errors.Wrap(err, "calibration")
	}

	log := opts.Logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("port", cfg.Device.Port),
		zap.Int("id", cfg.Actuator.ID),
		zap.Stringer("protocol", version),
	)

	// ---- open ----

	bus, err := opts.Open(cfg.Device, version)
	if err != nil {
		log.Error("open port failed", zap.Error(err))
		return fatal(opts, MsgOpenFailed, errors.Wrap(err, "open port"))
	}
	defer func() {
		if cerr := bus.Close(); cerr != nil {
			log.Warn("close port failed", zap.Error(cerr))
			err = multierr.Append(err, errors.Wrap(cerr, "close port"))
		}
	}()
	opts.println(MsgOpenOK)

	// ---- baud rate ----

	if err := bus.SetBaudRate(cfg.Device.BaudRate); err != nil {
		log.Error("set baud rate failed", zap.Int("baud_rate", cfg.Device.BaudRate), zap.Error(err))
		return fatal(opts, MsgBaudFailed, errors.Wrap(err, "set baud rate"))
	}
	opts.println(MsgBaudOK)
	log.Info("port ready", zap.Int("baud_rate", bus.BaudRate()), zap.String("model", model.Name))

	servo := dynamixel.NewServo(bus, cfg.Actuator.ID, model)

	// ---- poll ----

	pollErr := poll(ctx, opts, log, servo, cal)

	// ---- torque off ----

	disableCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*cfg.Device.Timeout)
	defer cancel()
	if derr := servo.Disable(disableCtx); derr != nil {
		opts.printResult(derr)
		log.Warn("torque disable failed", zap.Error(derr))
	} else {
		log.Debug("torque disabled")
	}

	return pollErr
}

// poll runs poll.iterations read cycles. Each cycle starts from an invalid
// (zero) reading, waits for a nonzero one and then pauses poll.interval.
func poll(ctx context.Context, opts Options, log *zap.Logger, servo *dynamixel.Servo, cal dynamixel.Calibration) error {
	cfg := opts.Config

	retry := dynamixel.RetryConfig{
		Timeout:         cfg.Poll.ReadTimeout,
		InitialInterval: cfg.Poll.InitialBackoff,
		MaxInterval:     cfg.Poll.MaxBackoff,
		OnRetry: func(err error, next time.Duration) {
			opts.printResult(err)
			log.Debug("read retry",
				zap.Stringer("result", dynamixel.ResultOf(err)),
				zap.Duration("next", next),
				zap.Error(err),
			)
		},
	}

	for i := 0; i < cfg.Poll.Iterations; i++ {
		position, err := dynamixel.WaitForPosition(ctx, servo, retry)
		if err != nil {
			log.Error("no valid present position", zap.Int("iteration", i), zap.Error(err))
			return errors.Wrap(err, "read present position")
		}

		normalized, err := cal.Normalize(position)
		if err != nil {
			return errors.Wrap(err, "normalize position")
		}
		opts.printf("[ID:%03d] PresPos:%d (%.2f %s)\n", servo.ID(), position, normalized, cal.Mode)
		log.Info("present position",
			zap.Int("iteration", i),
			zap.Int("raw", position),
			zap.Float64("normalized", normalized),
		)

		if err := opts.Pause(ctx, cfg.Poll.Interval); err != nil {
			return errors.Wrap(err, "pause")
		}
	}

	return nil
}

// fatal prints msg, waits for a key and returns err.
func fatal(opts Options, msg string, err error) error {
	opts.println(msg)
	opts.println(MsgPressAnyKey)
	if kerr := opts.WaitKey(); kerr != nil {
		opts.Logger.Debug("wait for key", zap.Error(kerr))
	}
	return err
}

// printResult prints the device error text when the actuator flagged the
// status packet, and the communication result text otherwise. Zero readings
// are not errors and print nothing.
func (o Options) printResult(err error) {
	if errors.Is(err, dynamixel.ErrZeroReading) {
		return
	}
	if pktErr, ok := dynamixel.PacketErrorOf(err); ok {
		o.println(pktErr.Error())
		return
	}
	o.println(dynamixel.ResultOf(err).String())
}

func (o Options) println(s string) {
	fmt.Fprintln(o.Out, s)
}

func (o Options) printf(format string, args ...any) {
	fmt.Fprintf(o.Out, format, args...)
}
