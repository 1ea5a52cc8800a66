package main

import (
	"context"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gwillem/reacharm/pkg/arm"
	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/intake"
	"github.com/gwillem/reacharm/pkg/robot"
	"github.com/gwillem/reacharm/pkg/slide"
	"github.com/gwillem/reacharm/pkg/telemetry"
)

// newLogger writes to a rotating file; the terminal belongs to the TUI.
func newLogger(path string, verbose bool) *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
	})
	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	return zap.New(zapcore.NewCore(enc, w, level)).Sugar()
}

// loadConfig falls back to the defaults when path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if !config.Exists(path) {
		return config.Default(), nil
	}
	return config.Load(path)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openRegistry returns the servo bus, or a simulated appendage when sim is
// set.
func openRegistry(ctx context.Context, cfg *config.Config, sim bool, clk clock.Clock, logger *zap.SugaredLogger) (hardware.Registry, io.Closer, error) {
	if sim {
		return newSimRegistry(cfg, clk), nopCloser{}, nil
	}
	if !cfg.Hardware.IsConfigured() {
		return nil, nil, errors.New("no servo bus configured, run 'reacharm setup' or use --sim")
	}
	bus, err := robot.Open(ctx, cfg.Hardware, logger.Named("bus"))
	if err != nil {
		return nil, nil, err
	}
	return bus, bus, nil
}

// newSimRegistry builds a complete appendage whose motors cross their full
// travel in about a second at full power.
func newSimRegistry(cfg *config.Config, clk clock.Clock) *hardware.SimRegistry {
	reg := hardware.NewSimRegistry()
	slideTicks := cfg.Slide.TicksPerCm * cfg.Kinematics.MaxExtensionDistance
	reg.Add(slide.MotorName, hardware.KindMotor, hardware.NewSimMotor(clk, slideTicks))
	reg.Add(arm.MotorName, hardware.KindMotor, hardware.NewSimMotor(clk, cfg.Arm.TicksPerDegree*180))
	reg.Add(arm.SwitchName, hardware.KindSwitch, &hardware.SimSwitch{})
	reg.Add(intake.LeftServoName, hardware.KindCRServo, &hardware.SimCRServo{})
	reg.Add(intake.RightServoName, hardware.KindCRServo, &hardware.SimCRServo{})
	reg.Add(intake.WristServoName, hardware.KindServo, &hardware.SimServo{})
	return reg
}

// newSink logs telemetry at debug level and mirrors it to Modbus when
// configured. A Modbus endpoint that cannot be reached is logged and skipped.
func newSink(cfg *config.Config, logger *zap.SugaredLogger) (telemetry.Sink, func() error) {
	sinks := telemetry.Multi{telemetry.NewZapSink(logger.Named("telemetry"))}
	closeFn := func() error { return nil }

	mb := cfg.Telemetry.Modbus
	if mb.Enabled() {
		sink, closer, err := telemetry.DialModbus(mb.Endpoint, mb.UnitID, mb.Timeout(), mb.Registers, logger.Named("modbus"))
		if err != nil {
			logger.Warnf("modbus telemetry disabled: %v", err)
		} else {
			sinks = append(sinks, sink)
			closeFn = closer
		}
	}
	return sinks, closeFn
}
