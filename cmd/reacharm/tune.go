package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/gwillem/reacharm/pkg/arm"
	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
	"github.com/gwillem/reacharm/pkg/pidf"
	"github.com/gwillem/reacharm/pkg/slide"
)

type TuneCommand struct {
	Device   string        `long:"device" default:"arm" choice:"arm" choice:"slide" description:"Loop to tune"`
	Target   float64       `long:"target" default:"30" description:"Target: arm degrees, or slide extension in percent"`
	Swing    time.Duration `long:"swing" default:"3s" description:"Alternate between the target and rest at this interval, 0 to hold"`
	Duration time.Duration `long:"duration" default:"30s" description:"Stop after this long"`
	Sim      bool          `long:"sim" description:"Tune against the simulated plant"`
}

// tuneLoop is the part of the slide or arm the tuner drives.
type tuneLoop interface {
	update(ctx context.Context)
	setTarget(on bool)
	measure(ctx context.Context) (value, target float64, ok bool)
	gains(cfg *config.Config) pidf.Gains
	safe(ctx context.Context)
}

type slideLoop struct {
	s      *slide.Slide
	target float64
}

func (l slideLoop) update(ctx context.Context) { l.s.Update(ctx) }
func (l slideLoop) safe(ctx context.Context)   { l.s.EnsureSafety(ctx) }

func (l slideLoop) setTarget(on bool) {
	if on {
		l.s.SetTargetHeight(l.target / 100)
		return
	}
	l.s.SetTargetHeight(0)
}

func (l slideLoop) measure(ctx context.Context) (float64, float64, bool) {
	h, ok := l.s.CurrentHeight(ctx)
	return h * 100, l.s.TargetHeight() * 100, ok
}

func (slideLoop) gains(cfg *config.Config) pidf.Gains { return cfg.Slide.Gains }

type armLoop struct {
	a      *arm.Arm
	target float64
	rest   float64
}

func (l armLoop) update(ctx context.Context) { l.a.Update(ctx) }
func (l armLoop) safe(ctx context.Context)   { l.a.EnsureSafety(ctx) }

func (l armLoop) setTarget(on bool) {
	if on {
		l.a.SetTargetRotation(l.target)
		return
	}
	l.a.SetTargetRotation(l.rest)
}

func (l armLoop) measure(ctx context.Context) (float64, float64, bool) {
	angle, ok := l.a.CurrentAngle(ctx)
	return angle, l.a.TargetAngle(), ok
}

func (armLoop) gains(cfg *config.Config) pidf.Gains { return cfg.Arm.Gains }

type noWrist struct{}

func (noWrist) SetWristActive(bool) {}

func newTuneLoop(ctx context.Context, device string, target float64, reg hardware.Registry, store *config.Store, clk clock.Clock, logger *zap.SugaredLogger) (tuneLoop, error) {
	switch device {
	case "slide":
		s, err := slide.New(ctx, reg, store, clk, logger.Named("slide"))
		if err != nil {
			return nil, err
		}
		if !s.Connected() {
			return nil, errors.Errorf("%s not connected", slide.MotorName)
		}
		return slideLoop{s: s, target: target}, nil
	case "arm":
		a, err := arm.New(ctx, reg, store, clk, noWrist{}, logger.Named("arm"))
		if err != nil {
			return nil, err
		}
		if !a.Connected() {
			return nil, errors.Errorf("%s not connected", arm.MotorName)
		}
		return armLoop{a: a, target: target, rest: store.Load().Arm.CalibrationAngle}, nil
	}
	return nil, errors.Errorf("unknown device %q", device)
}

// tuneStats collects absolute tracking errors per swing.
type tuneStats struct {
	errs []float64
}

func (t *tuneStats) add(value, target float64) {
	t.errs = append(t.errs, math.Abs(target-value))
}

func (t *tuneStats) reset() {
	t.errs = t.errs[:0]
}

// summary returns mean and standard deviation of the absolute error, and the
// error at the last sample.
func (t *tuneStats) summary() (mean, std, final float64) {
	if len(t.errs) == 0 {
		return 0, 0, 0
	}
	mean, std = stat.MeanStdDev(t.errs, nil)
	if len(t.errs) < 2 {
		std = 0
	}
	return mean, std, t.errs[len(t.errs)-1]
}

func (c *TuneCommand) Execute(args []string) error {
	logger := newLogger(opts.LogFile, opts.Verbose)
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	store := config.NewStore(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, c.Duration)
	defer cancelTimeout()

	if config.Exists(opts.Config) {
		if err := config.Watch(ctx, opts.Config, store, logger.Named("config")); err != nil {
			return err
		}
		fmt.Println(dimStyle.Render("Edit the gains in " + opts.Config + " while this runs; they apply on save."))
	}

	clk := clock.New()
	reg, closer, err := openRegistry(ctx, cfg, c.Sim, clk, logger)
	if err != nil {
		return err
	}
	defer closer.Close()

	loop, err := newTuneLoop(ctx, c.Device, c.Target, reg, store, clk, logger)
	if err != nil {
		return err
	}
	defer loop.safe(context.Background())

	fmt.Println(headerStyle.Render(fmt.Sprintf("Tuning %s", c.Device)))

	ticker := clk.Ticker(store.Load().Loop.Period())
	defer ticker.Stop()

	var stats tuneStats
	on := true
	loop.setTarget(on)
	swingAt := clk.Now().Add(c.Swing)
	report := clk.Now().Add(time.Second)
	lastGains := loop.gains(store.Load())

	for {
		select {
		case <-ctx.Done():
			printSwing(&stats, loop.gains(store.Load()))
			return nil
		case <-ticker.C:
		}

		loop.update(ctx)
		value, target, ok := loop.measure(ctx)
		if ok {
			stats.add(value, target)
		}

		now := clk.Now()
		if g := loop.gains(store.Load()); g != lastGains {
			fmt.Println(warnStyle.Render(fmt.Sprintf("gains now kp=%g ki=%g kd=%g kf=%g", g.KP, g.KI, g.KD, g.KF)))
			lastGains = g
		}
		if !now.Before(report) {
			fmt.Printf("  value %8.2f  target %8.2f  error %8.2f\n", value, target, target-value)
			report = now.Add(time.Second)
		}
		if c.Swing > 0 && !now.Before(swingAt) {
			printSwing(&stats, lastGains)
			stats.reset()
			on = !on
			loop.setTarget(on)
			swingAt = now.Add(c.Swing)
		}
	}
}

func printSwing(stats *tuneStats, g pidf.Gains) {
	mean, std, final := stats.summary()
	fmt.Println(subHeaderStyle.Render(fmt.Sprintf(
		"swing: mean |error| %.2f  stddev %.2f  final %.2f  (kp=%g ki=%g kd=%g kf=%g)",
		mean, std, final, g.KP, g.KI, g.KD, g.KF)))
}
