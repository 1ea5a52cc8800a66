package config

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gwillem/reacharm/pkg/pidf"
)

// Validate checks configuration correctness. It does not mutate cfg.
func Validate(cfg *Config) error {
	if err := cfg.Kinematics.Validate(); err != nil {
		return errors.Wrap(err, "kinematics")
	}

	if err := validateGains(cfg.Slide.Gains); err != nil {
		return errors.Wrap(err, "slide gains")
	}
	if err := validateGains(cfg.Arm.Gains); err != nil {
		return errors.Wrap(err, "arm gains")
	}
	if !(cfg.Slide.TicksPerCm > 0) {
		return errors.New("slide.ticks_per_cm must be positive")
	}
	if !(cfg.Arm.TicksPerDegree > 0) {
		return errors.New("arm.ticks_per_degree must be positive")
	}

	for name, v := range map[string]float64{
		"slide.height_moving":        cfg.Slide.HeightMoving,
		"slide.height_scoring":       cfg.Slide.HeightScoring,
		"slide.height_hang":          cfg.Slide.HeightHang,
		"wrist.position_moving":      cfg.Wrist.PositionMoving,
		"wrist.position_deactivated": cfg.Wrist.PositionDeactivated,
		"wrist.hold_position":        cfg.Wrist.HoldPosition,
		"wrist.turn_position":        cfg.Wrist.TurnPosition,
	} {
		if !(v >= 0 && v <= 1) {
			return errors.Errorf("%s = %v, must be within [0, 1]", name, v)
		}
	}

	if !(cfg.Wrist.RangeDegrees > 0) {
		return errors.New("wrist.range_degrees must be positive")
	}
	if math.Abs(cfg.Wrist.RollerPower) > 1 {
		return errors.New("wrist.roller_power must be within [-1, 1]")
	}

	for name, ms := range map[string]int{
		"arm.initial_jump_time_ms": cfg.Arm.InitialJumpTimeMs,
		"arm.rotation_delay_ms":    cfg.Arm.RotationDelayMs,
		"arm.settle_time_ms":       cfg.Arm.SettleTimeMs,
	} {
		if ms < 0 {
			return errors.Errorf("%s must not be negative", name)
		}
	}
	if cfg.Arm.SettleTolerance < 0 {
		return errors.New("arm.settle_tolerance must not be negative")
	}

	if cfg.Loop.Hz <= 0 || cfg.Loop.Hz > 1000 {
		return errors.Errorf("loop.hz = %d, must be within (0, 1000]", cfg.Loop.Hz)
	}

	if err := cfg.Hardware.Validate(); err != nil {
		return errors.Wrap(err, "hardware")
	}

	regs := map[uint16]string{}
	for key, addr := range cfg.Telemetry.Modbus.Registers {
		if addr == math.MaxUint16 {
			return errors.Errorf("telemetry key %q: register %d leaves no room for a second word", key, addr)
		}
		// a value occupies addr and addr+1
		for _, a := range []uint16{addr, addr + 1} {
			if other, ok := regs[a]; ok {
				return errors.Errorf("telemetry keys %q and %q overlap at register %d", other, key, a)
			}
			regs[a] = key
		}
	}
	return nil
}

func validateGains(g pidf.Gains) error {
	for _, v := range []float64{g.KP, g.KI, g.KD, g.KF} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("gains must be finite")
		}
	}
	return nil
}
