// Package config holds the tunable constants of the appendage as an
// immutable snapshot.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gwillem/reacharm/pkg/kinematics"
	"github.com/gwillem/reacharm/pkg/pidf"
	"github.com/gwillem/reacharm/pkg/robot"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "reacharm.yaml"

type Config struct {
	Slide      SlideConfig       `json:"slide" yaml:"slide"`
	Arm        ArmConfig         `json:"arm" yaml:"arm"`
	Wrist      WristConfig       `json:"wrist" yaml:"wrist"`
	Kinematics kinematics.Limits `json:"kinematics" yaml:"kinematics"`
	Loop       LoopConfig        `json:"loop" yaml:"loop"`
	Hardware   robot.Config      `json:"hardware" yaml:"hardware"`
	Telemetry  TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
}

// ---- SLIDE ----

type SlideConfig struct {
	Gains      pidf.Gains `json:"gains" yaml:"gains"`
	TicksPerCm float64    `json:"ticks_per_cm" yaml:"ticks_per_cm"`
	Reversed   bool       `json:"reversed" yaml:"reversed"`

	// Preset heights, normalized to [0, 1].
	HeightMoving  float64 `json:"height_moving" yaml:"height_moving"`
	HeightScoring float64 `json:"height_scoring" yaml:"height_scoring"`
	HeightHang    float64 `json:"height_hang" yaml:"height_hang"`
}

// ---- ARM ----

// ArmConfig angles are geometric degrees from horizontal unless noted.
type ArmConfig struct {
	Gains          pidf.Gains `json:"gains" yaml:"gains"`
	TicksPerDegree float64    `json:"ticks_per_degree" yaml:"ticks_per_degree"`
	Reversed       bool       `json:"reversed" yaml:"reversed"`

	// CalibrationAngle is the geometric angle of the arm when the encoder
	// reads zero.
	CalibrationAngle float64 `json:"calibration_angle" yaml:"calibration_angle"`

	RotationMoving    float64 `json:"rotation_moving" yaml:"rotation_moving"`
	RotationScoring   float64 `json:"rotation_scoring" yaml:"rotation_scoring"`
	RotationIntake    float64 `json:"rotation_intake" yaml:"rotation_intake"`
	RotationHangSetup float64 `json:"rotation_hang_setup" yaml:"rotation_hang_setup"`
	RotationHangGrab  float64 `json:"rotation_hang_grab" yaml:"rotation_hang_grab"`
	RotationHangPull  float64 `json:"rotation_hang_pull" yaml:"rotation_hang_pull"`

	// InitialJumpAngle is in the actuator frame.
	InitialJumpAngle  float64 `json:"initial_jump_angle" yaml:"initial_jump_angle"`
	InitialJumpTimeMs int     `json:"initial_jump_time_ms" yaml:"initial_jump_time_ms"`
	RotationDelayMs   int     `json:"rotation_delay_ms" yaml:"rotation_delay_ms"`
	SettleTimeMs      int     `json:"settle_time_ms" yaml:"settle_time_ms"`
	// SettleTolerance ends a deactivation early once the arm is this close
	// to its safe angle. Zero waits for the full settle time.
	SettleTolerance float64 `json:"settle_tolerance" yaml:"settle_tolerance"`
}

func (a ArmConfig) InitialJumpTime() time.Duration {
	return time.Duration(a.InitialJumpTimeMs) * time.Millisecond
}

func (a ArmConfig) RotationDelay() time.Duration {
	return time.Duration(a.RotationDelayMs) * time.Millisecond
}

func (a ArmConfig) SettleTime() time.Duration {
	return time.Duration(a.SettleTimeMs) * time.Millisecond
}

// ---- WRIST ----

type WristConfig struct {
	// RangeDegrees is the servo travel mapped onto [0, 1]; ZeroDegrees is the
	// wrist angle at position 0.
	RangeDegrees float64 `json:"range_degrees" yaml:"range_degrees"`
	ZeroDegrees  float64 `json:"zero_degrees" yaml:"zero_degrees"`

	PositionMoving      float64 `json:"position_moving" yaml:"position_moving"`
	PositionDeactivated float64 `json:"position_deactivated" yaml:"position_deactivated"`
	HoldPosition        float64 `json:"hold_position" yaml:"hold_position"`
	TurnPosition        float64 `json:"turn_position" yaml:"turn_position"`

	UseFallback   bool    `json:"use_fallback" yaml:"use_fallback"`
	FallbackAngle float64 `json:"fallback_angle" yaml:"fallback_angle"`

	RollerPower float64 `json:"roller_power" yaml:"roller_power"`
}

// ---- LOOP ----

type LoopConfig struct {
	Hz int `json:"hz" yaml:"hz"`
}

// Period is the tick interval.
func (l LoopConfig) Period() time.Duration {
	if l.Hz <= 0 {
		return pidf.DefaultPeriod
	}
	return time.Second / time.Duration(l.Hz)
}

// ---- TELEMETRY ----

type TelemetryConfig struct {
	Modbus ModbusConfig `json:"modbus" yaml:"modbus"`
}

// ModbusConfig mirrors numeric telemetry keys into holding registers. Each
// value takes two registers holding a big-endian float32.
type ModbusConfig struct {
	Endpoint  string            `json:"endpoint" yaml:"endpoint"`
	UnitID    uint8             `json:"unit_id" yaml:"unit_id"`
	TimeoutMs int               `json:"timeout_ms" yaml:"timeout_ms"`
	Registers map[string]uint16 `json:"registers,omitempty" yaml:"registers,omitempty"`
}

func (m ModbusConfig) Enabled() bool {
	return m.Endpoint != "" && len(m.Registers) > 0
}

func (m ModbusConfig) Timeout() time.Duration {
	if m.TimeoutMs <= 0 {
		return time.Second
	}
	return time.Duration(m.TimeoutMs) * time.Millisecond
}

// Default returns the tuned values of the competition build.
func Default() *Config {
	return &Config{
		Slide: SlideConfig{
			Gains:         pidf.Gains{KP: 6},
			TicksPerCm:    38.6,
			HeightMoving:  0,
			HeightScoring: 0.95,
			HeightHang:    0.6,
		},
		Arm: ArmConfig{
			Gains:             pidf.Gains{KP: 0.04, KI: 0.002},
			TicksPerDegree:    11.4,
			CalibrationAngle:  -60,
			RotationMoving:    60,
			RotationScoring:   75,
			RotationIntake:    -55,
			RotationHangSetup: 90,
			RotationHangGrab:  80,
			RotationHangPull:  20,
			InitialJumpAngle:  20,
			InitialJumpTimeMs: 40,
			RotationDelayMs:   500,
			SettleTimeMs:      600,
			SettleTolerance:   2,
		},
		Wrist: WristConfig{
			RangeDegrees:        300,
			ZeroDegrees:         0,
			PositionMoving:      0.55,
			PositionDeactivated: 0.2,
			HoldPosition:        0.55,
			TurnPosition:        0.5,
			FallbackAngle:       150,
			RollerPower:         0.5,
		},
		Kinematics: kinematics.DefaultLimits(),
		Loop:       LoopConfig{Hz: 50},
		Hardware: robot.Config{
			BaudRate:  robot.DefaultBaudRate,
			TimeoutMs: 100,
		},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	if c.Hardware.Devices != nil {
		out.Hardware.Devices = make(robot.Bindings, len(c.Hardware.Devices))
		for k, v := range c.Hardware.Devices {
			out.Hardware.Devices[k] = v
		}
	}
	if c.Telemetry.Modbus.Registers != nil {
		out.Telemetry.Modbus.Registers = make(map[string]uint16, len(c.Telemetry.Modbus.Registers))
		for k, v := range c.Telemetry.Modbus.Registers {
			out.Telemetry.Modbus.Registers[k] = v
		}
	}
	return &out
}

// Load reads path over the defaults. Files ending in .json are JSON,
// anything else is YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}

	cfg := Default()
	if isJSON(path) {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	if err := Validate(cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "write config")
}

// Exists returns true if path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}
