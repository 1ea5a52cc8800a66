// Package reacharm coordinates a slide, arm and wrist appendage that reaches
// to a horizontal distance along the floor.
//
// # Installation
//
//	go install github.com/gwillem/reacharm/cmd/reacharm@latest
//
// # Usage
//
// Bind the servo bus and record ranges:
//
//	reacharm setup
//
// Drive the appendage from the keyboard, or a simulated one:
//
//	reacharm run
//	reacharm run --sim
//
// Inspect the reach solver and tune a loop:
//
//	reacharm solve --steps 20
//	reacharm tune --device slide --target 50 --sim
//
// # Packages
//
//   - cmd/reacharm: CLI with setup, run, solve and tune commands
//   - pkg/hardware: device kinds, optional device handles and a simulator
//   - pkg/robot: feetech servo bus registry and calibration
//   - pkg/kinematics: reach solver
//   - pkg/pidf: PIDF controller
//   - pkg/config: YAML/JSON configuration with live reload
//   - pkg/telemetry: telemetry sinks, including Modbus registers
//   - pkg/slide, pkg/arm, pkg/intake: subsystem control
//   - pkg/control: coordinator and presets
//   - pkg/teleop: gamepad mapping and the control loop
package reacharm
