package robot

import "math"

// MotorCalibration holds calibration data for a single servo.
type MotorCalibration struct {
	ID int `json:"id" yaml:"id"`
	// DriveMode 1 inverts the servo so that 0 maps to RangeMax.
	DriveMode    int `json:"drive_mode" yaml:"drive_mode"`
	HomingOffset int `json:"homing_offset" yaml:"homing_offset"`
	RangeMin     int `json:"range_min" yaml:"range_min"`
	RangeMax     int `json:"range_max" yaml:"range_max"`

	recorded bool
}

// Calibrated reports whether a usable range was recorded.
func (c MotorCalibration) Calibrated() bool {
	return c.RangeMax > c.RangeMin
}

// Normalize converts a raw servo position to a value in [0, 1].
func (c MotorCalibration) Normalize(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize <= 0 {
		return 0
	}
	norm := float64(raw-c.RangeMin) / rangeSize
	if c.DriveMode == 1 {
		norm = 1 - norm
	}
	return math.Min(math.Max(norm, 0), 1)
}

// Denormalize converts a value in [0, 1] to a raw servo position.
func (c MotorCalibration) Denormalize(norm float64) int {
	norm = math.Min(math.Max(norm, 0), 1)
	if c.DriveMode == 1 {
		norm = 1 - norm
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(norm*rangeSize)) + c.RangeMin
}

// Limit clamps a raw position to the calibrated range. Uncalibrated servos
// are passed through.
func (c MotorCalibration) Limit(raw int) int {
	if !c.Calibrated() {
		return raw
	}
	return min(max(raw, c.RangeMin), c.RangeMax)
}

// Record widens the range to include raw. The first sample recorded on a
// value starts a fresh range.
func (c *MotorCalibration) Record(raw int) {
	if !c.recorded {
		c.RangeMin, c.RangeMax = raw, raw
		c.recorded = true
		return
	}
	c.RangeMin = min(c.RangeMin, raw)
	c.RangeMax = max(c.RangeMax, raw)
}
