package pidf

import (
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestProportionalSaturates(t *testing.T) {
	c := New(Gains{KP: 1})
	c.SetSetpoint(10)
	assert.Equal(t, 1.0, c.Next(4, DefaultPeriod))
}

func TestOutputAlwaysClamped(t *testing.T) {
	tests := []struct {
		name     string
		gains    Gains
		setpoint float64
		measured float64
	}{
		{"large positive", Gains{KP: 5}, 100, 0},
		{"large negative", Gains{KP: 5}, -100, 0},
		{"feedforward only", Gains{KF: 3}, 0, 0},
		{"derivative spike", Gains{KD: 10}, 1, 0},
		{"small", Gains{KP: 0.01}, 1, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.gains)
			c.SetSetpoint(tt.setpoint)
			for range 10 {
				out := c.Next(tt.measured, 10*time.Millisecond)
				assert.LessOrEqual(t, out, 1.0)
				assert.GreaterOrEqual(t, out, -1.0)
			}
		})
	}
}

func TestIntegralAndDerivative(t *testing.T) {
	c := New(Gains{KI: 1})
	c.SetSetpoint(1)

	// error 1 for 0.5s, twice
	assert.InDelta(t, 0.5, c.Next(0, 500*time.Millisecond), 1e-9)
	assert.InDelta(t, 1.0, c.Next(0, 500*time.Millisecond), 1e-9)

	d := New(Gains{KD: 0.1})
	d.SetSetpoint(1)
	assert.InDelta(t, 1.0, d.Next(0, 100*time.Millisecond), 1e-9) // (1-0)/0.1*0.1
	assert.InDelta(t, 0.0, d.Next(0, 100*time.Millisecond), 1e-9)
}

func TestSetCoefficientsKeepsIntegral(t *testing.T) {
	c := New(Gains{KI: 0.1})
	c.SetSetpoint(2)
	c.Next(0, time.Second) // integral = 2

	c.SetCoefficients(Gains{KI: 0.2})
	// integral = 2 + 2*1 = 4, out = 0.8
	assert.InDelta(t, 0.8, c.Next(0, time.Second), 1e-9)
	assert.Equal(t, Gains{KI: 0.2}, c.Coefficients())
}

func TestComputeMeasuresDt(t *testing.T) {
	clk := clock.NewMock()
	c := New(Gains{KI: 1}, WithClock(clk), WithPeriod(100*time.Millisecond))
	c.SetSetpoint(1)

	// first call uses the nominal period
	assert.InDelta(t, 0.1, c.Compute(0), 1e-9)

	clk.Add(300 * time.Millisecond)
	assert.InDelta(t, 0.4, c.Compute(0), 1e-9)

	c.Reset()
	assert.InDelta(t, 0.1, c.Compute(0), 1e-9)
}

func TestZeroDtFallsBackToPeriod(t *testing.T) {
	c := New(Gains{KD: 1}, WithPeriod(time.Second))
	c.SetSetpoint(0.5)
	out := c.Next(0, 0)
	assert.False(t, math.IsInf(out, 0))
	assert.InDelta(t, 0.5, out, 1e-9)
}
