package intake

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gwillem/reacharm/pkg/config"
	"github.com/gwillem/reacharm/pkg/hardware"
)

type devices struct {
	left, right *hardware.SimCRServo
	wrist       *hardware.SimServo
}

func newIntake(t *testing.T, withDevices bool) (*Intake, devices) {
	t.Helper()
	reg := hardware.NewSimRegistry()
	d := devices{left: &hardware.SimCRServo{}, right: &hardware.SimCRServo{}, wrist: &hardware.SimServo{}}
	if withDevices {
		reg.Add(LeftServoName, hardware.KindCRServo, d.left)
		reg.Add(RightServoName, hardware.KindCRServo, d.right)
		reg.Add(WristServoName, hardware.KindServo, d.wrist)
	}
	in, err := New(context.Background(), reg, config.NewStore(nil), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	return in, d
}

func TestRollers(t *testing.T) {
	ctx := context.Background()
	in, d := newIntake(t, true)

	tests := []struct {
		name  string
		do    func(context.Context)
		left  float64
		right float64
	}{
		{"grab", in.Grab, 0.5, -0.5},
		{"eject", in.Eject, -0.5, 0.5},
		{"settle", in.Settle, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.do(ctx)
			assert.Equal(t, tt.left, d.left.Output())
			assert.Equal(t, tt.right, d.right.Output(), "right roller is mirrored")
		})
	}
}

func TestTurnToggles(t *testing.T) {
	ctx := context.Background()
	in, d := newIntake(t, true)

	in.Turn(ctx)
	assert.Equal(t, 0.5, in.WristPosition())
	in.Turn(ctx)
	assert.Equal(t, 0.0, in.WristPosition())

	pos, err := d.wrist.Position(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, pos)
}

func TestRotateWristIgnoredWhileInactive(t *testing.T) {
	ctx := context.Background()
	in, d := newIntake(t, true)

	in.RotateWristToDegrees(ctx, 150)
	assert.Equal(t, 0, d.wrist.Writes())

	in.SetWristActive(true)
	in.RotateWristToDegrees(ctx, 150)
	assert.InDelta(t, 0.5, in.WristPosition(), 1e-9) // 150 of 300 degrees

	in.RotateWristToDegrees(ctx, 400)
	assert.Equal(t, 1.0, in.WristPosition(), "clamped to servo travel")
}

func TestHoldAndSafety(t *testing.T) {
	ctx := context.Background()
	in, d := newIntake(t, true)

	in.Grab(ctx)
	in.EnsureSafety(ctx)
	assert.Equal(t, 0.0, d.left.Power())
	assert.Equal(t, 0.55, in.WristPosition())
}

func TestMissingDevices(t *testing.T) {
	ctx := context.Background()
	in, _ := newIntake(t, false)

	assert.False(t, in.Connected())
	in.Grab(ctx)
	in.Turn(ctx)
	in.SetWristActive(true)
	in.RotateWristToDegrees(ctx, 120)
	assert.Equal(t, 0.0, in.WristPosition())
}

func TestPartialDevicesCountAsConnected(t *testing.T) {
	reg := hardware.NewSimRegistry()
	reg.Add(WristServoName, hardware.KindServo, &hardware.SimServo{})
	in, err := New(context.Background(), reg, config.NewStore(nil), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.True(t, in.Connected())
}
