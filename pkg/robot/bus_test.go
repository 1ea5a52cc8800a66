package robot

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGroup struct {
	positions map[int]int
	err       error
	released  bool
}

func (f *fakeGroup) Positions(context.Context) (map[int]int, error) {
	return f.positions, f.err
}

func (f *fakeGroup) DisableAll(context.Context) error {
	f.released = true
	return nil
}

func TestBusPositionsByName(t *testing.T) {
	group := &fakeGroup{positions: map[int]int{1: 0, 2: 2048, 9: 100}}
	b := &Bus{
		cfg: Config{Devices: Bindings{
			"Slide Motor": {Kind: "motor", MotorCalibration: MotorCalibration{ID: 1}},
			"Arm Motor":   {Kind: "motor", MotorCalibration: MotorCalibration{ID: 2}},
		}},
		group: group,
	}

	got, err := b.Positions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Slide Motor": 0, "Arm Motor": 2048}, got, "unbound ids are dropped")

	require.NoError(t, b.Release(context.Background()))
	assert.True(t, group.released)

	group.err = errors.New("timeout")
	_, err = b.Positions(context.Background())
	assert.ErrorContains(t, err, "read positions")
}

func TestBusWithoutBindings(t *testing.T) {
	b := &Bus{}
	got, err := b.Positions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, b.Release(context.Background()))
}
