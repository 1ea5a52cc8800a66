package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/reacharm/pkg/kinematics"
)

func TestSolveRange(t *testing.T) {
	rows := solveRange(kinematics.DefaultLimits(), 10)
	require.Len(t, rows, 11)

	assert.Equal(t, "clamped", rows[0].status())
	assert.Equal(t, "rejected", rows[10].status())

	var ok int
	for _, r := range rows {
		if r.status() == "ok" {
			ok++
		}
		assert.Len(t, r.cells(), 7)
	}
	assert.Positive(t, ok)
}

func TestSolveRangeAtLeastOneStep(t *testing.T) {
	rows := solveRange(kinematics.DefaultLimits(), 0)
	assert.Len(t, rows, 2)
}

func TestRenderSolveTable(t *testing.T) {
	out := renderSolveTable(solveRange(kinematics.DefaultLimits(), 4))
	assert.Contains(t, out, "Reach")
	assert.Contains(t, out, "rejected")
}
