package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"

	"github.com/gwillem/reacharm/pkg/kinematics"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SolveCommand struct {
	Steps int `long:"steps" default:"10" description:"Number of intervals between 0 and full reach"`
}

type solveRow struct {
	sol kinematics.Solution
	err error
}

func (r solveRow) status() string {
	switch {
	case r.err != nil:
		return "rejected"
	case r.sol.Clamped():
		return "clamped"
	default:
		return "ok"
	}
}

func (r solveRow) cells() []string {
	s := r.sol
	if r.err != nil {
		var illegal *kinematics.IllegalTargetError
		reason := r.err.Error()
		if errors.As(r.err, &illegal) {
			reason = illegal.Reason
		}
		return []string{
			fmt.Sprintf("%.0f%%", s.Percent*100),
			fmt.Sprintf("%.1f", s.Distance),
			"-", "-", "-", "-",
			r.status() + ": " + reason,
		}
	}
	return []string{
		fmt.Sprintf("%.0f%%", s.Percent*100),
		fmt.Sprintf("%.1f", s.EffectiveDistance),
		fmt.Sprintf("%.1f%%", s.SlideTarget*100),
		fmt.Sprintf("%.1f°", s.ArmAngle),
		fmt.Sprintf("%.1f°", s.WristAngle),
		fmt.Sprintf("(%.1f, %.1f)", s.EndEffector.X, s.EndEffector.Z),
		r.status(),
	}
}

// solveRange evaluates the solver at steps+1 evenly spaced reach fractions.
func solveRange(l kinematics.Limits, steps int) []solveRow {
	steps = max(steps, 1)
	rows := make([]solveRow, 0, steps+1)
	for i := 0; i <= steps; i++ {
		sol, err := kinematics.Solve(l, float64(i)/float64(steps))
		rows = append(rows, solveRow{sol: sol, err: err})
	}
	return rows
}

func renderSolveTable(rows []solveRow) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, r.cells())
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Reach", "Distance cm", "Slide", "Arm", "Wrist", "Tip (x, z) cm", "Status").
		Rows(cells...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col != 6 || row < 0 || row >= len(rows) {
				return cellStyle
			}
			switch rows[row].status() {
			case "rejected":
				return cellStyle.Foreground(lipgloss.Color("9"))
			case "clamped":
				return cellStyle.Foreground(lipgloss.Color("11"))
			default:
				return cellStyle.Foreground(lipgloss.Color("10"))
			}
		})
	return t.Render()
}

func (c *SolveCommand) Execute(args []string) error {
	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}
	l := cfg.Kinematics

	fmt.Println(headerStyle.Render("Reach solver"))
	fmt.Println(dimStyle.Render(fmt.Sprintf(
		"pivot height %.1f cm, slide %.1f + %.1f cm, legal %.1f cm, minimum %.1f cm, lowest arm angle %.1f°",
		l.ArmBaseHeight, l.SlideBaseLength, l.MaxExtensionDistance,
		l.LegalDistanceLimit, l.MinimumDistanceLimit, l.MinAngle())))
	fmt.Println()
	fmt.Println(renderSolveTable(solveRange(l, c.Steps)))
	return nil
}
