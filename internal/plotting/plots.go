package plotting

import (
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/kallisto-labs/tanksim/internal/experiment"
)

// WriteLevelPlot renders tank level against setpoint over the run.
func WriteLevelPlot(runDir string, samples []experiment.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "Level Response"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Level (m)"
	p.Legend.Top = true

	actualPoints := make(plotter.XYs, len(samples))
	for i, s := range samples {
		actualPoints[i].X = s.T
		actualPoints[i].Y = s.Level
	}
	actualLine, err := plotter.NewLine(actualPoints)
	if err != nil {
		return err
	}
	actualLine.Color = plotutil.Color(0)
	actualLine.Width = vg.Points(1.5)
	p.Add(actualLine)
	p.Legend.Add("Level", actualLine)

	targetPoints := make(plotter.XYs, len(samples))
	for i, s := range samples {
		targetPoints[i].X = s.T
		targetPoints[i].Y = s.Target
	}
	targetLine, err := plotter.NewLine(targetPoints)
	if err != nil {
		return err
	}
	targetLine.Color = plotutil.Color(1)
	targetLine.Width = vg.Points(1.5)
	targetLine.Dashes = []vg.Length{vg.Points(5), vg.Points(5)}
	p.Add(targetLine)
	p.Legend.Add("Setpoint", targetLine)

	return p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(runDir, "level.png"))
}

// WriteValvePlot renders the valve's commanded position over the run.
func WriteValvePlot(runDir string, samples []experiment.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	p := plot.New()
	p.Title.Text = "Valve Position"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "Position (fraction open)"
	p.Legend.Top = true

	controlPoints := make(plotter.XYs, len(samples))
	for i, s := range samples {
		controlPoints[i].X = s.T
		controlPoints[i].Y = s.ValvePosition
	}
	controlLine, err := plotter.NewLine(controlPoints)
	if err != nil {
		return err
	}
	controlLine.Color = plotutil.Color(2)
	controlLine.Width = vg.Points(1.5)
	p.Add(controlLine)
	p.Legend.Add("Valve position", controlLine)

	return p.Save(8*vg.Inch, 4*vg.Inch, filepath.Join(runDir, "valve.png"))
}
