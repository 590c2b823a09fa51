package tracker

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	ts "rlworks.org/dqn/timestep"
)

// ReturnPlot tracks the episodic return in an experiment and saves a
// line plot of return against episode number as a PNG image.
type ReturnPlot struct {
	returns  Return
	filename string
}

// NewReturnPlot returns a new ReturnPlot Tracker which will save its
// plot at the specified location filename
func NewReturnPlot(filename string) Tracker {
	return &ReturnPlot{filename: filename}
}

// Track accumulates the episodic return of each finished episode
func (r *ReturnPlot) Track(step ts.TimeStep) {
	r.returns.Track(step)
}

// Save renders the episodic returns as a line plot and saves it to
// disk
func (r *ReturnPlot) Save() error {
	returns := r.returns.Returns()

	p := plot.New()
	p.Title.Text = "Episodic Return"
	p.X.Label.Text = "Episode"
	p.Y.Label.Text = "Return"

	points := make(plotter.XYs, len(returns))
	for i, ret := range returns {
		points[i] = plotter.XY{X: float64(i), Y: ret}
	}

	line, err := plotter.NewLine(points)
	if err != nil {
		return fmt.Errorf("save: could not create line plot: %v", err)
	}
	line.Color = plotutil.Color(0)
	p.Add(line)

	if err := p.Save(8*vg.Inch, 4*vg.Inch, r.filename); err != nil {
		return fmt.Errorf("save: could not save plot: %v", err)
	}
	return nil
}
