package artifacts

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kallisto-labs/tanksim/internal/experiment"
)

// WriteSamplesCSV writes the time series to samples.csv inside the run
// directory. Per-controller columns are repeated for each configured
// controller, indexed from 0, in declaration order.
func (r *RunDir) WriteSamplesCSV(samples []experiment.Sample) error {
	f, err := os.Create(filepath.Join(r.Dir, "samples.csv"))
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close() // Error on close is non-fatal for CSV writing - file is already written
	}()

	w := csv.NewWriter(f)
	defer w.Flush()

	nControllers := 0
	if len(samples) > 0 {
		nControllers = len(samples[0].Controllers)
	}

	header := []string{"t", "dt", "level", "inlet_flow", "outlet_flow", "valve_position"}
	for i := 0; i < nControllers; i++ {
		header = append(header,
			fmt.Sprintf("c%d_setpoint", i), fmt.Sprintf("c%d_output", i),
			fmt.Sprintf("c%d_p", i), fmt.Sprintf("c%d_i", i), fmt.Sprintf("c%d_d", i),
			fmt.Sprintf("c%d_out_raw", i), fmt.Sprintf("c%d_saturated", i), fmt.Sprintf("c%d_integrated", i),
		)
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, s := range samples {
		rec := []string{
			fmt.Sprintf("%.6f", s.T),
			fmt.Sprintf("%.6f", s.DT),
			fmt.Sprintf("%.6f", s.Level),
			fmt.Sprintf("%.6f", s.InletFlow),
			fmt.Sprintf("%.6f", s.OutletFlow),
			fmt.Sprintf("%.6f", s.ValvePosition),
		}
		for _, c := range s.Controllers {
			rec = append(rec,
				fmt.Sprintf("%.6f", c.Setpoint), fmt.Sprintf("%.6f", c.Output),
				fmt.Sprintf("%.6f", c.P), fmt.Sprintf("%.6f", c.I), fmt.Sprintf("%.6f", c.D),
				fmt.Sprintf("%.6f", c.OutRaw), fmt.Sprintf("%t", c.Saturated), fmt.Sprintf("%t", c.Integrated),
			)
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}

	return w.Error()
}
