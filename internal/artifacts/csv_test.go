package artifacts

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/kallisto-labs/tanksim/internal/experiment"
)

func sampleFixture() []experiment.Sample {
	return []experiment.Sample{
		{
			T: 0.0, DT: 0.1,
			Level: 2.0, InletFlow: 1.2, OutletFlow: 1.0, ValvePosition: 0.5,
			Target: 2.5, Actual: 2.0, Error: 0.5, U: 0.5,
			P: -1.0, I: 0, D: 0, OutRaw: 0.6, Saturated: false, Integrated: true,
			Controllers: []experiment.ControllerSample{
				{Setpoint: 2.5, Output: 0.5, P: -1.0, I: 0, D: 0, OutRaw: 0.6, Saturated: false, Integrated: true},
			},
		},
		{
			T: 0.1, DT: 0.1,
			Level: 2.05, InletFlow: 1.2, OutletFlow: 1.02, ValvePosition: 0.6,
			Target: 2.5, Actual: 2.05, Error: 0.45, U: 0.6,
			P: -0.9, I: 0.1, D: 0, OutRaw: 0.7, Saturated: false, Integrated: true,
			Controllers: []experiment.ControllerSample{
				{Setpoint: 2.5, Output: 0.6, P: -0.9, I: 0.1, D: 0, OutRaw: 0.7, Saturated: false, Integrated: true},
			},
		},
	}
}

func TestWriteSamplesCSV(t *testing.T) {
	dir := t.TempDir()
	runDir := RunDir{Dir: dir}
	samples := sampleFixture()

	if err := runDir.WriteSamplesCSV(samples); err != nil {
		t.Fatalf("WriteSamplesCSV() error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "samples.csv"))
	if err != nil {
		t.Fatalf("failed to open CSV: %v", err)
	}
	defer func() { _ = f.Close() }()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read CSV: %v", err)
	}
	if len(records) != len(samples)+1 {
		t.Fatalf("got %d records, want %d (header + %d rows)", len(records), len(samples)+1, len(samples))
	}

	header := records[0]
	wantBase := []string{"t", "dt", "level", "inlet_flow", "outlet_flow", "valve_position"}
	for i, field := range wantBase {
		if header[i] != field {
			t.Errorf("header[%d] = %q, want %q", i, header[i], field)
		}
	}
	wantControllerCols := []string{"c0_setpoint", "c0_output", "c0_p", "c0_i", "c0_d", "c0_out_raw", "c0_saturated", "c0_integrated"}
	for i, field := range wantControllerCols {
		idx := len(wantBase) + i
		if header[idx] != field {
			t.Errorf("header[%d] = %q, want %q", idx, header[idx], field)
		}
	}

	row := records[1]
	level, err := strconv.ParseFloat(row[2], 64)
	if err != nil || level != samples[0].Level {
		t.Errorf("level = %v (err=%v), want %v", level, err, samples[0].Level)
	}
	setpoint, err := strconv.ParseFloat(row[len(wantBase)], 64)
	if err != nil || setpoint != samples[0].Controllers[0].Setpoint {
		t.Errorf("c0_setpoint = %v (err=%v), want %v", setpoint, err, samples[0].Controllers[0].Setpoint)
	}
}

func TestWriteSamplesCSVEmpty(t *testing.T) {
	dir := t.TempDir()
	runDir := RunDir{Dir: dir}

	if err := runDir.WriteSamplesCSV(nil); err != nil {
		t.Fatalf("WriteSamplesCSV(nil) error = %v", err)
	}
	f, err := os.Open(filepath.Join(dir, "samples.csv"))
	if err != nil {
		t.Fatalf("failed to open CSV: %v", err)
	}
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read CSV: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records for empty input, want 1 (header only)", len(records))
	}
}
