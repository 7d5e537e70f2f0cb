// Package timing implements the stopwatch/telemetry collaborator spec.md
// §1 lists as an external collaborator ("stopwatches/telemetry") and
// SPEC_FULL.md §4.H names concretely. It is a direct adaptation of the
// teacher's circuit.Timing/circuit.Sample (circuit/timing.go), renamed
// for this module's domain and rendered with the real
// github.com/markkurossi/tabulate library instead of the teacher's
// locally inlined reimplementation (circuit/tabulate.go).
package timing

import (
	"fmt"
	"io"
	"time"

	"github.com/markkurossi/tabulate"
)

// Timing accumulates a sequence of Samples measured against a common
// start time, one per protocol phase (PARMS, OPRF, item insertion,
// BinBundle encoding, query evaluation, result decoding).
type Timing struct {
	Start   time.Time
	Samples []*Sample
}

// New starts a Timing clock running from now.
func New() *Timing {
	return &Timing{Start: time.Now()}
}

// Sample records one phase, spanning from the previous sample's end (or
// Timing's Start, for the first sample) to now. cols carries any
// additional report columns, such as byte counts transferred during
// that phase.
func (t *Timing) Sample(label string, cols ...string) *Sample {
	start := t.Start
	if len(t.Samples) > 0 {
		start = t.Samples[len(t.Samples)-1].End
	}
	sample := &Sample{
		Label: label,
		Start: start,
		End:   time.Now(),
		Cols:  cols,
	}
	t.Samples = append(t.Samples, sample)
	return sample
}

// Report renders the accumulated samples as a table to w.
func (t *Timing) Report(w io.Writer) {
	if len(t.Samples) == 0 {
		return
	}

	tab := tabulate.NewTabulateUnicode()
	tab.Header(tabulate.AlignLeft, "Op")
	tab.Header(tabulate.AlignRight, "Time")
	tab.Header(tabulate.AlignRight, "%")
	tab.Header(tabulate.AlignRight, "Xfer")

	total := t.Samples[len(t.Samples)-1].End.Sub(t.Start)
	for _, sample := range t.Samples {
		row := tab.Row()
		row.Column(sample.Label)

		duration := sample.End.Sub(sample.Start)
		row.Column(duration.String())
		row.Column(fmt.Sprintf("%.2f%%", float64(duration)/float64(total)*100))

		for _, col := range sample.Cols {
			row.Column(col)
		}

		for _, sub := range sample.Samples {
			subRow := tab.Row()
			subRow.ColumnAttrs(tabulate.AlignLeft, sub.Label, tabulate.FmtItalic)

			d := sub.End.Sub(sub.Start)
			subRow.ColumnAttrs(tabulate.AlignRight, d.String(), tabulate.FmtItalic)
			subRow.ColumnAttrs(tabulate.AlignRight,
				fmt.Sprintf("%.2f%%", float64(d)/float64(duration)*100),
				tabulate.FmtItalic)
		}
	}

	row := tab.Row()
	row.ColumnAttrs(tabulate.AlignLeft, "Total", tabulate.FmtBold)
	row.ColumnAttrs(tabulate.AlignRight,
		t.Samples[len(t.Samples)-1].End.Sub(t.Start).String(), tabulate.FmtBold)

	tab.Print(w)
}

// Sample is one measured phase, optionally broken down into SubSamples
// (e.g. per-bundle timings within a single query-evaluation phase).
type Sample struct {
	Label   string
	Start   time.Time
	End     time.Time
	Cols    []string
	Samples []*Sample
}

// SubSample records a nested measurement within this sample, spanning
// from the previous sub-sample's end (or this sample's Start) to end.
func (s *Sample) SubSample(label string, end time.Time) {
	start := s.Start
	if len(s.Samples) > 0 {
		start = s.Samples[len(s.Samples)-1].End
	}
	s.Samples = append(s.Samples, &Sample{
		Label: label,
		Start: start,
		End:   end,
	})
}
