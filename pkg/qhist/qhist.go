// Package qhist accumulates quality values a scanline at a time, and
// reports them as a text histogram plus summary stats.
package qhist

import(
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/codahale/hdrhistogram"
)

const(
	NumBuckets  = 66 // underflow, 64 interior buckets, overflow
	NumInterior = NumBuckets - 2
	MaxStars    = 60

	// Resolution of the quantile sketch, across [ScaleMin,ScaleMax]
	quantileSteps = 10000
)

type Histogram struct {
	ScaleMin   float64
	ScaleMax   float64

	Counts   []int     // Sized to NumBuckets on first accumulation
	Count      int
	Min        float64
	Max        float64
	Mean       float64

	sketch    *hdrhistogram.Histogram
}

// New returns a histogram over [0,1], the usual range for qualities.
func New() *Histogram {
	return NewWithScale(0.0, 1.0)
}

func NewWithScale(scaleMin, scaleMax float64) *Histogram {
	return &Histogram{ScaleMin:scaleMin, ScaleMax:scaleMax}
}

// Bucket returns the slot that v falls into.
func (h *Histogram)Bucket(v float64) int {
	switch {
	case v < h.ScaleMin: return 0
	case v > h.ScaleMax: return NumBuckets - 1
	}
	b := int(math.Floor(NumInterior * (v - h.ScaleMin) / (h.ScaleMax - h.ScaleMin)))
	if b < 0 { b = 0 }
	if b > NumInterior-1 { b = NumInterior-1 }
	return b + 1
}

// Accumulate folds in a batch of values. Splitting the same values
// across several calls gives the same counts, min and max.
func (h *Histogram)Accumulate(values []float32) {
	if len(values) == 0 {
		return
	}

	if h.Count == 0 {
		h.Min = float64(values[0])
		h.Max = float64(values[0])
		h.Counts = make([]int, NumBuckets)
		h.sketch = hdrhistogram.New(1, quantileSteps+1, 3)
	}

	sum := 0.0
	for _, v32 := range values {
		v := float64(v32)
		if v < h.Min { h.Min = v }
		if v > h.Max { h.Max = v }
		sum += v
		h.Counts[h.Bucket(v)]++
		h.sketch.RecordValue(h.toStep(v))
	}

	h.Mean = (h.Mean * float64(h.Count) + sum) / float64(h.Count + len(values))
	h.Count += len(values)
}

func (h *Histogram)toStep(v float64) int64 {
	f := (v - h.ScaleMin) / (h.ScaleMax - h.ScaleMin)
	if f < 0 { f = 0 }
	if f > 1 { f = 1 }
	return int64(math.Round(f * quantileSteps)) + 1 // sketch is 1-based
}

// Quantile returns an estimate of the value at percentile q (0-100),
// with values outside the scale clamped to its ends.
func (h *Histogram)Quantile(q float64) float64 {
	if h.Count == 0 {
		return math.NaN()
	}
	step := h.sketch.ValueAtQuantile(q) - 1
	return h.ScaleMin + (h.ScaleMax - h.ScaleMin) * float64(step) / quantileSteps
}

func (h *Histogram)label(i int) string {
	switch i {
	case 0:              return "underflow"
	case 1:              return fmt.Sprintf("%.2f", h.ScaleMin)
	case NumBuckets - 2: return fmt.Sprintf("%.2f", h.ScaleMax)
	case NumBuckets - 1: return "overflow"
	}
	return ""
}

// Report writes out a star chart. The chart is scaled to the largest
// interior bucket, so big underflow/overflow counts don't squash it.
func (h *Histogram)Report(w io.Writer, id string) {
	if h.Count == 0 {
		fmt.Fprintf(w, "%s histogram is empty.\n", id)
		return
	}

	maxWithin := 1
	for i:=1; i<NumBuckets-1; i++ {
		if h.Counts[i] > maxWithin {
			maxWithin = h.Counts[i]
		}
	}

	fmt.Fprintf(w, "\n\n%s Histogram and Stats\n", id)
	for i:=0; i<NumBuckets; i++ {
		stars := int(math.Ceil(float64(h.Counts[i]) * MaxStars / float64(maxWithin)))
		if stars > MaxStars {
			stars = MaxStars
		}
		line := fmt.Sprintf("%9s |", h.label(i)) + strings.Repeat("*", stars)
		if h.Counts[i] > maxWithin {
			line += "+"
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "Count=%d, Min=%.2f, Max=%.2f, Mean=%.2f\n", h.Count, h.Min, h.Max, h.Mean)
	fmt.Fprintf(w, "P10=%.2f, P50=%.2f, P90=%.2f\n", h.Quantile(10), h.Quantile(50), h.Quantile(90))
	fmt.Fprintf(w, "\n")
}

func (h *Histogram)String() string {
	var sb strings.Builder
	h.Report(&sb, "")
	return sb.String()
}
