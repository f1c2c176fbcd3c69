package quality

import(
	"log"
	"sort"

	"github.com/planetlabs/plcompositor/pkg/cmath"
	"github.com/planetlabs/plcompositor/pkg/raster"
)

// Percentile re-scores each input by how close its quality is to the
// quality at a chosen rank among all inputs for that pixel. A ratio of
// 1.0 favours the best, 0.5 the median, 0.0 the worst. Run it after
// the methods whose combined quality it should rank.
type Percentile struct {
	Ratio    float64
	target []float32
}

// NewPercentile reads quality_percentile (0-100, default 50); the
// older median_ratio (0-1) wins if present.
func NewPercentile(ctx Context, params Params) (Method, error) {
	pct, err := params.Float("quality_percentile", 50)
	if err != nil {
		return nil, err
	}
	m := &Percentile{Ratio: pct / 100.0}

	if _, exists := params["median_ratio"]; exists {
		if m.Ratio, err = params.Float("median_ratio", 0.5); err != nil {
			return nil, err
		}
	}
	if m.Ratio < 0 || m.Ratio > 1 {
		return nil, SetupErrorf("percentile: ratio %.3f outside 0.0 to 1.0", m.Ratio)
	}

	if ctx.Verbose() > 0 {
		log.Printf("Percentile quality in effect, ratio=%.3f\n", m.Ratio)
	}
	return m, nil
}

func (m *Percentile)Name() string { return "percentile" }

// ComputeStackQuality finds the per-pixel target quality across the
// stack, then scores each input against it.
func (m *Percentile)ComputeStackQuality(lines []*raster.Line) error {
	if len(lines) == 0 {
		return nil
	}
	width := lines[0].Width
	if len(m.target) != width {
		m.target = make([]float32, width)
	}

	candidates := make([]float32, 0, len(lines))
	for x:=0; x<width; x++ {
		candidates = candidates[:0]
		for _, l := range lines {
			if l.Quality[x] > 0 {
				candidates = append(candidates, l.Quality[x])
			}
		}

		if len(candidates) == 0 {
			m.target[x] = raster.Reject
			continue
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i] < candidates[j] })
		m.target[x] = candidates[cmath.RankIndex(len(candidates), m.Ratio)]
	}

	for _, l := range lines {
		m.score(l)
	}
	return nil
}

// ComputeQuality scores one input against the targets from the last
// stack pass.
func (m *Percentile)ComputeQuality(in Input, line *raster.Line) error {
	if len(m.target) != line.Width {
		return SetupErrorf("percentile: no stack targets computed for this line")
	}
	m.score(line)
	return nil
}

func (m *Percentile)score(line *raster.Line) {
	for x:=0; x<line.Width; x++ {
		own := line.Quality[x]
		if own <= 0 {
			line.NewQuality[x] = raster.Reject
			continue
		}
		diff := own - m.target[x]
		if diff < 0 {
			diff = -diff
		}
		line.NewQuality[x] = 1.0 - diff
	}
}

// MergeQuality overwrites, as the new quality already folds in the old.
func (m *Percentile)MergeQuality(in Input, line *raster.Line) {
	OverwriteMerge(line)
}
