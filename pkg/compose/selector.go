package compose

import(
	"fmt"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/planetlabs/plcompositor/pkg/cmath"
	"github.com/planetlabs/plcompositor/pkg/qhist"
	"github.com/planetlabs/plcompositor/pkg/raster"
)

// A Selector builds the output line from the input lines, once all the
// quality methods have run. For each pixel it fills in the bands, alpha,
// source index and final quality of out. Inputs with a negative quality
// are never used.
type Selector interface {
	Name() string
	Select(lines []*raster.Line, out *raster.Line)
}

type candidate struct {
	input    int     // 0-based
	quality  float32
}

// candidates gathers the inputs at pixel x with quality >= min. Pass a
// non-negative min; rejects are always excluded.
func candidates(dst []candidate, lines []*raster.Line, x int, min float32) []candidate {
	dst = dst[:0]
	for i, l := range lines {
		if q := l.Quality[x]; q >= 0 && q >= min {
			dst = append(dst, candidate{i, q})
		}
	}
	return dst
}

// sortAscending orders by quality, worst first. Among equal qualities
// the lower ordinal sorts later, so it is preferred by a rank of 1.0.
func sortAscending(c []candidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].quality != c[j].quality {
			return c[i].quality < c[j].quality
		}
		return c[i].input > c[j].input
	})
}

func take(out *raster.Line, x int, lines []*raster.Line, c candidate) {
	out.CopyPixel(x, lines[c.input])
	out.Source[x] = uint16(c.input + 1)
	out.Quality[x] = c.quality
}

// GreedyBest takes the highest quality input; the lowest ordinal wins ties.
type GreedyBest struct{}

func (s GreedyBest)Name() string { return "best" }

func (s GreedyBest)Select(lines []*raster.Line, out *raster.Line) {
	for x:=0; x<out.Width; x++ {
		best := candidate{-1, 0}
		for i, l := range lines {
			q := l.Quality[x]
			if q < 0 {
				continue
			}
			if best.input < 0 || q > best.quality {
				best = candidate{i, q}
			}
		}

		if best.input < 0 {
			out.SetTransparent(x)
		} else {
			take(out, x, lines, best)
		}
	}
}

// ThresholdPercentile drops inputs below Threshold, and takes the one
// at rank Ratio among the rest (1.0 is the best, 0.0 the worst).
type ThresholdPercentile struct {
	Threshold   float64
	Ratio       float64

	Active     *qhist.Histogram   // Distribution of surviving candidate counts
	scratch   []candidate
}

func (s *ThresholdPercentile)Name() string { return fmt.Sprintf("percentile(%.2f)", s.Ratio) }

func (s *ThresholdPercentile)Select(lines []*raster.Line, out *raster.Line) {
	if s.Active == nil {
		s.Active = qhist.NewWithScale(0, float64(len(lines)))
	}
	s.scratch = selectRanked(lines, out, float32(s.Threshold), s.scratch, s.Active,
		func(n int) int { return cmath.RankIndex(n, s.Ratio) })
}

func (s *ThresholdPercentile)Report(w io.Writer) {
	if s.Active != nil {
		s.Active.Report(w, "Active Candidates")
	}
}

// MedianOfSurvivors drops inputs below Threshold, and takes the true
// middle of the rest: index n/2 of the ascending list.
type MedianOfSurvivors struct {
	Threshold   float64

	Active     *qhist.Histogram
	scratch   []candidate
}

func (s *MedianOfSurvivors)Name() string { return "median" }

func (s *MedianOfSurvivors)Select(lines []*raster.Line, out *raster.Line) {
	if s.Active == nil {
		s.Active = qhist.NewWithScale(0, float64(len(lines)))
	}
	s.scratch = selectRanked(lines, out, float32(s.Threshold), s.scratch, s.Active,
		func(n int) int { return n / 2 })
}

func (s *MedianOfSurvivors)Report(w io.Writer) {
	if s.Active != nil {
		s.Active.Report(w, "Active Candidates")
	}
}

func selectRanked(lines []*raster.Line, out *raster.Line, threshold float32, scratch []candidate, active *qhist.Histogram, rank func(int) int) []candidate {
	if threshold < 0 {
		threshold = 0
	}
	counts := make([]float32, 0, out.Width)
	for x:=0; x<out.Width; x++ {
		scratch = candidates(scratch, lines, x, threshold)
		if len(scratch) == 0 {
			out.SetTransparent(x)
			continue
		}
		sortAscending(scratch)
		take(out, x, lines, scratch[rank(len(scratch))])
		counts = append(counts, float32(len(scratch)))
	}
	if len(counts) > 0 {
		active.Accumulate(counts)
	}
	return scratch
}

// AverageTopN blends the best ceil(n*Ratio) inputs with positive
// quality, averaging each band. The source index and quality recorded
// are those of the best input used.
type AverageTopN struct {
	Ratio      float64

	scratch  []candidate
	values   []float64
}

func (s *AverageTopN)Name() string { return fmt.Sprintf("average(%.2f)", s.Ratio) }

func (s *AverageTopN)Select(lines []*raster.Line, out *raster.Line) {
	for x:=0; x<out.Width; x++ {
		s.scratch = s.scratch[:0]
		for i, l := range lines {
			if q := l.Quality[x]; q > 0 {
				s.scratch = append(s.scratch, candidate{i, q})
			}
		}
		if len(s.scratch) == 0 {
			out.SetTransparent(x)
			continue
		}

		sort.Slice(s.scratch, func(i, j int) bool {
			if s.scratch[i].quality != s.scratch[j].quality {
				return s.scratch[i].quality > s.scratch[j].quality
			}
			return s.scratch[i].input < s.scratch[j].input
		})

		n := int(math.Ceil(float64(len(s.scratch)) * s.Ratio))
		if n < 1 {
			n = 1
		}
		if n > len(s.scratch) {
			n = len(s.scratch)
		}
		used := s.scratch[:n]

		for b := range out.Bands {
			s.values = s.values[:0]
			for _, c := range used {
				if b < len(lines[c.input].Bands) {
					s.values = append(s.values, float64(lines[c.input].Bands[b][x]))
				} else {
					s.values = append(s.values, 0)
				}
			}
			out.Bands[b][x] = float32(stat.Mean(s.values, nil))
		}
		out.Alpha[x] = raster.Opaque
		out.Source[x] = uint16(used[0].input + 1)
		out.Quality[x] = used[0].quality
	}
}
