package compose

import(
	"fmt"
	"image"

	"github.com/planetlabs/plcompositor/pkg/raster"
)

// A PixelTrace records how one watched output pixel was decided.
type PixelTrace struct {
	OutputPos     image.Point
	Inputs      []string

	Phases      []string
	NewQuality  [][]float32        // [phase][input], before the merge
	Merged      [][]float32        // [phase][input], after the merge

	Source        uint16
	Quality       float32
	Values      []float32
	Alpha         uint8
}

func newPixelTrace(pos image.Point, inputs []*Input) *PixelTrace {
	pt := PixelTrace{OutputPos: pos}
	for _, in := range inputs {
		pt.Inputs = append(pt.Inputs, in.Filename())
	}
	return &pt
}

func pixelColumn(lines []*raster.Line, x int, quality func(*raster.Line) []float32) []float32 {
	col := make([]float32, len(lines))
	for i, l := range lines {
		col[i] = quality(l)[x]
	}
	return col
}

func (pt *PixelTrace)recordPhase(name string, lines []*raster.Line) {
	pt.Phases = append(pt.Phases, name)
	pt.NewQuality = append(pt.NewQuality, pixelColumn(lines, pt.OutputPos.X, func(l *raster.Line) []float32 { return l.NewQuality }))
}

func (pt *PixelTrace)recordMerge(lines []*raster.Line) {
	pt.Merged = append(pt.Merged, pixelColumn(lines, pt.OutputPos.X, func(l *raster.Line) []float32 { return l.Quality }))
}

func (pt *PixelTrace)recordOutput(out *raster.Line) {
	x := pt.OutputPos.X
	pt.Source = out.Source[x]
	pt.Quality = out.Quality[x]
	pt.Alpha = out.Alpha[x]
	pt.Values = pt.Values[:0]
	for b := range out.Bands {
		pt.Values = append(pt.Values, out.Bands[b][x])
	}
}

func (pt PixelTrace)String() string {
	str := fmt.Sprintf("----- Pixel @(%d,%d)-----\n", pt.OutputPos.X, pt.OutputPos.Y)

	for i, name := range pt.Phases {
		str += fmt.Sprintf("Phase %d: %s\n", i, name)
		for j := range pt.Inputs {
			str += fmt.Sprintf("-- input %2d     : new %10.5f, merged %10.5f  (%s)\n",
				j+1, pt.NewQuality[i][j], pt.Merged[i][j], pt.Inputs[j])
		}
	}
	str += fmt.Sprintf("\n")

	if pt.Source == 0 {
		str += fmt.Sprintf("No active candidates\n")
	} else {
		str += fmt.Sprintf("Source         : input %d, quality %.5f\n", pt.Source, pt.Quality)
	}
	str += fmt.Sprintf("Output         : %v, alpha %d\n", pt.Values, pt.Alpha)
	str += fmt.Sprintf("\n")

	return str
}
