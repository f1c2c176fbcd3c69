package quality

import(
	"github.com/planetlabs/plcompositor/pkg/raster"
)

// SameSource nudges each pixel towards whichever input won the pixels
// just above it, which cuts down on speckle in the source map. Each of
// the up-left, up and up-right neighbours that came from some other
// input costs a third of the penalty.
type SameSource struct {
	ctx     Context
	Penalty float64
}

func NewSameSource(ctx Context, params Params) (Method, error) {
	penalty, err := params.Float("mismatch_penalty", 0.1)
	if err != nil {
		return nil, err
	}
	if penalty < 0.0 || penalty > 1.0 {
		return nil, SetupErrorf("samesource: mismatch_penalty=%.3f outside 0.0 to 1.0 range", penalty)
	}
	return &SameSource{ctx:ctx, Penalty:penalty}, nil
}

func (m *SameSource)Name() string { return "samesource" }

func (m *SameSource)ComputeQuality(in Input, line *raster.Line) error {
	q := line.NewQuality
	prev := m.ctx.PreviousOutput()
	if prev == nil {
		for x := range q {
			q[x] = 1.0
		}
		return nil
	}

	me := uint16(in.Index() + 1)
	single := float32(m.Penalty / 3.0)
	mismatch := func(x int) bool {
		return x >= 0 && x < line.Width && prev.Source[x] != 0 && prev.Source[x] != me
	}

	for x:=0; x<line.Width; x++ {
		thisQuality := float32(1.0)
		for _, nx := range []int{x-1, x, x+1} {
			if mismatch(nx) {
				thisQuality -= single
			}
		}
		q[x] = thisQuality
	}
	return nil
}
