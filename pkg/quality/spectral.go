package quality

import(
	"github.com/planetlabs/plcompositor/pkg/raster"
)

// Darkest prefers dark pixels, which tends to avoid cloud and haze.
// Quality is the mean over bands of (scaleMax-v)/(scaleMax-scaleMin),
// clamped to [0,1].
type Darkest struct {
	ScaleMin float64
	ScaleMax float64
}

func NewDarkest(ctx Context, params Params) (Method, error) {
	m := Darkest{}
	var err error
	if m.ScaleMin, err = params.Float("scale_min", 0); err != nil {
		return nil, err
	}
	if m.ScaleMax, err = params.Float("scale_max", 65535); err != nil {
		return nil, err
	}
	if m.ScaleMax <= m.ScaleMin {
		return nil, SetupErrorf("darkest: scale_max (%g) must exceed scale_min (%g)", m.ScaleMax, m.ScaleMin)
	}
	return m, nil
}

func (m Darkest)Name() string { return "darkest" }

func (m Darkest)ComputeQuality(in Input, line *raster.Line) error {
	q := line.NewQuality
	nBands := line.BandCount()
	span := m.ScaleMax - m.ScaleMin

	for x:=0; x<line.Width; x++ {
		if line.Alpha[x] < raster.AlphaThreshold || nBands == 0 {
			q[x] = raster.Reject
			continue
		}
		sum := 0.0
		for b:=0; b<nBands; b++ {
			sum += (m.ScaleMax - float64(line.Bands[b][x])) / span
		}
		q[x] = float32(clamp01(sum / float64(nBands)))
	}
	return nil
}

// BandRatio is greenest/reddest: one channel over the sum of R, G and
// B (plus one, so black doesn't divide by zero).
type BandRatio struct {
	name   string
	band   int  // 0=R, 1=G, 2=B
}

func NewGreenest(ctx Context, params Params) (Method, error) { return newBandRatio(ctx, "greenest", 1) }
func NewReddest(ctx Context, params Params) (Method, error)  { return newBandRatio(ctx, "reddest", 0) }

func newBandRatio(ctx Context, name string, band int) (Method, error) {
	for _, in := range ctx.Inputs() {
		if in.BandCount() < 3 {
			return nil, SetupErrorf("%s: needs 3 bands, input %d (%s) has %d", name, in.Index(), in.Filename(), in.BandCount())
		}
	}
	return BandRatio{name:name, band:band}, nil
}

func (m BandRatio)Name() string { return m.name }

func (m BandRatio)ComputeQuality(in Input, line *raster.Line) error {
	if line.BandCount() < 3 {
		return SetupErrorf("%s: line has %d bands, need 3", m.name, line.BandCount())
	}
	r, g, b := line.Bands[0], line.Bands[1], line.Bands[2]
	for x:=0; x<line.Width; x++ {
		if line.Alpha[x] < raster.AlphaThreshold {
			line.NewQuality[x] = raster.Reject
			continue
		}
		line.NewQuality[x] = line.Bands[m.band][x] / (r[x] + g[x] + b[x] + 1)
	}
	return nil
}

func clamp01(f float64) float64 {
	if f < 0 { return 0 }
	if f > 1 { return 1 }
	return f
}
