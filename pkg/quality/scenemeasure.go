package quality

import(
	"log"

	"github.com/planetlabs/plcompositor/pkg/raster"
)

// SceneMeasure applies a per-scene scalar (e.g. sun elevation, or a
// cloud cover estimate from metadata) to every pixel of that scene,
// rescaled from [scale_min,scale_max] towards [0,1].
type SceneMeasure struct {
	Measure  string
	ScaleMin float64
	ScaleMax float64
	values []float32  // per input ordinal
}

func NewSceneMeasure(ctx Context, params Params) (Method, error) {
	m := &SceneMeasure{Measure: params.String("scene_measure", "")}
	if m.Measure == "" {
		return nil, SetupErrorf("scene_measure: no scene_measure parameter given")
	}

	// The older strategy parameter form keys the scale by measure name
	var err error
	minKey, maxKey := "scale_min", "scale_max"
	if _, exists := params["scale_min:" + m.Measure]; exists {
		minKey = "scale_min:" + m.Measure
	}
	if _, exists := params["scale_max:" + m.Measure]; exists {
		maxKey = "scale_max:" + m.Measure
	}
	if m.ScaleMin, err = params.Float(minKey, 0.0); err != nil {
		return nil, err
	}
	if m.ScaleMax, err = params.Float(maxKey, 1.0); err != nil {
		return nil, err
	}
	if m.ScaleMax == m.ScaleMin {
		return nil, SetupErrorf("scene_measure: scale_min and scale_max are both %g", m.ScaleMin)
	}

	for _, in := range ctx.Inputs() {
		v, exists := in.Metric(m.Measure)
		if !exists {
			return nil, SetupErrorf("scene %s lacks quality measure %s", in.Filename(), m.Measure)
		}
		scaled := float32((v - m.ScaleMin) / (m.ScaleMax - m.ScaleMin))
		m.values = append(m.values, scaled)
		if ctx.Verbose() > 1 {
			log.Printf("scene_measure: using quality %.3f for input %d\n", scaled, in.Index())
		}
	}

	return m, nil
}

func (m *SceneMeasure)Name() string { return "scene_measure" }

// Value is the rescaled measure for one input.
func (m *SceneMeasure)Value(in Input) float32 { return m.values[in.Index()] }

func (m *SceneMeasure)ComputeQuality(in Input, line *raster.Line) error {
	if in.Index() >= len(m.values) {
		return SetupErrorf("scene_measure: input %d was not known at setup", in.Index())
	}
	v := m.values[in.Index()]
	for x:=0; x<line.Width; x++ {
		if line.Alpha[x] < raster.AlphaThreshold {
			line.NewQuality[x] = raster.Reject
		} else {
			line.NewQuality[x] = v
		}
	}
	return nil
}
