package quality

import(
	"fmt"
	"log"

	"github.com/planetlabs/plcompositor/pkg/qhist"
	"github.com/planetlabs/plcompositor/pkg/raster"
)

// Landsat 8 QA band layout (pre-collection):
//
//  0x0001  designated fill
//  0x0002  dropped frame
//  0x0004  terrain occlusion
//  0x0c00  snow/ice confidence
//  0x3000  cirrus confidence
//  0xc000  cloud confidence
//
// Two bit confidence fields: 00 undetermined, 01 low, 10 medium, 11 high.
const(
	DeadPixelBits  uint16 = 0x0007
	SnowBits       uint16 = 0x0c00
	CirrusBits     uint16 = 0x3000
	CloudBits      uint16 = 0xc000
)

// landsatQA is the common part of the QA band methods: a cloud mask is
// required, and a histogram of the assigned qualities gets reported
// after the last line.
type landsatQA struct {
	name   string
	title  string
	ctx    Context
	hist  *qhist.Histogram
}

func newLandsatQA(ctx Context, name, title string) (landsatQA, error) {
	for _, in := range ctx.Inputs() {
		if !in.HasCloudMask() {
			return landsatQA{}, SetupErrorf("%s: input %d (%s) has no cloud mask", name, in.Index(), in.Filename())
		}
	}
	return landsatQA{name:name, title:title, ctx:ctx, hist:qhist.New()}, nil
}

func (l landsatQA)Name() string { return l.name }

func (l landsatQA)cloud(in Input, line *raster.Line) ([]uint16, error) {
	if !line.HasCloud() {
		return nil, fmt.Errorf("input %d has no cloud mask values", in.Index())
	}
	return line.Cloud, nil
}

// accumulate feeds the histogram; it is reported once, after the last
// input of the last line.
func (l landsatQA)accumulate(in Input, q []float32) {
	l.hist.Accumulate(q)
	if l.ctx.Verbose() > 0 && l.ctx.Line() == l.ctx.Height()-1 && in.Index() == len(l.ctx.Inputs())-1 {
		l.hist.Report(log.Writer(), l.title)
	}
}

// A ConfidenceTable maps the four levels of a 2-bit confidence field to qualities.
type ConfidenceTable struct {
	Mask      uint16
	High      float32
	Medium    float32
	Low       float32
	None      float32
}

// Decode returns the quality for one QA value. Dead pixel markers
// always reject, whatever the confidence bits say.
func (t ConfidenceTable)Decode(v uint16) float32 {
	if v & DeadPixelBits != 0 {
		return raster.Reject
	}
	shift := trailingZeros(t.Mask)
	switch (v & t.Mask) >> shift {
	case 3: return t.High
	case 2: return t.Medium
	case 1: return t.Low
	default: return t.None
	}
}

func trailingZeros(m uint16) uint {
	n := uint(0)
	for m != 0 && m & 1 == 0 {
		m >>= 1
		n++
	}
	return n
}

func confidenceTable(params Params, mask uint16, thing string) (ConfidenceTable, error) {
	t := ConfidenceTable{Mask:mask}
	vals := []struct {
		key  string
		def  float64
		dst *float32
	}{
		{"fully_confident_" + thing,     -1.0, &t.High},
		{"mostly_confident_" + thing,    0.33, &t.Medium},
		{"partially_confident_" + thing, 0.66, &t.Low},
		{"not_" + thing,                 1.0,  &t.None},
	}
	for _, v := range vals {
		f, err := params.Float(v.key, v.def)
		if err != nil {
			return t, err
		}
		*v.dst = float32(f)
	}
	return t, nil
}

// Landsat8Confidence decodes one of the QA band confidence fields.
type Landsat8Confidence struct {
	landsatQA
	Table ConfidenceTable
}

func NewLandsat8Cloud(ctx Context, params Params) (Method, error) {
	return newLandsat8Confidence(ctx, params, "landsat8", "L8 Cloud Quality", CloudBits, "cloud")
}

func NewLandsat8Snow(ctx Context, params Params) (Method, error) {
	return newLandsat8Confidence(ctx, params, "landsat8snow", "L8 Snow Quality", SnowBits, "snow")
}

func NewLandsat8Cirrus(ctx Context, params Params) (Method, error) {
	return newLandsat8Confidence(ctx, params, "landsat8cirrus", "L8 Cirrus Quality", CirrusBits, "cirrus")
}

// NewLandsat8CFMaskCloud is the cfmask cloud band read as a confidence
// value 0-3, rather than as a class code.
func NewLandsat8CFMaskCloud(ctx Context, params Params) (Method, error) {
	m, err := newLandsat8Confidence(ctx, params, "landsat8_cfmask_cloud", "L8 CFMask Cloud Quality", 0x0003, "cloud")
	if err != nil {
		return nil, err
	}
	return cfmaskConfidence{m.(*Landsat8Confidence)}, nil
}

func newLandsat8Confidence(ctx Context, params Params, name, title string, mask uint16, thing string) (Method, error) {
	qa, err := newLandsatQA(ctx, name, title)
	if err != nil {
		return nil, err
	}
	t, err := confidenceTable(params, mask, thing)
	if err != nil {
		return nil, err
	}
	return &Landsat8Confidence{landsatQA:qa, Table:t}, nil
}

func (m *Landsat8Confidence)ComputeQuality(in Input, line *raster.Line) error {
	cloud, err := m.cloud(in, line)
	if err != nil {
		return err
	}
	for x, v := range cloud {
		line.NewQuality[x] = m.Table.Decode(v)
	}
	m.accumulate(in, line.NewQuality)
	return nil
}

// cfmask confidence values live in the low bits, which overlap the QA
// dead pixel bits; 255 is the fill value, and other codes are neutral.
type cfmaskConfidence struct {
	*Landsat8Confidence
}

func (m cfmaskConfidence)ComputeQuality(in Input, line *raster.Line) error {
	cloud, err := m.cloud(in, line)
	if err != nil {
		return err
	}
	for x, v := range cloud {
		switch {
		case v == 255: line.NewQuality[x] = raster.Reject
		case v == 3:   line.NewQuality[x] = m.Table.High
		case v == 2:   line.NewQuality[x] = m.Table.Medium
		case v == 1:   line.NewQuality[x] = m.Table.Low
		case v == 0:   line.NewQuality[x] = m.Table.None
		default:       line.NewQuality[x] = 1.0          // Unknown code, no opinion
		}
	}
	m.accumulate(in, line.NewQuality)
	return nil
}

// Landsat8SR reads the surface reflectance cloud band, where each bit
// is a flag rather than a confidence level.
type Landsat8SR struct {
	landsatQA
	Cirrus, Cloud, Shadow, Adjacent, Aerosol, NotCloud float32
}

func NewLandsat8SR(ctx Context, params Params) (Method, error) {
	qa, err := newLandsatQA(ctx, "landsat8sr", "L8 SR Cloud Quality")
	if err != nil {
		return nil, err
	}
	m := &Landsat8SR{landsatQA:qa}
	vals := []struct {
		key  string
		def  float64
		dst *float32
	}{
		{"cirrus",    -1.0, &m.Cirrus},
		{"cloud",     -1.0, &m.Cloud},
		{"shadow",    0.33, &m.Shadow},
		{"adjacent",  0.33, &m.Adjacent},
		{"aerosol",   0.66, &m.Aerosol},
		{"not_cloud", 1.0,  &m.NotCloud},
	}
	for _, v := range vals {
		f, err := params.Float(v.key, v.def)
		if err != nil {
			return nil, err
		}
		*v.dst = float32(f)
	}
	return m, nil
}

// Decode turns one SR cloud value into a quality. Zero is nodata. A
// reject from any flag stays a reject.
func (m *Landsat8SR)Decode(v uint16) float32 {
	if v == 0 {
		return raster.Reject
	}
	q := m.NotCloud
	if v & 0x2 != 0 {
		q = m.Cloud
	}
	apply := func(bits uint16, f float32) {
		if v & bits == 0 || q < 0 {
			return
		}
		if f < 0 {
			q = raster.Reject
		} else {
			q *= f
		}
	}
	apply(0x01, m.Cirrus)
	apply(0x04, m.Adjacent)
	apply(0x08, m.Shadow)
	apply(0x30, m.Aerosol)
	return q
}

func (m *Landsat8SR)ComputeQuality(in Input, line *raster.Line) error {
	cloud, err := m.cloud(in, line)
	if err != nil {
		return err
	}
	for x, v := range cloud {
		line.NewQuality[x] = m.Decode(v)
	}
	m.accumulate(in, line.NewQuality)
	return nil
}

// Landsat8CFMask reads the cfmask class codes.
type Landsat8CFMask struct {
	landsatQA
	Classes map[uint16]float32
}

func NewLandsat8CFMask(ctx Context, params Params) (Method, error) {
	qa, err := newLandsatQA(ctx, "landsat8_cfmask", "L8 CFMask Quality")
	if err != nil {
		return nil, err
	}
	m := &Landsat8CFMask{landsatQA:qa, Classes:map[uint16]float32{255: raster.Reject}}
	classes := []struct {
		code uint16
		key  string
		def  float64
	}{
		{0, "clear",        1.0},
		{1, "water",        1.0},
		{2, "cloud_shadow", 0.01},
		{3, "snow",         1.0},
		{4, "cloud",        0.01},
	}
	for _, c := range classes {
		f, err := params.Float(c.key, c.def)
		if err != nil {
			return nil, err
		}
		m.Classes[c.code] = float32(f)
	}
	return m, nil
}

func (m *Landsat8CFMask)ComputeQuality(in Input, line *raster.Line) error {
	cloud, err := m.cloud(in, line)
	if err != nil {
		return err
	}
	for x, v := range cloud {
		if q, exists := m.Classes[v]; exists {
			line.NewQuality[x] = q
		} else {
			line.NewQuality[x] = 1.0
		}
	}
	m.accumulate(in, line.NewQuality)
	return nil
}

func (m *Landsat8CFMask)String() string {
	return fmt.Sprintf("%s%v", m.name, m.Classes)
}
