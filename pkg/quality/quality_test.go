package quality

import(
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/planetlabs/plcompositor/pkg/raster"
)

type fakeInput struct {
	index    int
	filename string
	bands    int
	cloud    bool
	metrics  map[string]float64
	params   map[string]string
}

func (in fakeInput)Index() int         { return in.index }
func (in fakeInput)Filename() string   { return in.filename }
func (in fakeInput)BandCount() int     { return in.bands }
func (in fakeInput)HasCloudMask() bool { return in.cloud }

func (in fakeInput)Metric(name string) (float64, bool) {
	v, exists := in.metrics[name]
	return v, exists
}
func (in fakeInput)Param(name string) (string, bool) {
	v, exists := in.params[name]
	return v, exists
}

type fakeContext struct {
	width, height, line int
	inputs   []Input
	prev     *raster.Line
	store    *raster.MemStore
}

func (c *fakeContext)Width() int                   { return c.width }
func (c *fakeContext)Height() int                  { return c.height }
func (c *fakeContext)Line() int                    { return c.line }
func (c *fakeContext)Inputs() []Input              { return c.inputs }
func (c *fakeContext)PreviousOutput() *raster.Line { return c.prev }
func (c *fakeContext)Verbose() int                 { return 0 }

func (c *fakeContext)Open(path string) (raster.Dataset, error) { return c.store.Open(path) }

func newFakeContext(width, nInputs int) *fakeContext {
	ctx := &fakeContext{width:width, height:1, store:raster.NewMemStore()}
	for i:=0; i<nInputs; i++ {
		ctx.inputs = append(ctx.inputs, fakeInput{index:i, filename:"in", bands:3, cloud:true})
	}
	return ctx
}

func near(a, b float32) bool { return math.Abs(float64(a - b)) < 1e-5 }

func TestDefaultMerge(t *testing.T) {
	l := raster.NewLine(4, 1)
	copy(l.Quality,    []float32{0.5, -1, 0.5, 0.8})
	copy(l.NewQuality, []float32{0.5, 0.5, -1, 1.0})

	DefaultMerge(l)

	want := []float32{0.25, -1, -1, 0.8}
	for x := range want {
		if !near(l.Quality[x], want[x]) {
			t.Errorf("pixel %d: got %f, want %f", x, l.Quality[x], want[x])
		}
		if l.NewQuality[x] != 1.0 {
			t.Errorf("pixel %d: NewQuality not reset: %f", x, l.NewQuality[x])
		}
	}

	// Merging again with nothing new changes nothing
	DefaultMerge(l)
	for x := range want {
		if !near(l.Quality[x], want[x]) {
			t.Errorf("second merge, pixel %d: got %f, want %f", x, l.Quality[x], want[x])
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	ctx := newFakeContext(2, 1)

	if _, err := r.Create("nosuchmethod", ctx, nil); err == nil {
		t.Errorf("expected error for unknown method")
	} else {
		var setupErr *SetupError
		if !errors.As(err, &setupErr) {
			t.Errorf("expected SetupError, got %T %v", err, err)
		}
	}

	if err := r.Register("darkest", NewDarkest); err == nil {
		t.Errorf("expected error registering a duplicate")
	}

	names := strings.Join(r.Names(), ",")
	for _, want := range []string{"darkest", "landsat8", "percentile", "samesource", "qualityfromfile"} {
		if !strings.Contains(names, want) {
			t.Errorf("registry lacks %s: %s", want, names)
		}
	}
}

func TestDarkest(t *testing.T) {
	ctx := newFakeContext(3, 1)
	m, err := NewDarkest(ctx, Params{"scale_max":"100"})
	if err != nil {
		t.Fatal(err)
	}

	l := raster.NewLine(3, 2)
	copy(l.Bands[0], []float32{0, 50, 100})
	copy(l.Bands[1], []float32{0, 100, 100})
	l.Alpha[2] = 0

	if err := m.ComputeQuality(ctx.inputs[0], l); err != nil {
		t.Fatal(err)
	}
	want := []float32{1.0, 0.25, raster.Reject}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}

	if _, err := NewDarkest(ctx, Params{"scale_min":"5", "scale_max":"5"}); err == nil {
		t.Errorf("expected error for empty scale range")
	}
}

func TestBandRatio(t *testing.T) {
	ctx := newFakeContext(2, 1)
	green, err := NewGreenest(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	red, _ := NewReddest(ctx, nil)

	l := raster.NewLine(2, 3)
	copy(l.Bands[0], []float32{10, 0})
	copy(l.Bands[1], []float32{29, 0})
	copy(l.Bands[2], []float32{0, 0})
	l.Alpha[1] = 100

	green.ComputeQuality(ctx.inputs[0], l)
	if !near(l.NewQuality[0], 29.0/40.0) || l.NewQuality[1] != raster.Reject {
		t.Errorf("greenest: %v", l.NewQuality)
	}
	red.ComputeQuality(ctx.inputs[0], l)
	if !near(l.NewQuality[0], 10.0/40.0) {
		t.Errorf("reddest: %v", l.NewQuality)
	}

	ctx.inputs[0] = fakeInput{index:0, filename:"pan.tif", bands:1}
	if _, err := NewGreenest(ctx, nil); err == nil {
		t.Errorf("expected error for single band input")
	}
}

func TestLandsat8ConfidenceDecode(t *testing.T) {
	ctx := newFakeContext(1, 1)
	m, err := NewLandsat8Cloud(ctx, Params{"fully_confident_cloud":"0.0"})
	if err != nil {
		t.Fatal(err)
	}
	table := m.(*Landsat8Confidence).Table

	tests := []struct {
		v    uint16
		want float32
	}{
		{0x0000, 1.0},
		{0x4000, 0.66},
		{0x8000, 0.33},
		{0xc000, 0.0},  // configured value, not the default
		{0xc001, -1},   // dead pixel beats confidence
		{0x8004, -1},
		{0x0002, -1},
		{0x3c00, 1.0},  // other fields ignored
	}
	for _, tc := range tests {
		if got := table.Decode(tc.v); !near(got, tc.want) {
			t.Errorf("Decode(0x%04x): got %f, want %f", tc.v, got, tc.want)
		}
	}

	snow, _ := NewLandsat8Snow(ctx, nil)
	if got := snow.(*Landsat8Confidence).Table.Decode(0x0c00); got != -1 {
		t.Errorf("snow 0x0c00: got %f", got)
	}
	cirrus, _ := NewLandsat8Cirrus(ctx, nil)
	if got := cirrus.(*Landsat8Confidence).Table.Decode(0x2000); !near(got, 0.33) {
		t.Errorf("cirrus 0x2000: got %f", got)
	}
}

func TestLandsat8ComputeQuality(t *testing.T) {
	ctx := newFakeContext(3, 1)
	m, _ := NewLandsat8Cloud(ctx, nil)

	l := raster.NewLine(3, 1)
	copy(l.EnableCloud(), []uint16{0xc000, 0x0000, 0x4001})
	if err := m.ComputeQuality(ctx.inputs[0], l); err != nil {
		t.Fatal(err)
	}
	want := []float32{-1, 1, -1}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}

	if err := m.ComputeQuality(ctx.inputs[0], raster.NewLine(3, 1)); err == nil {
		t.Errorf("expected error when line has no cloud values")
	}

	ctx.inputs[0] = fakeInput{index:0, filename:"nomask.tif", bands:1}
	if _, err := NewLandsat8Cloud(ctx, nil); err == nil {
		t.Errorf("expected setup error for input without a cloud mask")
	}
}

func TestLandsat8SR(t *testing.T) {
	ctx := newFakeContext(1, 1)
	m, _ := NewLandsat8SR(ctx, nil)
	sr := m.(*Landsat8SR)

	tests := []struct {
		v    uint16
		want float32
	}{
		{0x00, -1},
		{0x40, 1.0},
		{0x02, -1},
		{0x03, -1},          // cloud and cirrus stays a reject
		{0x41, -1},          // cirrus
		{0x44, 0.33},        // adjacent
		{0x4c, 0.33*0.33},   // adjacent and shadow
		{0x60, 0.66},        // aerosol
	}
	for _, tc := range tests {
		if got := sr.Decode(tc.v); !near(got, tc.want) {
			t.Errorf("Decode(0x%02x): got %f, want %f", tc.v, got, tc.want)
		}
	}
}

func TestLandsat8CFMask(t *testing.T) {
	ctx := newFakeContext(7, 1)
	classes, _ := NewLandsat8CFMask(ctx, Params{"water":"0.5"})
	confidence, _ := NewLandsat8CFMaskCloud(ctx, nil)

	l := raster.NewLine(7, 1)
	copy(l.EnableCloud(), []uint16{0, 1, 2, 3, 4, 255, 9})

	classes.ComputeQuality(ctx.inputs[0], l)
	want := []float32{1.0, 0.5, 0.01, 1.0, 0.01, -1, 1.0}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("classes pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}

	confidence.ComputeQuality(ctx.inputs[0], l)
	want = []float32{1.0, 0.66, 0.33, -1, 1.0, -1, 1.0}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("confidence pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}

	// Only code 0 means not_cloud; unknown codes stay neutral.
	tuned, err := NewLandsat8CFMaskCloud(ctx, Params{"not_cloud":"0.8"})
	if err != nil {
		t.Fatal(err)
	}
	tuned.ComputeQuality(ctx.inputs[0], l)
	want = []float32{0.8, 0.66, 0.33, -1, 1.0, -1, 1.0}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("tuned confidence pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}
}

func TestPercentile(t *testing.T) {
	ctx := newFakeContext(2, 3)
	m, err := NewPercentile(ctx, Params{"quality_percentile":"50"})
	if err != nil {
		t.Fatal(err)
	}

	lines := []*raster.Line{raster.NewLine(2, 1), raster.NewLine(2, 1), raster.NewLine(2, 1)}
	copy(lines[0].Quality, []float32{0.2, -1})
	copy(lines[1].Quality, []float32{0.6, 0.4})
	copy(lines[2].Quality, []float32{0.9, 0})

	if err := ComputeStack(m, ctx.inputs, lines); err != nil {
		t.Fatal(err)
	}
	for i, l := range lines {
		Merge(m, ctx.inputs[i], l)
	}

	// Pixel 0: median of {0.2,0.6,0.9} is 0.6. Pixel 1: only 0.4 is a candidate.
	want := [][]float32{
		{0.6, -1},
		{1.0, 1.0},
		{0.7, -1},
	}
	for i := range want {
		for x := range want[i] {
			if !near(lines[i].Quality[x], want[i][x]) {
				t.Errorf("input %d pixel %d: got %f, want %f", i, x, lines[i].Quality[x], want[i][x])
			}
			if lines[i].NewQuality[x] != 1.0 {
				t.Errorf("input %d pixel %d: NewQuality not reset", i, x)
			}
		}
	}
}

func TestPercentileParams(t *testing.T) {
	ctx := newFakeContext(1, 1)
	m, _ := NewPercentile(ctx, Params{"quality_percentile":"100", "median_ratio":"0.25"})
	if r := m.(*Percentile).Ratio; r != 0.25 {
		t.Errorf("median_ratio should win, got %f", r)
	}
	if _, err := NewPercentile(ctx, Params{"quality_percentile":"150"}); err == nil {
		t.Errorf("expected error for percentile over 100")
	}
	if _, err := NewPercentile(ctx, Params{"quality_percentile":"lots"}); err == nil {
		t.Errorf("expected error for non-numeric percentile")
	}
}

func TestSameSource(t *testing.T) {
	ctx := newFakeContext(4, 2)
	m, err := NewSameSource(ctx, Params{"mismatch_penalty":"0.3"})
	if err != nil {
		t.Fatal(err)
	}

	l := raster.NewLine(4, 1)
	m.ComputeQuality(ctx.inputs[0], l)
	for x := range l.NewQuality {
		if l.NewQuality[x] != 1.0 {
			t.Errorf("first line pixel %d: got %f, want 1.0", x, l.NewQuality[x])
		}
	}

	ctx.prev = raster.NewLine(4, 1)
	copy(ctx.prev.Source, []uint16{1, 2, 0, 2})

	m.ComputeQuality(ctx.inputs[0], l)   // input ordinal 0 is source 1
	want := []float32{0.9, 0.9, 0.8, 0.9}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}

	if _, err := NewSameSource(ctx, Params{"mismatch_penalty":"1.5"}); err == nil {
		t.Errorf("expected error for penalty out of range")
	}
}

func TestSceneMeasure(t *testing.T) {
	ctx := newFakeContext(2, 2)
	ctx.inputs[0] = fakeInput{index:0, filename:"a", metrics:map[string]float64{"sun_elevation": 30}}
	ctx.inputs[1] = fakeInput{index:1, filename:"b", metrics:map[string]float64{"sun_elevation": 60}}

	m, err := NewSceneMeasure(ctx, Params{"scene_measure":"sun_elevation", "scale_max":"90"})
	if err != nil {
		t.Fatal(err)
	}

	l := raster.NewLine(2, 1)
	l.Alpha[1] = 0
	m.ComputeQuality(ctx.inputs[1], l)
	if !near(l.NewQuality[0], 60.0/90.0) || l.NewQuality[1] != raster.Reject {
		t.Errorf("got %v", l.NewQuality)
	}

	// Older strategy parameter form
	m, _ = NewSceneMeasure(ctx, Params{"scene_measure":"sun_elevation", "scale_min:sun_elevation":"30", "scale_max:sun_elevation":"60"})
	if got := m.(*SceneMeasure).Value(ctx.inputs[0]); got != 0 {
		t.Errorf("legacy scale: got %f, want 0", got)
	}

	if _, err := NewSceneMeasure(ctx, Params{"scene_measure":"cloud_cover"}); err == nil {
		t.Errorf("expected setup error for missing metric")
	}
}

func TestQualityFromFile(t *testing.T) {
	ctx := newFakeContext(3, 2)
	ctx.height = 2
	ctx.inputs[0] = fakeInput{index:0, filename:"a.tif", params:map[string]string{"qf":"a_q"}}
	ctx.inputs[1] = fakeInput{index:1, filename:"b.tif", params:map[string]string{"qf":"b_q"}}

	for i, name := range []string{"a_q", "b_q"} {
		ds := raster.NewMemDataset(name, raster.Spec{Width:3, Height:2, Bands:1, Kind:raster.Float32})
		for x:=0; x<3; x++ {
			ds.Set(0, x, 1, float32(10*i + x))
		}
		ctx.store.Put(ds)
	}

	m, err := NewQualityFromFile(ctx, Params{"file_key":"qf", "scale_max":"20"})
	if err != nil {
		t.Fatal(err)
	}
	defer m.(*QualityFromFile).Close()

	ctx.line = 1
	l := raster.NewLine(3, 1)
	if err := m.ComputeQuality(ctx.inputs[1], l); err != nil {
		t.Fatal(err)
	}
	want := []float32{0.5, 0.55, 0.6}
	for x := range want {
		if !near(l.NewQuality[x], want[x]) {
			t.Errorf("pixel %d: got %f, want %f", x, l.NewQuality[x], want[x])
		}
	}

	if _, err := NewQualityFromFile(ctx, Params{"file_key":"missing"}); err == nil {
		t.Errorf("expected setup error for missing file_key param")
	}
	if _, err := NewQualityFromFile(ctx, Params{}); err == nil {
		t.Errorf("expected setup error with no file_key or quality_file")
	}

	m, _ = NewQualityFromFile(ctx, Params{"quality_file":".nope"})
	if err := m.ComputeQuality(ctx.inputs[0], l); err == nil {
		t.Errorf("expected error opening missing quality file")
	}
}
