package quality

import(
	"fmt"
	"sync"

	"github.com/planetlabs/plcompositor/pkg/raster"
)

// QualityFromFile reads precomputed qualities from a single band
// raster per input. The raster is found either through an input
// parameter (file_key), or by appending a suffix to the input's own
// filename (quality_file). Files are opened on first use.
type QualityFromFile struct {
	ctx        Context
	FileKey    string
	Suffix     string
	ScaleMin   float64
	ScaleMax   float64

	once       sync.Once
	openErr    error
	files    []raster.Dataset
	scratch   *raster.Line
}

func NewQualityFromFile(ctx Context, params Params) (Method, error) {
	m := &QualityFromFile{
		ctx:     ctx,
		FileKey: params.String("file_key", ""),
		Suffix:  params.String("quality_file", ""),
	}
	if m.FileKey == "" && m.Suffix == "" {
		return nil, SetupErrorf("qualityfromfile: needs file_key or quality_file")
	}

	var err error
	if m.ScaleMin, err = params.Float("scale_min", 0.0); err != nil {
		return nil, err
	}
	if m.ScaleMax, err = params.Float("scale_max", 1.0); err != nil {
		return nil, err
	}
	// Older strategy parameter names
	if m.ScaleMin, err = params.Float("quality_file_scale_min", m.ScaleMin); err != nil {
		return nil, err
	}
	if m.ScaleMax, err = params.Float("quality_file_scale_max", m.ScaleMax); err != nil {
		return nil, err
	}
	if m.ScaleMax == m.ScaleMin {
		return nil, SetupErrorf("qualityfromfile: scale_min and scale_max are both %g", m.ScaleMin)
	}

	for _, in := range ctx.Inputs() {
		if _, err := m.Filename(in); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *QualityFromFile)Name() string { return "qualityfromfile" }

// Filename says which quality raster goes with an input.
func (m *QualityFromFile)Filename(in Input) (string, error) {
	if m.FileKey != "" {
		path, exists := in.Param(m.FileKey)
		if !exists || path == "" {
			return "", SetupErrorf("qualityfromfile: input %s has no '%s' parameter", in.Filename(), m.FileKey)
		}
		return path, nil
	}
	return in.Filename() + m.Suffix, nil
}

func (m *QualityFromFile)openAll() error {
	for _, in := range m.ctx.Inputs() {
		filename, err := m.Filename(in)
		if err != nil {
			return err
		}
		ds, err := m.ctx.Open(filename)
		if err != nil {
			return fmt.Errorf("failed to open quality file %s: %w", filename, err)
		}
		if ds.Width() != m.ctx.Width() || ds.Height() != m.ctx.Height() {
			ds.Close()
			return SetupErrorf("quality file %s is %dx%d, need %dx%d", filename, ds.Width(), ds.Height(), m.ctx.Width(), m.ctx.Height())
		}
		m.files = append(m.files, ds)
	}
	m.scratch = raster.NewLine(m.ctx.Width(), 1)
	return nil
}

func (m *QualityFromFile)ComputeQuality(in Input, line *raster.Line) error {
	m.once.Do(func() { m.openErr = m.openAll() })
	if m.openErr != nil {
		return m.openErr
	}

	if err := m.files[in.Index()].ReadLine(m.ctx.Line(), m.scratch); err != nil {
		return err
	}

	rescale := m.ScaleMin != 0.0 || m.ScaleMax != 1.0
	for x, v := range m.scratch.Bands[0] {
		if rescale {
			v = float32((float64(v) - m.ScaleMin) / (m.ScaleMax - m.ScaleMin))
		}
		line.NewQuality[x] = v
	}
	return nil
}

func (m *QualityFromFile)Close() error {
	var firstErr error
	for _, ds := range m.files {
		if err := ds.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.files = nil
	return firstErr
}
