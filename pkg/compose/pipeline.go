// Package compose runs the compositing pipeline: it streams the inputs
// a line at a time through the quality methods and a selector, writes
// the output and diagnostic rasters, and optionally repairs the output
// from a sieved source map.
package compose

import(
	"fmt"
	"image"
	"io"
	"log"
	"path/filepath"
	"strings"

	"github.com/skypies/util/histogram"

	"github.com/planetlabs/plcompositor/pkg/cmath"
	"github.com/planetlabs/plcompositor/pkg/qhist"
	"github.com/planetlabs/plcompositor/pkg/quality"
	"github.com/planetlabs/plcompositor/pkg/raster"
)

type State int

const(
	Idle State = iota
	Streaming
	Repairing
	Done
)

func (s State)String() string {
	switch s {
	case Idle:      return "idle"
	case Streaming: return "streaming"
	case Repairing: return "repairing"
	case Done:      return "done"
	default:        return fmt.Sprintf("State(%d)", int(s))
	}
}

const previewMaxWidth = 1024

// A Pipeline owns everything for one run. It is also the context that
// quality methods see.
type Pipeline struct {
	Config      Config

	store       raster.Store
	state       State
	line        int
	width       int
	height      int

	inputs    []*Input
	qinputs   []quality.Input
	methods   []quality.Method
	selector    Selector

	output      raster.Dataset
	trace       raster.Dataset
	qualityOut  raster.Dataset

	Histogram  *qhist.Histogram      // Final quality of every output pixel
	usage       histogram.Histogram  // How often each source index wins
	prev       *raster.Line
	debug     []image.Point

	qualityGrid *cmath.FloatGrid
	sourceGrid  *cmath.LabelGrid
}

// NewPipeline checks the configuration, opens the inputs, builds the
// quality methods and creates the outputs. Anything wrong with the
// setup is reported here, as a *quality.SetupError where it's a
// configuration problem, before any line is processed.
func NewPipeline(cfg Config, store raster.Store, registry *quality.Registry) (*Pipeline, error) {
	if err := cfg.FinalizeConfiguration(); err != nil {
		return nil, err
	}

	p := Pipeline{
		Config:    cfg,
		store:     store,
		line:      -1,
		Histogram: qhist.New(),
		usage:     histogram.Histogram{NumBuckets:256, ValMin:0, ValMax:256},
		debug:     cfg.GetDebugPixels(),
	}

	if err := p.openInputs(); err != nil {
		p.Close()
		return nil, err
	}

	for _, def := range cfg.QualityMethods {
		m, err := registry.Create(def.Class, &p, def.Params)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.methods = append(p.methods, m)
	}

	sel, err := cfg.GetSelector()
	if err != nil {
		p.Close()
		return nil, err
	}
	p.selector = sel

	if err := p.createOutputs(); err != nil {
		p.Close()
		return nil, err
	}

	if p.Verbose() > 0 {
		log.Printf("compositing %d inputs, %dx%d, into %s\n", len(p.inputs), p.width, p.height, cfg.OutputFile)
		for _, m := range p.methods {
			log.Printf("quality method: %s\n", m.Name())
		}
		log.Printf("selector: %s\n", p.selector.Name())
	}

	return &p, nil
}

func (p *Pipeline)openInputs() error {
	for i, def := range p.Config.Inputs {
		in, err := openInput(p.store, i, def)
		if err != nil {
			return err
		}
		p.inputs = append(p.inputs, in)
		p.qinputs = append(p.qinputs, in)

		if i == 0 {
			p.width, p.height = in.ds.Width(), in.ds.Height()
		} else if err := in.checkSize(p.width, p.height); err != nil {
			return quality.SetupErrorf("%v", err)
		}
		if in.cloud != nil {
			if err := in.checkSize(p.width, p.height); err != nil {
				return quality.SetupErrorf("%v", err)
			}
		}
		if p.Verbose() > 1 {
			log.Printf("%s\n", in)
		}
	}
	return nil
}

// isFloatFormat is true for outputs stored as raw float32 samples, which
// carry no alpha band.
func isFloatFormat(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".bil", ".raw": return true
	}
	return false
}

func (p *Pipeline)createOutputs() error {
	n := len(p.inputs)

	spec := raster.Spec{Width:p.width, Height:p.height, Bands:p.inputs[0].BandCount(), Alpha:true, Kind:raster.Unsigned16}
	if isFloatFormat(p.Config.OutputFile) {
		spec.Alpha, spec.Kind = false, raster.Float32
	}
	ds, err := p.store.Create(p.Config.OutputFile, spec)
	if err != nil {
		return err
	}
	p.output = ds

	if p.Config.SourceTrace != "" {
		spec := raster.Spec{Width:p.width, Height:p.height, Bands:1, Kind:raster.Unsigned16, BandNames:[]string{"source"}}
		if p.trace, err = p.store.Create(p.Config.SourceTrace, spec); err != nil {
			return err
		}
	}

	if p.Config.QualityOutput != "" {
		names := []string{"composite"}
		for _, in := range p.inputs {
			names = append(names, filepath.Base(in.Filename()))
		}
		spec := raster.Spec{Width:p.width, Height:p.height, Bands:n+1, Kind:raster.Float32, BandNames:names}
		if p.qualityOut, err = p.store.Create(p.Config.QualityOutput, spec); err != nil {
			return err
		}
	}

	if p.Config.QualityPreview != "" {
		g := cmath.NewFloatGrid(p.width, p.height)
		p.qualityGrid = &g
	}
	if p.Config.SourcePreview != "" {
		g := cmath.NewLabelGrid(p.width, p.height)
		p.sourceGrid = &g
	}

	return nil
}

// quality.Context
func (p *Pipeline)Width() int                   { return p.width }
func (p *Pipeline)Height() int                  { return p.height }
func (p *Pipeline)Line() int                    { return p.line }
func (p *Pipeline)Inputs() []quality.Input      { return p.qinputs }
func (p *Pipeline)PreviousOutput() *raster.Line { return p.prev }
func (p *Pipeline)Verbose() int                 { return p.Config.Verbosity }

func (p *Pipeline)Open(path string) (raster.Dataset, error) { return p.store.Open(path) }

func (p *Pipeline)State() State { return p.state }

// Run processes every line, top to bottom, then runs the repair pass
// if a sieve threshold is set, and closes everything.
func (p *Pipeline)Run() error {
	if p.state != Idle {
		return fmt.Errorf("pipeline is %s, can only run once", p.state)
	}

	if err := p.run(); err != nil {
		if cerr := p.Close(); cerr != nil {
			log.Printf("close after failure: %v\n", cerr)
		}
		return err
	}

	return p.Close()
}

func (p *Pipeline)run() error {
	p.state = Streaming
	for y:=0; y<p.height; y++ {
		if err := p.runLine(y); err != nil {
			return err
		}
	}

	if p.Verbose() > 0 {
		p.Histogram.Report(log.Writer(), "Output Quality")
		if r, ok := p.selector.(interface{ Report(io.Writer) }); ok {
			r.Report(log.Writer())
		}
		log.Printf("Source usage: %v\n", &p.usage)
	}

	if p.Config.SourceSieveThreshold > 0 {
		p.state = Repairing
		if err := p.repair(); err != nil {
			return err
		}
	}

	if err := p.writePreviews(); err != nil {
		return err
	}

	p.state = Done
	return nil
}

// runLine composites line y: read every input, run each quality method
// (compute then merge), select, and write the results.
func (p *Pipeline)runLine(y int) error {
	p.line = y

	lines := make([]*raster.Line, len(p.inputs))
	for i, in := range p.inputs {
		l, err := in.ReadLine(y)
		if err != nil {
			return err
		}
		lines[i] = l
	}

	traces := []*PixelTrace{}
	for _, pos := range p.debug {
		if pos.Y == y && pos.X >= 0 && pos.X < p.width {
			traces = append(traces, newPixelTrace(pos, p.inputs))
		}
	}

	for _, m := range p.methods {
		if err := quality.ComputeStack(m, p.qinputs, lines); err != nil {
			return fmt.Errorf("line %d: %v", y, err)
		}
		for _, pt := range traces {
			pt.recordPhase(m.Name(), lines)
		}
		for i, in := range p.qinputs {
			quality.Merge(m, in, lines[i])
		}
		for _, pt := range traces {
			pt.recordMerge(lines)
		}
	}

	out := raster.NewLine(p.width, p.output.BandCount())
	p.selector.Select(lines, out)
	p.Histogram.Accumulate(out.Quality)
	for _, s := range out.Source {
		p.usage.Add(histogram.ScalarVal(int(s)))
	}

	for _, pt := range traces {
		pt.recordOutput(out)
		log.Printf("%s", pt)
	}

	if err := p.writeLine(y, out, lines); err != nil {
		return err
	}

	p.prev = out
	return nil
}

func (p *Pipeline)writeLine(y int, out *raster.Line, lines []*raster.Line) error {
	if err := p.output.WriteLine(y, out); err != nil {
		return err
	}

	if p.trace != nil {
		tl := raster.NewLine(p.width, 1)
		for x, s := range out.Source {
			tl.Bands[0][x] = float32(s)
		}
		if err := p.trace.WriteLine(y, tl); err != nil {
			return err
		}
	}

	if p.qualityOut != nil {
		ql := raster.NewLine(p.width, len(lines)+1)
		copy(ql.Bands[0], out.Quality)
		for i, l := range lines {
			copy(ql.Bands[i+1], l.Quality)
		}
		if err := p.qualityOut.WriteLine(y, ql); err != nil {
			return err
		}
	}

	if p.qualityGrid != nil {
		p.qualityGrid.SetRow(y, out.Quality)
	}
	if p.sourceGrid != nil {
		p.sourceGrid.SetRow(y, out.Source)
	}

	return nil
}

func (p *Pipeline)writePreviews() error {
	if p.qualityGrid != nil {
		if p.Verbose() > 0 {
			log.Printf("quality preview: %s\n", p.qualityGrid.Stats())
		}
		var err error
		if strings.ToLower(filepath.Ext(p.Config.QualityPreview)) == ".hdr" {
			err = p.qualityGrid.WriteToHDR(p.Config.QualityPreview)
		} else if p.Config.PreviewTonemapper != "" {
			err = p.qualityGrid.ToImgTonemapped("quality", p.Config.QualityPreview, p.Config.PreviewTonemapper)
		} else {
			err = p.qualityGrid.ToImg("quality", p.Config.QualityPreview)
		}
		if err != nil {
			return err
		}
	}

	if p.sourceGrid != nil {
		if err := p.sourceGrid.ToImg("sources", p.Config.SourcePreview, len(p.inputs), previewMaxWidth); err != nil {
			return err
		}
	}

	return nil
}

// Close releases the inputs, finishes the outputs, and closes any
// quality method holding files open. It returns the first error seen.
func (p *Pipeline)Close() error {
	closers := []io.Closer{}
	for _, m := range p.methods {
		if c, ok := m.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	for _, in := range p.inputs {
		closers = append(closers, in)
	}
	for _, ds := range []raster.Dataset{p.output, p.trace, p.qualityOut} {
		if ds != nil {
			closers = append(closers, ds)
		}
	}

	var first error
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}

	p.methods, p.inputs, p.qinputs = nil, nil, nil
	p.output, p.trace, p.qualityOut = nil, nil, nil
	return first
}
