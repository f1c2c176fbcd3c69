package compose

import(
	"log"

	"github.com/planetlabs/plcompositor/pkg/cmath"
	"github.com/planetlabs/plcompositor/pkg/raster"
)

// repair sieves the source trace in place, then rebuilds the output by
// copying each pixel from the input the sieved trace names. Qualities,
// the histogram and the diagnostic rasters are left as they were.
func (p *Pipeline)repair() error {
	grid, err := p.sieveSourceTrace()
	if err != nil {
		return err
	}
	if p.sourceGrid != nil {
		p.sourceGrid = grid
	}

	for y:=0; y<p.height; y++ {
		if err := p.rebuildLine(y); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline)sieveSourceTrace() (*cmath.LabelGrid, error) {
	grid := cmath.NewLabelGrid(p.width, p.height)
	l := raster.NewLine(p.width, 1)

	for y:=0; y<p.height; y++ {
		if err := p.trace.ReadLine(y, l); err != nil {
			return nil, err
		}
		for x, v := range l.Bands[0] {
			grid.Set(x, y, uint16(v))
		}
	}

	changed := grid.Sieve(p.Config.SourceSieveThreshold)
	if p.Verbose() > 0 {
		log.Printf("source sieve (threshold %d) reassigned %d pixels\n", p.Config.SourceSieveThreshold, changed)
	}

	for y:=0; y<p.height; y++ {
		for x, v := range grid.Row(y) {
			l.Bands[0][x] = float32(v)
		}
		if err := p.trace.WriteLine(y, l); err != nil {
			return nil, err
		}
	}

	return &grid, nil
}

func (p *Pipeline)rebuildLine(y int) error {
	p.line = y

	tl := raster.NewLine(p.width, 1)
	if err := p.trace.ReadLine(y, tl); err != nil {
		return err
	}

	lines := make([]*raster.Line, len(p.inputs))
	for i, in := range p.inputs {
		l, err := in.ReadLine(y)
		if err != nil {
			return err
		}
		lines[i] = l
	}

	out := raster.NewLine(p.width, p.output.BandCount())
	for x, v := range tl.Bands[0] {
		s := int(v)
		if s <= 0 || s > len(lines) {
			out.SetTransparent(x)
			continue
		}
		out.CopyPixel(x, lines[s-1])
		out.Source[x] = uint16(s)
	}

	return p.output.WriteLine(y, out)
}
