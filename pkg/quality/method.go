// Package quality holds the per-pixel quality heuristics used to rank
// the inputs of a composite, and the protocol for folding them together.
package quality

import(
	"fmt"
	"strconv"

	"github.com/planetlabs/plcompositor/pkg/raster"
)

// An Input is the read-only view of one input raster that quality
// methods get to see.
type Input interface {
	Index() int                               // 0-based ordinal, stable for the run
	Filename() string
	BandCount() int
	HasCloudMask() bool
	Metric(name string) (float64, bool)       // Per-scene scalars, e.g. sun elevation
	Param(name string) (string, bool)         // Per-input string params, e.g. a sidecar path
}

// A Context is what the pipeline exposes to quality methods.
type Context interface {
	Width() int
	Height() int
	Line() int                                // Line currently being processed
	Inputs() []Input
	PreviousOutput() *raster.Line             // nil on the first line
	Open(path string) (raster.Dataset, error)
	Verbose() int
}

// A Method computes a quality for every pixel of one input's line, and
// writes it into line.NewQuality. Values are either Reject (-1) or
// something comparable, usually in [0,1].
type Method interface {
	Name() string
	ComputeQuality(in Input, line *raster.Line) error
}

// A StackMethod needs to see all the inputs' lines at once.
type StackMethod interface {
	ComputeStackQuality(lines []*raster.Line) error
}

// A Merger replaces the default multiplicative merge.
type Merger interface {
	MergeQuality(in Input, line *raster.Line)
}

// A Factory builds a configured Method. It should reject bad or
// missing parameters up front, so runs fail before any line is read.
type Factory func(ctx Context, params Params) (Method, error)

// ComputeStack runs m over all inputs for the current line, preferring
// its stack-wide form if it has one.
func ComputeStack(m Method, inputs []Input, lines []*raster.Line) error {
	if sm, ok := m.(StackMethod); ok {
		if err := sm.ComputeStackQuality(lines); err != nil {
			return fmt.Errorf("%s: %v", m.Name(), err)
		}
		return nil
	}

	for i, in := range inputs {
		if err := m.ComputeQuality(in, lines[i]); err != nil {
			return fmt.Errorf("%s, input %d: %v", m.Name(), in.Index(), err)
		}
	}
	return nil
}

// Merge folds NewQuality into Quality for one input, via the method's
// own merge if it has one.
func Merge(m Method, in Input, line *raster.Line) {
	if mm, ok := m.(Merger); ok {
		mm.MergeQuality(in, line)
		return
	}
	DefaultMerge(line)
}

// DefaultMerge multiplies the new quality in. A reject on either side
// stays a reject. NewQuality is left at 1.0 for the next method.
func DefaultMerge(line *raster.Line) {
	for x := range line.Quality {
		if line.Quality[x] < 0 || line.NewQuality[x] < 0 {
			line.Quality[x] = raster.Reject
		} else {
			line.Quality[x] *= line.NewQuality[x]
		}
	}
	line.ResetNewQuality()
}

// OverwriteMerge is for methods whose new quality already includes the
// old one.
func OverwriteMerge(line *raster.Line) {
	copy(line.Quality, line.NewQuality)
	line.ResetNewQuality()
}

// Params are the name/value settings for one method instance.
type Params map[string]string

func (p Params)String(name, def string) string {
	if v, exists := p[name]; exists {
		return v
	}
	return def
}

func (p Params)Float(name string, def float64) (float64, error) {
	v, exists := p[name]
	if !exists || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, SetupErrorf("parameter %s='%s' is not a number", name, v)
	}
	return f, nil
}

// SetupError means the run is misconfigured; it is always reported
// before any line is processed.
type SetupError struct {
	Msg string
}

func (e *SetupError)Error() string { return e.Msg }

func SetupErrorf(format string, args ...interface{}) error {
	return &SetupError{Msg: fmt.Sprintf(format, args...)}
}
