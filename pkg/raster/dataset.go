package raster

import(
	"fmt"
)

// SampleKind says what a dataset's samples should be stored as.
type SampleKind int

const(
	Unsigned16 SampleKind = iota
	Float32
)

func (k SampleKind)String() string {
	switch k {
	case Unsigned16: return "uint16"
	case Float32:    return "float32"
	default:         return fmt.Sprintf("SampleKind(%d)", int(k))
	}
}

// A Spec describes a dataset to be created.
type Spec struct {
	Width      int
	Height     int
	Bands      int
	Alpha      bool
	Kind       SampleKind
	BandNames  []string  // Optional
}

func (s Spec)String() string {
	return fmt.Sprintf("%dx%d, %d bands (%s), alpha=%v", s.Width, s.Height, s.Bands, s.Kind, s.Alpha)
}

// A Dataset is a raster that can be read and written a scanline at a time.
type Dataset interface {
	Width() int
	Height() int
	BandCount() int
	HasAlpha() bool

	// ReadLine fills in the bands and alpha of l with row y.
	ReadLine(y int, l *Line) error

	// WriteLine stores the bands (and alpha, if the dataset has it) of l as row y.
	WriteLine(y int, l *Line) error

	Close() error
}

// A Store opens and creates datasets by path.
type Store interface {
	Open(path string) (Dataset, error)
	Create(path string, spec Spec) (Dataset, error)
}

// IOError is returned when reading or writing a raster fails partway
// through processing.
type IOError struct {
	Op    string
	Path  string
	Line  int
	Err   error
}

func (e *IOError)Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("%s '%s': %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s '%s' line %d: %v", e.Op, e.Path, e.Line, e.Err)
}

func (e *IOError)Unwrap() error { return e.Err }

func checkLine(op, path string, ds Dataset, y int, l *Line) error {
	if y < 0 || y >= ds.Height() {
		return &IOError{Op:op, Path:path, Line:y, Err:fmt.Errorf("out of range [0,%d)", ds.Height())}
	}
	if l.Width != ds.Width() {
		return &IOError{Op:op, Path:path, Line:y, Err:fmt.Errorf("line width %d, dataset width %d", l.Width, ds.Width())}
	}
	return nil
}
