package raster

import(
	"fmt"
	"sync"
)

// A MemDataset keeps the whole raster in memory, one float32 grid per band.
type MemDataset struct {
	Path      string
	Spec      Spec

	bands [][]float32
	alpha   []uint8
}

func NewMemDataset(path string, spec Spec) *MemDataset {
	ds := MemDataset{
		Path:  path,
		Spec:  spec,
		bands: make([][]float32, spec.Bands),
	}
	for i := range ds.bands {
		ds.bands[i] = make([]float32, spec.Width * spec.Height)
	}
	if spec.Alpha {
		ds.alpha = make([]uint8, spec.Width * spec.Height)
	}
	return &ds
}

func (ds *MemDataset)Width() int     { return ds.Spec.Width }
func (ds *MemDataset)Height() int    { return ds.Spec.Height }
func (ds *MemDataset)BandCount() int { return ds.Spec.Bands }
func (ds *MemDataset)HasAlpha() bool { return ds.Spec.Alpha }
func (ds *MemDataset)Close() error   { return nil }

func (ds *MemDataset)String() string {
	return fmt.Sprintf("MemDataset{%s: %s}", ds.Path, ds.Spec)
}

// At and Set give direct pixel access; handy for tests and encoders.
func (ds *MemDataset)At(band, x, y int) float32     { return ds.bands[band][y*ds.Spec.Width + x] }
func (ds *MemDataset)Set(band, x, y int, v float32) { ds.bands[band][y*ds.Spec.Width + x] = v }

func (ds *MemDataset)AlphaAt(x, y int) uint8 {
	if ds.alpha == nil {
		return Opaque
	}
	return ds.alpha[y*ds.Spec.Width + x]
}

func (ds *MemDataset)SetAlpha(x, y int, a uint8) {
	if ds.alpha != nil {
		ds.alpha[y*ds.Spec.Width + x] = a
	}
}

func (ds *MemDataset)ReadLine(y int, l *Line) error {
	if err := checkLine("read", ds.Path, ds, y, l); err != nil {
		return err
	}
	off := y * ds.Spec.Width
	for b := range ds.bands {
		copy(l.Band(b), ds.bands[b][off:off+ds.Spec.Width])
	}
	if ds.alpha != nil {
		copy(l.Alpha, ds.alpha[off:off+ds.Spec.Width])
	} else {
		for x := range l.Alpha {
			l.Alpha[x] = Opaque
		}
	}
	return nil
}

func (ds *MemDataset)WriteLine(y int, l *Line) error {
	if err := checkLine("write", ds.Path, ds, y, l); err != nil {
		return err
	}
	if len(l.Bands) < len(ds.bands) {
		return &IOError{Op:"write", Path:ds.Path, Line:y, Err:fmt.Errorf("line has %d bands, need %d", len(l.Bands), len(ds.bands))}
	}
	off := y * ds.Spec.Width
	for b := range ds.bands {
		copy(ds.bands[b][off:off+ds.Spec.Width], l.Bands[b])
	}
	if ds.alpha != nil {
		copy(ds.alpha[off:off+ds.Spec.Width], l.Alpha)
	}
	return nil
}

// A MemStore holds datasets by name. It never touches the filesystem.
type MemStore struct {
	sync.Mutex
	Datasets map[string]*MemDataset
}

func NewMemStore() *MemStore {
	return &MemStore{Datasets: map[string]*MemDataset{}}
}

// Put registers an existing dataset, so it can be opened by path.
func (s *MemStore)Put(ds *MemDataset) {
	s.Lock()
	defer s.Unlock()
	s.Datasets[ds.Path] = ds
}

func (s *MemStore)Get(path string) *MemDataset {
	s.Lock()
	defer s.Unlock()
	return s.Datasets[path]
}

func (s *MemStore)Open(path string) (Dataset, error) {
	if ds := s.Get(path); ds != nil {
		return ds, nil
	}
	return nil, &IOError{Op:"open", Path:path, Line:-1, Err:fmt.Errorf("no such dataset")}
}

func (s *MemStore)Create(path string, spec Spec) (Dataset, error) {
	if spec.Width <= 0 || spec.Height <= 0 || spec.Bands <= 0 {
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("bad spec %s", spec)}
	}
	ds := NewMemDataset(path, spec)
	s.Put(ds)
	return ds, nil
}
