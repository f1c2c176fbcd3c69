package raster

import(
	"fmt"
)

const(
	// Pixels with alpha below this are treated as nodata by quality methods.
	AlphaThreshold = 128

	Opaque      uint8 = 255
	Transparent uint8 = 0

	// Quality value that excludes a pixel from selection.
	Reject float32 = -1.0
)

// A Line holds one scanline from one raster, plus the per-pixel
// working arrays the compositor needs. All arrays have length Width.
type Line struct {
	Width        int

	Bands      [][]float32   // One slice per band, grown on demand by Band()
	Alpha        []uint8     // 255 unless the dataset has an alpha band
	Cloud        []uint16    // Only present if the input has a cloud mask
	Quality      []float32   // Persistent quality, accumulated across methods
	NewQuality   []float32   // Scratch quality, written by one method and consumed by one merge
	Source       []uint16    // 0 means no source; otherwise the 1-based input ordinal
}

func NewLine(width, bandCount int) *Line {
	l := Line{
		Width:      width,
		Bands:      make([][]float32, bandCount),
		Alpha:      make([]uint8, width),
		Quality:    make([]float32, width),
		NewQuality: make([]float32, width),
		Source:     make([]uint16, width),
	}
	for i := range l.Bands {
		l.Bands[i] = make([]float32, width)
	}
	for x:=0; x<width; x++ {
		l.Alpha[x] = Opaque
		l.Quality[x] = 1.0
		l.NewQuality[x] = 1.0
	}
	return &l
}

func (l *Line)BandCount() int { return len(l.Bands) }
func (l *Line)HasCloud() bool { return l.Cloud != nil }

// Band returns the values for band i. Asking for the band just past
// the end appends a zeroed band; anything further out is a bug.
func (l *Line)Band(i int) []float32 {
	if i == len(l.Bands) {
		l.Bands = append(l.Bands, make([]float32, l.Width))
	} else if i < 0 || i > len(l.Bands) {
		panic(fmt.Sprintf("raster.Line: band %d requested, only have %d", i, len(l.Bands)))
	}
	return l.Bands[i]
}

// EnableCloud allocates the cloud mask array, if not already there.
func (l *Line)EnableCloud() []uint16 {
	if l.Cloud == nil {
		l.Cloud = make([]uint16, l.Width)
	}
	return l.Cloud
}

func (l *Line)ResetNewQuality() {
	for x := range l.NewQuality {
		l.NewQuality[x] = 1.0
	}
}

// SetTransparent marks pixel x as having no selected source.
func (l *Line)SetTransparent(x int) {
	l.Alpha[x] = Transparent
	l.Source[x] = 0
	l.Quality[x] = Reject
	for b := range l.Bands {
		l.Bands[b][x] = 0
	}
}

// CopyPixel takes the band values at x from src, and marks the pixel
// opaque. Missing bands in src read as zero.
func (l *Line)CopyPixel(x int, src *Line) {
	for b := range l.Bands {
		if b < len(src.Bands) {
			l.Bands[b][x] = src.Bands[b][x]
		} else {
			l.Bands[b][x] = 0
		}
	}
	l.Alpha[x] = Opaque
}

func (l *Line)String() string {
	return fmt.Sprintf("Line[w=%d, bands=%d, cloud=%v]", l.Width, len(l.Bands), l.HasCloud())
}
