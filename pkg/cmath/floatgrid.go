package cmath

import(
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"sort"

	"github.com/fogleman/gg"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
)

// A FloatGrid is a grid of floats, with some operations
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

func (fg *FloatGrid)Set(x, y int, v float64) { fg.values[fg.stride*y + x] = v }
func (fg *FloatGrid)Get(x, y int) float64    { return fg.values[fg.stride*y + x] }
func (fg *FloatGrid)Dx() int                 { return fg.stride }
func (fg *FloatGrid)Dy() int                 { return len(fg.values) / fg.stride }

// SetRow copies a scanline of float32s into row y.
func (fg *FloatGrid)SetRow(y int, row []float32) {
	for x:=0; x<fg.stride && x<len(row); x++ {
		fg.values[fg.stride*y + x] = float64(row[x])
	}
}

// FindValuesAtPercentile returns the values at the two percentiles
// (0.0-1.0), looking only at values that are not rejects (< 0).
func (fg *FloatGrid)FindValuesAtPercentile(minPrct, maxPrct float64) (float64, float64) {
	vals := []float64{}
	for _, v := range fg.values {
		if v >= 0.0 {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0, 0
	}

	sort.Float64s(vals)
	return vals[RankIndex(len(vals), minPrct)], vals[RankIndex(len(vals), maxPrct)]
}

func (fg *FloatGrid)Stats() string {
	min := math.MaxFloat64
	max := -1.0  * min

	for i:=0 ; i<len(fg.values) ; i++ {
		if fg.values[i] > max { max = fg.values[i] }
		if fg.values[i] < min { min = fg.values[i] }
	}
	return fmt.Sprintf("fg[%dx%d, vals{%f,%f}]", fg.Dx(), fg.Dy(), min, max)
}

// ToImg saves a simple grayscale, stretched over the 1%-99% range of
// non-reject values and gamma scaled to look normal to a human. Rejects
// are drawn in red.
func (fg *FloatGrid)ToImg(title, filename string) error {
	min, max := fg.FindValuesAtPercentile(0.01, 0.99)
	if max <= min {
		max = min + 1
	}

	img := image.NewRGBA64(image.Rectangle{Max:image.Point{fg.Dx(), fg.Dy()}})
	for x:=0; x<fg.Dx(); x++ {
		for y:=0; y<fg.Dy(); y++ {
			v := fg.Get(x,y)
			if v < 0 {
				img.Set(x, y, color.RGBA64{0xFFFF, 0, 0, 0xFFFF})
				continue
			}
			gray := GammaExpand_F64(clamp01((v - min) / (max - min)))
			col := color.RGBA64{uint16(gray * 65535.0), uint16(gray * 65535.0), uint16(gray * 65535.0), 0xFFFF}
			img.Set(x, y, col)
		}
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,1,0)
	dc.DrawString(title, 10, 20)
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("save png '%s': %v", filename, err)
	}
	return nil
}

// hdrGrid implements hdr.Image, so the grid can go straight into an
// HDR encoder. Rejects come out black.
type hdrGrid struct {
	*FloatGrid
}

func (g hdrGrid)ColorModel() color.Model       { return hdrcolor.RGBModel }
func (g hdrGrid)Bounds() image.Rectangle       { return image.Rect(0, 0, g.Dx(), g.Dy()) }
func (g hdrGrid)At(x, y int) color.Color       { return g.HDRAt(x,y) }
func (g hdrGrid)Size() int                     { return g.Dx() * g.Dy() }

func (g hdrGrid)HDRAt(x, y int) hdrcolor.Color {
	v := g.Get(x, y)
	if v < 0 {
		v = 0
	}
	return hdrcolor.RGB{R:v, G:v, B:v}
}

// WriteToHDR outputs the grid as a Radiance HDR image, keeping the
// full float range.
func (fg *FloatGrid)WriteToHDR(filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("FloatGrid.WriteToHDR, open+w '%s': %v", filename, err)
	}
	defer writer.Close()

	if err := rgbe.Encode(writer, hdrGrid{fg}); err != nil {
		return fmt.Errorf("FloatGrid.WriteToHDR, encoding RGBE file: %v", err)
	}
	return nil
}
