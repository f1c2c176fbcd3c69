package raster

import(
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

// FileStore opens and creates datasets on disk, picking a format
// from the file extension. With Verbosity > 0 it logs each raster it
// finishes writing.
type FileStore struct {
	Verbosity int
}

func (fs FileStore)Open(path string) (Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff": return openTIFF(path)
	case ".bil", ".raw":  return openENVI(path)
	default:
		return nil, &IOError{Op:"open", Path:path, Line:-1, Err:fmt.Errorf("unknown raster format")}
	}
}

func (fs FileStore)Create(path string, spec Spec) (Dataset, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff": return createTIFF(path, spec, fs.Verbosity)
	case ".bil", ".raw":  return createENVI(path, spec)
	default:
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("unknown raster format")}
	}
}

// tiffDataset is decoded into memory on open, and encoded from memory
// when closed (if it was created for writing).
type tiffDataset struct {
	*MemDataset
	writable bool
	closed   bool
	verbose  int
}

func (d *tiffDataset)WriteLine(y int, l *Line) error {
	if !d.writable {
		return &IOError{Op:"write", Path:d.Path, Line:y, Err:fmt.Errorf("opened read-only")}
	}
	return d.MemDataset.WriteLine(y, l)
}

func openTIFF(path string) (Dataset, error) {
	reader, err := os.Open(path)
	if err != nil {
		return nil, &IOError{Op:"open+r", Path:path, Line:-1, Err:err}
	}
	defer reader.Close()

	img, err := tiff.Decode(reader)
	if err != nil {
		return nil, &IOError{Op:"tiff decode", Path:path, Line:-1, Err:err}
	}

	return &tiffDataset{MemDataset: imageToDataset(path, img)}, nil
}

// imageToDataset unpacks an image into bands. Single channel images
// become one band; everything else becomes RGB plus alpha.
func imageToDataset(path string, img image.Image) *MemDataset {
	b := img.Bounds()
	spec := Spec{Width:b.Dx(), Height:b.Dy(), Kind:Unsigned16}

	switch img.(type) {
	case *image.Gray, *image.Gray16:
		spec.Bands = 1
	default:
		spec.Bands = 3
		spec.Alpha = true
	}

	ds := NewMemDataset(path, spec)

	for y:=0; y<spec.Height; y++ {
		for x:=0; x<spec.Width; x++ {
			px, py := x + b.Min.X, y + b.Min.Y
			switch src := img.(type) {
			case *image.Gray:
				ds.Set(0, x, y, float32(src.GrayAt(px, py).Y))
			case *image.Gray16:
				ds.Set(0, x, y, float32(src.Gray16At(px, py).Y))
			case *image.NRGBA:
				c := src.NRGBAAt(px, py)
				ds.Set(0, x, y, float32(c.R))
				ds.Set(1, x, y, float32(c.G))
				ds.Set(2, x, y, float32(c.B))
				ds.SetAlpha(x, y, c.A)
			case *image.RGBA:
				c := color.NRGBAModel.Convert(src.RGBAAt(px, py)).(color.NRGBA)
				ds.Set(0, x, y, float32(c.R))
				ds.Set(1, x, y, float32(c.G))
				ds.Set(2, x, y, float32(c.B))
				ds.SetAlpha(x, y, c.A)
			default:
				c := color.NRGBA64Model.Convert(img.At(px, py)).(color.NRGBA64)
				ds.Set(0, x, y, float32(c.R))
				ds.Set(1, x, y, float32(c.G))
				ds.Set(2, x, y, float32(c.B))
				ds.SetAlpha(x, y, uint8(c.A >> 8))
			}
		}
	}

	return ds
}

func createTIFF(path string, spec Spec, verbose int) (Dataset, error) {
	if spec.Kind != Unsigned16 {
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("tiff writer only does %s, not %s", Unsigned16, spec.Kind)}
	}
	if spec.Bands != 1 && spec.Bands != 3 {
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("tiff writer needs 1 or 3 bands, not %d", spec.Bands)}
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("bad spec %s", spec)}
	}
	return &tiffDataset{MemDataset: NewMemDataset(path, spec), writable: true, verbose: verbose}, nil
}

func (d *tiffDataset)Close() error {
	if !d.writable || d.closed {
		return nil
	}
	d.closed = true

	writer, err := os.Create(d.Path)
	if err != nil {
		return &IOError{Op:"open+w", Path:d.Path, Line:-1, Err:err}
	}
	defer writer.Close()

	if err := tiff.Encode(writer, d.ToImage(), &tiff.Options{Compression: tiff.Deflate, Predictor: true}); err != nil {
		return &IOError{Op:"tiff encode", Path:d.Path, Line:-1, Err:err}
	}

	if d.verbose > 0 {
		log.Printf("wrote %s (%s)\n", d.Path, d.Spec)
	}
	return nil
}

// ToImage renders the dataset as a 16 bit image: Gray16 for a single
// band with no alpha, NRGBA64 otherwise.
func (ds *MemDataset)ToImage() image.Image {
	r := image.Rect(0, 0, ds.Spec.Width, ds.Spec.Height)

	if ds.Spec.Bands == 1 && !ds.Spec.Alpha {
		img := image.NewGray16(r)
		for y:=0; y<r.Dy(); y++ {
			for x:=0; x<r.Dx(); x++ {
				img.SetGray16(x, y, color.Gray16{Y:clamp16(ds.At(0, x, y))})
			}
		}
		return img
	}

	img := image.NewNRGBA64(r)
	for y:=0; y<r.Dy(); y++ {
		for x:=0; x<r.Dx(); x++ {
			var c color.NRGBA64
			c.R = clamp16(ds.At(0, x, y))
			if ds.Spec.Bands >= 3 {
				c.G = clamp16(ds.At(1, x, y))
				c.B = clamp16(ds.At(2, x, y))
			} else {
				c.G, c.B = c.R, c.R
			}
			c.A = uint16(ds.AlphaAt(x, y)) * 257
			img.SetNRGBA64(x, y, c)
		}
	}
	return img
}

func clamp16(v float32) uint16 {
	switch {
	case v <= 0:       return 0
	case v >= 65535:   return 65535
	default:           return uint16(math.Round(float64(v)))
	}
}
