package raster

import(
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// An enviDataset is a flat float32 file in band-interleaved-by-line
// order, with a small text header alongside it (foo.bil -> foo.hdr).
// Lines are read and written in place, so it can be streamed.
type enviDataset struct {
	path    string
	spec    Spec
	f      *os.File
	buf   []byte
}

func HeaderFilename(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".hdr"
}

func createENVI(path string, spec Spec) (Dataset, error) {
	if spec.Alpha {
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("envi writer has no alpha band")}
	}
	if spec.Width <= 0 || spec.Height <= 0 || spec.Bands <= 0 {
		return nil, &IOError{Op:"create", Path:path, Line:-1, Err:fmt.Errorf("bad spec %s", spec)}
	}
	spec.Kind = Float32

	f, err := os.Create(path)
	if err != nil {
		return nil, &IOError{Op:"open+w", Path:path, Line:-1, Err:err}
	}
	// Size the file up front, so lines can be written in any order
	if err := f.Truncate(int64(spec.Width * spec.Height * spec.Bands * 4)); err != nil {
		f.Close()
		return nil, &IOError{Op:"truncate", Path:path, Line:-1, Err:err}
	}
	if err := os.WriteFile(HeaderFilename(path), []byte(enviHeader(spec)), 0644); err != nil {
		f.Close()
		return nil, &IOError{Op:"open+w", Path:HeaderFilename(path), Line:-1, Err:err}
	}

	return &enviDataset{path:path, spec:spec, f:f, buf:make([]byte, spec.Width*4)}, nil
}

func enviHeader(spec Spec) string {
	str := "ENVI\n"
	str += "description = {plcompositor}\n"
	str += fmt.Sprintf("samples = %d\n", spec.Width)
	str += fmt.Sprintf("lines = %d\n", spec.Height)
	str += fmt.Sprintf("bands = %d\n", spec.Bands)
	str += "header offset = 0\n"
	str += "file type = ENVI Standard\n"
	str += "data type = 4\n"
	str += "interleave = bil\n"
	str += "byte order = 0\n"
	if len(spec.BandNames) > 0 {
		str += "band names = {" + strings.Join(spec.BandNames, ", ") + "}\n"
	}
	return str
}

func openENVI(path string) (Dataset, error) {
	spec, err := readENVIHeader(HeaderFilename(path))
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &IOError{Op:"open+rw", Path:path, Line:-1, Err:err}
	}
	return &enviDataset{path:path, spec:spec, f:f, buf:make([]byte, spec.Width*4)}, nil
}

func readENVIHeader(filename string) (Spec, error) {
	spec := Spec{Kind:Float32}

	f, err := os.Open(filename)
	if err != nil {
		return spec, &IOError{Op:"open+r", Path:filename, Line:-1, Err:err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		k, v, found := strings.Cut(scanner.Text(), "=")
		if !found {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)

		switch k {
		case "samples":    spec.Width, err = strconv.Atoi(v)
		case "lines":      spec.Height, err = strconv.Atoi(v)
		case "bands":      spec.Bands, err = strconv.Atoi(v)
		case "data type":
			if v != "4" { err = fmt.Errorf("data type %s unsupported, need 4 (float32)", v) }
		case "interleave":
			if v != "bil" { err = fmt.Errorf("interleave %s unsupported, need bil", v) }
		case "byte order":
			if v != "0" { err = fmt.Errorf("byte order %s unsupported", v) }
		}
		if err != nil {
			return spec, &IOError{Op:"envi header", Path:filename, Line:-1, Err:fmt.Errorf("%s: %v", k, err)}
		}
	}
	if err := scanner.Err(); err != nil {
		return spec, &IOError{Op:"envi header", Path:filename, Line:-1, Err:err}
	}
	if spec.Width <= 0 || spec.Height <= 0 || spec.Bands <= 0 {
		return spec, &IOError{Op:"envi header", Path:filename, Line:-1, Err:fmt.Errorf("incomplete: %s", spec)}
	}
	return spec, nil
}

func (d *enviDataset)Width() int     { return d.spec.Width }
func (d *enviDataset)Height() int    { return d.spec.Height }
func (d *enviDataset)BandCount() int { return d.spec.Bands }
func (d *enviDataset)HasAlpha() bool { return false }

func (d *enviDataset)offset(y, band int) int64 {
	return int64(((y * d.spec.Bands) + band) * d.spec.Width * 4)
}

func (d *enviDataset)ReadLine(y int, l *Line) error {
	if err := checkLine("read", d.path, d, y, l); err != nil {
		return err
	}
	for b:=0; b<d.spec.Bands; b++ {
		if _, err := d.f.ReadAt(d.buf, d.offset(y, b)); err != nil {
			return &IOError{Op:"read", Path:d.path, Line:y, Err:err}
		}
		vals := l.Band(b)
		for x := range vals {
			vals[x] = math.Float32frombits(binary.LittleEndian.Uint32(d.buf[x*4:]))
		}
	}
	for x := range l.Alpha {
		l.Alpha[x] = Opaque
	}
	return nil
}

func (d *enviDataset)WriteLine(y int, l *Line) error {
	if err := checkLine("write", d.path, d, y, l); err != nil {
		return err
	}
	if len(l.Bands) < d.spec.Bands {
		return &IOError{Op:"write", Path:d.path, Line:y, Err:fmt.Errorf("line has %d bands, need %d", len(l.Bands), d.spec.Bands)}
	}
	for b:=0; b<d.spec.Bands; b++ {
		for x, v := range l.Bands[b] {
			binary.LittleEndian.PutUint32(d.buf[x*4:], math.Float32bits(v))
		}
		if _, err := d.f.WriteAt(d.buf, d.offset(y, b)); err != nil {
			return &IOError{Op:"write", Path:d.path, Line:y, Err:err}
		}
	}
	return nil
}

func (d *enviDataset)Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	if err != nil {
		return &IOError{Op:"close", Path:d.path, Line:-1, Err:err}
	}
	return nil
}
