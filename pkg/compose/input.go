package compose

import(
	"fmt"
	"log"

	"github.com/planetlabs/plcompositor/pkg/raster"
)

// Metric names that are filled in from the input file itself, when the
// configuration doesn't supply them.
const(
	MetricAcquisitionDate = "acquisition_date"   // Days since 1970, from the EXIF DateTime
)

// An Input is one raster in the stack, plus its optional cloud mask.
type Input struct {
	Def        InputDef

	index      int
	ds         raster.Dataset
	cloud      raster.Dataset
	exifDays  *float64  // nil until looked up
	exifErr    error
}

func openInput(store raster.Store, index int, def InputDef) (*Input, error) {
	in := Input{Def:def, index:index}

	ds, err := store.Open(def.Filename)
	if err != nil {
		return nil, err
	}
	in.ds = ds

	if def.CloudMask != "" {
		cloud, err := store.Open(def.CloudMask)
		if err != nil {
			ds.Close()
			return nil, err
		}
		in.cloud = cloud
	}

	return &in, nil
}

func (in *Input)Index() int         { return in.index }
func (in *Input)Filename() string   { return in.Def.Filename }
func (in *Input)BandCount() int     { return in.ds.BandCount() }
func (in *Input)HasCloudMask() bool { return in.cloud != nil }

func (in *Input)Metric(name string) (float64, bool) {
	if v, exists := in.Def.Metrics[name]; exists {
		return v, true
	}
	if name == MetricAcquisitionDate {
		return in.acquisitionDays()
	}
	return 0, false
}

func (in *Input)acquisitionDays() (float64, bool) {
	if in.exifDays == nil && in.exifErr == nil {
		t, err := raster.AcquisitionTime(in.Def.Filename)
		if err != nil {
			in.exifErr = err
			log.Printf("%s: no acquisition date: %v\n", in.Def.Filename, err)
		} else {
			days := float64(t.Unix()) / 86400.0
			in.exifDays = &days
		}
	}
	if in.exifDays == nil {
		return 0, false
	}
	return *in.exifDays, true
}

func (in *Input)Param(name string) (string, bool) {
	v, exists := in.Def.Params[name]
	return v, exists
}

// checkSize makes sure the input and its mask match the given size.
func (in *Input)checkSize(w, h int) error {
	if in.ds.Width() != w || in.ds.Height() != h {
		return fmt.Errorf("input %s is %dx%d, want %dx%d", in.Def.Filename, in.ds.Width(), in.ds.Height(), w, h)
	}
	if in.cloud != nil && (in.cloud.Width() != w || in.cloud.Height() != h) {
		return fmt.Errorf("cloud mask %s is %dx%d, want %dx%d", in.Def.CloudMask, in.cloud.Width(), in.cloud.Height(), w, h)
	}
	return nil
}

// ReadLine returns a fresh line holding row y of the input, with the
// cloud mask filled in if there is one.
func (in *Input)ReadLine(y int) (*raster.Line, error) {
	l := raster.NewLine(in.ds.Width(), in.ds.BandCount())
	if err := in.ds.ReadLine(y, l); err != nil {
		return nil, err
	}

	if in.cloud != nil {
		mask := raster.NewLine(in.cloud.Width(), in.cloud.BandCount())
		if err := in.cloud.ReadLine(y, mask); err != nil {
			return nil, err
		}
		cloud := l.EnableCloud()
		for x, v := range mask.Bands[0] {
			cloud[x] = uint16(v)
		}
	}

	return l, nil
}

func (in *Input)Close() error {
	var err error
	if in.cloud != nil {
		err = in.cloud.Close()
	}
	if err2 := in.ds.Close(); err2 != nil {
		err = err2
	}
	return err
}

func (in *Input)String() string {
	str := fmt.Sprintf("input %d: %s", in.index+1, in.Def.Filename)
	if in.cloud != nil {
		str += fmt.Sprintf(" (cloud mask %s)", in.Def.CloudMask)
	}
	return str
}
