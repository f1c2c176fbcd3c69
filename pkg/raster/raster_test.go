package raster

import(
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLineDefaults(t *testing.T) {
	l := NewLine(4, 2)
	if l.BandCount() != 2 || l.HasCloud() {
		t.Fatalf("unexpected shape: %s", l)
	}
	for x:=0; x<4; x++ {
		if l.Alpha[x] != Opaque || l.Quality[x] != 1.0 || l.NewQuality[x] != 1.0 || l.Source[x] != 0 {
			t.Errorf("pixel %d: alpha=%d q=%f nq=%f src=%d", x, l.Alpha[x], l.Quality[x], l.NewQuality[x], l.Source[x])
		}
	}
}

func TestLineBandGrowth(t *testing.T) {
	l := NewLine(3, 0)
	l.Band(0)[1] = 7
	l.Band(1)[2] = 9
	if l.BandCount() != 2 || l.Bands[0][1] != 7 || l.Bands[1][2] != 9 {
		t.Fatalf("band growth failed: %v", l.Bands)
	}

	defer func() {
		if recover() == nil {
			t.Errorf("expected panic asking for band 5 of 2")
		}
	}()
	l.Band(5)
}

func TestLineTransparentAndCopy(t *testing.T) {
	src := NewLine(2, 2)
	src.Bands[0][1], src.Bands[1][1] = 10, 20

	l := NewLine(2, 3)
	l.CopyPixel(1, src)
	if l.Bands[0][1] != 10 || l.Bands[1][1] != 20 || l.Bands[2][1] != 0 || l.Alpha[1] != Opaque {
		t.Errorf("CopyPixel: %v alpha=%d", l.Bands, l.Alpha[1])
	}

	l.SetTransparent(1)
	if l.Alpha[1] != Transparent || l.Source[1] != 0 || l.Quality[1] != Reject || l.Bands[0][1] != 0 {
		t.Errorf("SetTransparent: alpha=%d src=%d q=%f", l.Alpha[1], l.Source[1], l.Quality[1])
	}
}

func TestMemStore(t *testing.T) {
	s := NewMemStore()
	ds, err := s.Create("out", Spec{Width:3, Height:2, Bands:1, Alpha:true})
	if err != nil {
		t.Fatal(err)
	}

	l := NewLine(3, 1)
	l.Bands[0][0], l.Bands[0][2] = 5, 6
	l.Alpha[1] = Transparent
	if err := ds.WriteLine(1, l); err != nil {
		t.Fatal(err)
	}

	reopened, err := s.Open("out")
	if err != nil {
		t.Fatal(err)
	}
	got := NewLine(3, 0)
	if err := reopened.ReadLine(1, got); err != nil {
		t.Fatal(err)
	}
	if got.Bands[0][0] != 5 || got.Bands[0][2] != 6 || got.Alpha[1] != Transparent || got.Alpha[0] != Opaque {
		t.Errorf("read back %v alpha %v", got.Bands, got.Alpha)
	}

	if _, err := s.Open("nope"); err == nil {
		t.Errorf("expected error opening missing dataset")
	}
}

func TestReadLineErrors(t *testing.T) {
	ds := NewMemDataset("x", Spec{Width:3, Height:2, Bands:1})

	tests := []struct {
		name string
		y    int
		l   *Line
	}{
		{"negative line", -1, NewLine(3, 1)},
		{"past the end", 2, NewLine(3, 1)},
		{"wrong width", 0, NewLine(4, 1)},
	}
	for _, tc := range tests {
		err := ds.ReadLine(tc.y, tc.l)
		var ioErr *IOError
		if !errors.As(err, &ioErr) {
			t.Errorf("%s: expected IOError, got %v", tc.name, err)
		}
	}
}

func TestTIFFRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := FileStore{}

	tests := []struct {
		name  string
		spec  Spec
	}{
		{"gray16.tif", Spec{Width:4, Height:3, Bands:1}},
		{"rgba.tif",   Spec{Width:4, Height:3, Bands:3, Alpha:true}},
	}

	for _, tc := range tests {
		path := filepath.Join(dir, tc.name)
		ds, err := fs.Create(path, tc.spec)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		for y:=0; y<tc.spec.Height; y++ {
			l := NewLine(tc.spec.Width, tc.spec.Bands)
			for b:=0; b<tc.spec.Bands; b++ {
				for x:=0; x<tc.spec.Width; x++ {
					l.Bands[b][x] = float32(1000*b + 10*y + x)
				}
			}
			l.Alpha[0] = Transparent
			if err := ds.WriteLine(y, l); err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
		}
		if err := ds.Close(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}

		in, err := fs.Open(path)
		if err != nil {
			t.Fatalf("%s: reopen: %v", tc.name, err)
		}
		if in.Width() != tc.spec.Width || in.Height() != tc.spec.Height || in.BandCount() != tc.spec.Bands || in.HasAlpha() != tc.spec.Alpha {
			t.Fatalf("%s: reopened as %dx%d/%d alpha=%v", tc.name, in.Width(), in.Height(), in.BandCount(), in.HasAlpha())
		}
		l := NewLine(tc.spec.Width, 0)
		if err := in.ReadLine(2, l); err != nil {
			t.Fatal(err)
		}
		for b:=0; b<tc.spec.Bands; b++ {
			if got, want := l.Bands[b][3], float32(1000*b + 23); got != want {
				t.Errorf("%s: band %d: got %f, want %f", tc.name, b, got, want)
			}
		}
		if tc.spec.Alpha && (l.Alpha[0] != Transparent || l.Alpha[1] != Opaque) {
			t.Errorf("%s: alpha not kept: %v", tc.name, l.Alpha)
		}
		if err := in.WriteLine(0, l); err == nil {
			t.Errorf("%s: expected error writing to read-only tiff", tc.name)
		}
	}
}

func TestTIFFWriteLogging(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(orig)

	dir := t.TempDir()
	for _, verbosity := range []int{0, 1} {
		buf.Reset()
		ds, err := FileStore{Verbosity:verbosity}.Create(filepath.Join(dir, "v.tif"), Spec{Width:2, Height:2, Bands:1})
		if err != nil {
			t.Fatal(err)
		}
		if err := ds.Close(); err != nil {
			t.Fatal(err)
		}
		if logged := strings.Contains(buf.String(), "wrote"); logged != (verbosity > 0) {
			t.Errorf("verbosity %d: logged=%v, output %q", verbosity, logged, buf.String())
		}
	}
}

func TestTIFFRejectsFloat(t *testing.T) {
	_, err := FileStore{}.Create(filepath.Join(t.TempDir(), "q.tif"), Spec{Width:1, Height:1, Bands:1, Kind:Float32})
	if err == nil {
		t.Errorf("expected error creating float32 tiff")
	}
}

func TestENVIRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quality.bil")
	spec := Spec{Width:3, Height:2, Bands:2, Kind:Float32, BandNames:[]string{"composite", "input 1"}}

	ds, err := FileStore{}.Create(path, spec)
	if err != nil {
		t.Fatal(err)
	}
	// Write out of order, to check lines land in the right place
	for _, y := range []int{1, 0} {
		l := NewLine(3, 2)
		for x:=0; x<3; x++ {
			l.Bands[0][x] = float32(y) + 0.25*float32(x)
			l.Bands[1][x] = -1
		}
		if err := ds.WriteLine(y, l); err != nil {
			t.Fatal(err)
		}
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	hdr, err := os.ReadFile(filepath.Join(filepath.Dir(path), "quality.hdr"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"samples = 3", "lines = 2", "bands = 2", "interleave = bil", "band names = {composite, input 1}"} {
		if !strings.Contains(string(hdr), want) {
			t.Errorf("header missing %q:\n%s", want, hdr)
		}
	}

	in, err := FileStore{}.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	l := NewLine(3, 0)
	if err := in.ReadLine(1, l); err != nil {
		t.Fatal(err)
	}
	if l.Bands[0][2] != 1.5 || l.Bands[1][0] != -1 {
		t.Errorf("read back %v", l.Bands)
	}
}

func TestUnknownFormat(t *testing.T) {
	if _, err := (FileStore{}).Open("thing.jpg"); err == nil {
		t.Errorf("expected error for unknown extension")
	}
}
