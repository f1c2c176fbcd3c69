package compose

import(
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var testYaml = `
output_file: composite.tif
source_trace: source.tif
compositor: percentile
quality_percentile: 75
debug_pixels:
  - [10, 20]
quality_methods:
  - class: landsat8
    fully_confident_cloud: -1
  - class: scene_measure
    scene_measure: sun_elevation
    scale_min: 20
    scale_max: 70
  - class: percentile
    quality_percentile: 50
inputs:
  - filename: a.tif
    cloud_mask: a_BQA.tif
    metrics:
      sun_elevation: 45.5
  - filename: b.tif
    params:
      quality_file: b_quality.bil
`

func TestConfigFromYaml(t *testing.T) {
	c, err := newConfigFromYaml([]byte(testYaml))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.FinalizeConfiguration(); err != nil {
		t.Fatal(err)
	}

	if len(c.QualityMethods) != 3 {
		t.Fatalf("methods: %v", c.QualityMethods)
	}
	if m := c.QualityMethods[0]; m.Class != "landsat8" || m.Params["fully_confident_cloud"] != "-1" {
		t.Errorf("method 0: %v", m)
	}
	if m := c.QualityMethods[1]; m.Params["scale_max"] != "70" || m.Params["scene_measure"] != "sun_elevation" {
		t.Errorf("method 1: %v", m)
	}
	if _, exists := c.QualityMethods[2].Params["class"]; exists {
		t.Errorf("class should not be passed as a parameter")
	}

	if c.QualityPercentile == nil || *c.QualityPercentile != 75 || c.QualityThreshold != DefaultQualityThreshold {
		t.Errorf("percentile %v, threshold %g", c.QualityPercentile, c.QualityThreshold)
	}
	sel, err := c.GetSelector()
	if err != nil {
		t.Fatal(err)
	}
	if pct, ok := sel.(*ThresholdPercentile); !ok || pct.Ratio != 0.75 {
		t.Errorf("selector: %#v", sel)
	}

	if len(c.Inputs) != 2 || c.Inputs[0].Metrics["sun_elevation"] != 45.5 || c.Inputs[1].Params["quality_file"] != "b_quality.bil" {
		t.Errorf("inputs: %+v", c.Inputs)
	}
	if pts := c.GetDebugPixels(); len(pts) != 1 || pts[0].X != 10 || pts[0].Y != 20 {
		t.Errorf("debug pixels: %v", pts)
	}

	if y := c.AsYaml(); !strings.Contains(y, "class: scene_measure") {
		t.Errorf("yaml missing method class:\n%s", y)
	}
}

func TestConfigStrategyParams(t *testing.T) {
	tests := []struct {
		name          string
		strategy      map[string]string
		wantMethods []string
		wantSel       string
		wantPct       float64
	}{
		{"defaults",       map[string]string{}, []string{"darkest"}, "best", 100},
		{"median",         map[string]string{"compositor":"median"}, []string{"darkest"}, "median", 50},
		{"cloud quality",  map[string]string{"quality":"greenest", "cloud_quality":"landsat8"}, []string{"greenest", "landsat8"}, "best", 100},
		{"median ratio",   map[string]string{"compositor":"percentile", "median_ratio":"0.25"}, []string{"darkest"}, "percentile(0.25)", 25},
	}

	for _, tc := range tests {
		c := NewConfig()
		c.OutputFile = "out"
		c.Inputs = []InputDef{{Filename:"a"}}
		c.Strategy = tc.strategy
		if err := c.FinalizeConfiguration(); err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}

		got := []string{}
		for _, m := range c.QualityMethods {
			got = append(got, m.Class)
		}
		if strings.Join(got, ",") != strings.Join(tc.wantMethods, ",") {
			t.Errorf("%s: methods %v, want %v", tc.name, got, tc.wantMethods)
		}
		if sel, _ := c.GetSelector(); sel.Name() != tc.wantSel {
			t.Errorf("%s: selector %s, want %s", tc.name, sel.Name(), tc.wantSel)
		}
		if c.QualityPercentile == nil || *c.QualityPercentile != tc.wantPct {
			t.Errorf("%s: percentile %v, want %g", tc.name, c.QualityPercentile, tc.wantPct)
		}
	}
}

func TestConfigPercentileRange(t *testing.T) {
	tests := []struct {
		yaml   string
		want   float64
		ok     bool
	}{
		{"",                         100, true},
		{"quality_percentile: 0",      0, true},
		{"quality_percentile: 100",  100, true},
		{"quality_percentile: -5",     0, false},
		{"quality_percentile: 101",    0, false},
	}

	for _, tc := range tests {
		c, err := newConfigFromYaml([]byte("output_file: out.tif\ninputs: [{filename: a.tif}]\n" + tc.yaml + "\n"))
		if err != nil {
			t.Fatalf("%q: %v", tc.yaml, err)
		}
		err = c.FinalizeConfiguration()
		if (err == nil) != tc.ok {
			t.Errorf("%q: err %v", tc.yaml, err)
			continue
		}
		if tc.ok && *c.QualityPercentile != tc.want {
			t.Errorf("%q: percentile %g, want %g", tc.yaml, *c.QualityPercentile, tc.want)
		}
	}

	c := NewConfig()
	c.OutputFile = "out"
	c.Inputs = []InputDef{{Filename:"a"}}
	c.Strategy = map[string]string{"quality_percentile":"-1"}
	if err := c.FinalizeConfiguration(); err == nil {
		t.Errorf("negative strategy quality_percentile should be rejected")
	}
}

func TestConfigStrategyThreshold(t *testing.T) {
	c := NewConfig()
	c.OutputFile = "out"
	c.Inputs = []InputDef{{Filename:"a"}}
	c.Strategy = map[string]string{"compositor":"median", "median_quality_threshold":"0.2", "source_sieve_threshold":"3"}
	c.SourceTrace = "trace"
	if err := c.FinalizeConfiguration(); err != nil {
		t.Fatal(err)
	}
	if c.QualityThreshold != 0.2 || c.SourceSieveThreshold != 3 {
		t.Errorf("threshold %g, sieve %d", c.QualityThreshold, c.SourceSieveThreshold)
	}

	c.Strategy["median_quality_threshold"] = "lots"
	if err := c.FinalizeConfiguration(); err == nil {
		t.Errorf("expected an error for a bad number")
	}
}

func TestLoadFilesAndDirs(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.tif", "a_BQA.tif", "b.tif", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, f), []byte{}, 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfgYaml := "output_file: out.tif\ncompositor: median\ninputs:\n  - filename: c.tif\n"
	if err := os.WriteFile(filepath.Join(dir, "z.yaml"), []byte(cfgYaml), 0644); err != nil {
		t.Fatal(err)
	}

	c := NewConfig()
	if err := c.LoadFilesAndDirs(dir); err != nil {
		t.Fatal(err)
	}

	if c.OutputFile != "out.tif" || c.Compositor != "median" {
		t.Errorf("config not loaded: %+v", c)
	}
	want := []InputDef{
		{Filename: filepath.Join(dir, "a.tif"), CloudMask: filepath.Join(dir, "a_BQA.tif")},
		{Filename: filepath.Join(dir, "b.tif")},
		{Filename: "c.tif"},
	}
	if len(c.Inputs) != len(want) {
		t.Fatalf("inputs: %+v", c.Inputs)
	}
	for i := range want {
		if c.Inputs[i].Filename != want[i].Filename || c.Inputs[i].CloudMask != want[i].CloudMask {
			t.Errorf("input %d: got %+v, want %+v", i, c.Inputs[i], want[i])
		}
	}

	if err := c.LoadFilesAndDirs(filepath.Join(dir, "missing")); err == nil {
		t.Errorf("expected an error for a missing file")
	}
}
