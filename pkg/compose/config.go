package compose

import(
	"fmt"
	"image"
	"log"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v2"

	"github.com/planetlabs/plcompositor/pkg/cmath"
	"github.com/planetlabs/plcompositor/pkg/quality"
)

const(
	DefaultQualityThreshold = 0.00001
	DefaultAverageBestRatio = 0.5
)

// Config describes one compositing run. It can be loaded from a YAML
// (or JSON) definition file, and then overridden from the command line.
type Config struct {
	Verbosity             int                `yaml:"verbosity,omitempty"`

	OutputFile            string             `yaml:"output_file"`
	SourceTrace           string             `yaml:"source_trace,omitempty"`     // Raster of 1-based input index per pixel
	QualityOutput         string             `yaml:"quality_output,omitempty"`   // Float raster: final quality, then one band per input
	QualityPreview        string             `yaml:"quality_preview,omitempty"`  // HDR or PNG image of the final quality
	SourcePreview         string             `yaml:"source_preview,omitempty"`   // PNG image of the source trace
	PreviewTonemapper     string             `yaml:"preview_tonemapper,omitempty"` // Tone map the PNG quality preview

	Compositor            string             `yaml:"compositor"`
	QualityThreshold      float64            `yaml:"quality_threshold"`
	QualityPercentile    *float64            `yaml:"quality_percentile,omitempty"` // 0-100; nil picks a default
	AverageBestRatio      float64            `yaml:"average_best_ratio"`
	SourceSieveThreshold  int                `yaml:"source_sieve_threshold,omitempty"`

	DebugPixels       [][]int                `yaml:"debug_pixels,omitempty"`     // [x, y] pairs

	// Name/value pairs in the style of the older -s flags; used to build
	// the method list when QualityMethods is empty.
	Strategy              map[string]string  `yaml:"strategy,omitempty"`

	QualityMethods      []MethodDef          `yaml:"quality_methods,omitempty"`
	Inputs              []InputDef           `yaml:"inputs,omitempty"`
}

// A MethodDef names a quality method, and carries its parameters. In
// YAML it is a flat map, with the method name under "class".
type MethodDef struct {
	Class   string
	Params  quality.Params
}

func (md *MethodDef)UnmarshalYAML(unmarshal func(interface{}) error) error {
	raw := map[string]interface{}{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	md.Params = quality.Params{}
	for k, v := range raw {
		if k == "class" {
			md.Class = fmt.Sprint(v)
		} else {
			md.Params[k] = fmt.Sprint(v)
		}
	}
	if md.Class == "" {
		return fmt.Errorf("quality method definition has no 'class'")
	}
	return nil
}

func (md MethodDef)MarshalYAML() (interface{}, error) {
	out := yaml.MapSlice{{Key:"class", Value:md.Class}}
	keys := []string{}
	for k := range md.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, yaml.MapItem{Key:k, Value:md.Params[k]})
	}
	return out, nil
}

func (md MethodDef)String() string { return fmt.Sprintf("%s%v", md.Class, md.Params) }

// An InputDef is one input raster, and its per-scene extras.
type InputDef struct {
	Filename   string              `yaml:"filename"`
	CloudMask  string              `yaml:"cloud_mask,omitempty"`
	Metrics    map[string]float64  `yaml:"metrics,omitempty"`
	Params     map[string]string   `yaml:"params,omitempty"`
}

func NewConfig() Config {
	return Config{
		Compositor:        "",
		QualityThreshold:  DefaultQualityThreshold,
		AverageBestRatio:  DefaultAverageBestRatio,
		Strategy:          map[string]string{},
	}
}

func newConfigFromYaml(b []byte) (Config, error) {
	c := NewConfig()
	err := yaml.Unmarshal(b, &c)
	if c.Strategy == nil {
		c.Strategy = map[string]string{}
	}
	return c, err
}

// LoadConfig reads a definition file; JSON is fine too, being YAML.
func LoadConfig(filename string) (Config, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("config read %s: %v", filename, err)
	}
	c, err := newConfigFromYaml(contents)
	if err != nil {
		return c, fmt.Errorf("config parse %s: %v", filename, err)
	}
	return c, nil
}

func (c Config)AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		log.Fatalf("Can't marshal config yaml: %v\n", err)
	}
	return string(b)
}

// FinalizeConfiguration fills in defaults, folds in the older strategy
// parameters, and sanity checks the combination. It is safe to call
// more than once.
func (c *Config)FinalizeConfiguration() error {
	if c.Strategy == nil {
		c.Strategy = map[string]string{}
	}

	if v, exists := c.Strategy["compositor"]; exists && c.Compositor == "" {
		c.Compositor = v
	}
	if c.Compositor == "" || c.Compositor == "quality" {
		c.Compositor = "best"
	}
	if _, err := c.GetSelector(); err != nil {
		return err
	}

	floats := []struct {
		key  string
		dst *float64
	}{
		{"median_quality_threshold", &c.QualityThreshold},
		{"quality_threshold",        &c.QualityThreshold},
		{"average_best_ratio",       &c.AverageBestRatio},
	}
	for _, f := range floats {
		if v, exists := c.Strategy[f.key]; exists {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return quality.SetupErrorf("strategy parameter %s='%s' is not a number", f.key, v)
			}
			*f.dst = parsed
		}
	}
	if v, exists := c.Strategy["quality_percentile"]; exists {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return quality.SetupErrorf("strategy parameter quality_percentile='%s' is not a number", v)
		}
		c.QualityPercentile = &parsed
	}
	if v, exists := c.Strategy["median_ratio"]; exists {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return quality.SetupErrorf("strategy parameter median_ratio='%s' is not a number", v)
		}
		pct := parsed * 100.0
		c.QualityPercentile = &pct
	}
	if v, exists := c.Strategy["source_sieve_threshold"]; exists {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return quality.SetupErrorf("strategy parameter source_sieve_threshold='%s' is not an integer", v)
		}
		c.SourceSieveThreshold = parsed
	}

	if c.QualityPercentile == nil {
		pct := c.percentile()
		c.QualityPercentile = &pct
	}
	if pct := *c.QualityPercentile; pct < 0 || pct > 100 {
		return quality.SetupErrorf("quality_percentile %g outside 0 to 100", pct)
	}
	if c.AverageBestRatio <= 0 || c.AverageBestRatio > 1 {
		return quality.SetupErrorf("average_best_ratio %g outside (0,1]", c.AverageBestRatio)
	}

	if len(c.QualityMethods) == 0 {
		c.QualityMethods = c.strategyMethods()
	}

	if c.SourceSieveThreshold > 0 {
		if c.SourceTrace == "" {
			return quality.SetupErrorf("source_sieve_threshold requires a source trace output")
		}
		if c.Compositor == "average" {
			return quality.SetupErrorf("source_sieve_threshold can't be used with the average compositor")
		}
	}

	if c.PreviewTonemapper != "" {
		found := false
		for _, name := range cmath.Tonemappers {
			found = found || name == c.PreviewTonemapper
		}
		if !found {
			return quality.SetupErrorf("no tonemapper named '%s' (have: %s)", c.PreviewTonemapper, cmath.ListTonemappers())
		}
	}

	for _, dp := range c.DebugPixels {
		if len(dp) != 2 {
			return quality.SetupErrorf("debug pixel %v is not an [x, y] pair", dp)
		}
	}

	if c.OutputFile == "" {
		return quality.SetupErrorf("no output file given")
	}
	if len(c.Inputs) == 0 {
		return quality.SetupErrorf("no inputs given")
	}

	return nil
}

// strategyMethods builds the method list from the strategy parameters:
// the main quality method, then the cloud one if named. Each gets all
// the strategy parameters, so e.g. scene_measure can find its settings.
func (c *Config)strategyMethods() []MethodDef {
	params := quality.Params{}
	for k, v := range c.Strategy {
		params[k] = v
	}
	if _, exists := params["quality_percentile"]; !exists {
		params["quality_percentile"] = strconv.FormatFloat(c.percentile(), 'g', -1, 64)
	}

	defs := []MethodDef{{Class: params.String("quality", "darkest"), Params: params}}
	if cloud := params.String("cloud_quality", ""); cloud != "" {
		defs = append(defs, MethodDef{Class: cloud, Params: params})
	}
	return defs
}

// percentile is the configured quality_percentile, or the default for
// the compositor when none was given.
func (c Config)percentile() float64 {
	switch {
	case c.QualityPercentile != nil: return *c.QualityPercentile
	case c.Compositor == "median":   return 50
	default:                         return 100
	}
}

func (c Config)GetSelector() (Selector, error) {
	switch c.Compositor {
	case "best", "", "quality": return GreedyBest{}, nil
	case "percentile":          return &ThresholdPercentile{Threshold:c.QualityThreshold, Ratio:c.percentile()/100.0}, nil
	case "median":              return &MedianOfSurvivors{Threshold:c.QualityThreshold}, nil
	case "average":             return &AverageTopN{Ratio:c.AverageBestRatio}, nil
	default:
		return nil, quality.SetupErrorf("no compositor named '%s' (have: %v)", c.Compositor, ListSelectors())
	}
}

func ListSelectors() []string {
	return []string{"best", "percentile", "median", "average"}
}

func (c Config)GetDebugPixels() []image.Point {
	pts := []image.Point{}
	for _, dp := range c.DebugPixels {
		if len(dp) == 2 {
			pts = append(pts, image.Point{dp[0], dp[1]})
		}
	}
	return pts
}
