package main

import(
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/planetlabs/plcompositor/pkg/cmath"
	"github.com/planetlabs/plcompositor/pkg/compose"
	"github.com/planetlabs/plcompositor/pkg/quality"
	"github.com/planetlabs/plcompositor/pkg/raster"
)

type options struct {
	verbosity      int
	quiet          bool
	output         string
	definition     string
	compositor     string
	inputs       []string
	strategy     []string
	sourceTrace    string
	qualityOutput  string
	qualityPreview string
	sourcePreview  string
	tonemapper     string
	debugPixels  []string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("compositor: %v\n", err)
	}
}

func newRootCmd() *cobra.Command {
	o := options{}

	cmd := &cobra.Command{
		Use:   "compositor [flags] [input files and dirs ...]",
		Short: "Build a cloud free composite from a stack of co-registered rasters",
		Long: `Picks, per pixel, the best input from a stack of co-registered rasters,
ranked by a configurable chain of quality methods.

Inputs can be given with -i, as positional files and directories, or in a
definition file (-j). Each -i group is a path, optionally followed by
comma separated settings: cloud=<mask>, m.<metric>=<number>, or
<param>=<value>.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config(args)
			if err != nil {
				return err
			}
			if cfg.Verbosity > 1 {
				log.Printf("Final configuration:-\n\n%s\n", cfg.AsYaml())
			}

			p, err := compose.NewPipeline(cfg, raster.FileStore{Verbosity:cfg.Verbosity}, quality.NewRegistry())
			if err != nil {
				return err
			}
			return p.Run()
		},
	}

	o.addFlags(cmd)
	cmd.AddCommand(newMethodsCmd())
	cmd.AddCommand(newConfigCmd(&o))
	return cmd
}

func (o *options)addFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.CountVarP(&o.verbosity, "verbose", "v", "more logging; repeat for more")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "no logging at all")
	f.StringVarP(&o.output, "output", "o", "", "output raster (.tif, or .bil for float32)")
	f.StringVarP(&o.definition, "definition", "j", "", "definition file (YAML or JSON)")
	f.StringVarP(&o.compositor, "compositor", "c", "", "how to pick among inputs: "+strings.Join(compose.ListSelectors(), ", "))
	f.StringArrayVarP(&o.inputs, "input", "i", nil, "input group: path[,cloud=mask][,m.metric=v][,param=v]")
	f.StringArrayVarP(&o.strategy, "strategy", "s", nil, "strategy parameter, as name=value")
	f.StringVar(&o.sourceTrace, "source-trace", "", "write the source index of each pixel to this raster")
	f.StringVar(&o.qualityOutput, "quality-output", "", "write final and per-input quality to this float raster")
	f.StringVar(&o.qualityPreview, "quality-preview", "", "write a quality preview image (.png or .hdr)")
	f.StringVar(&o.sourcePreview, "source-preview", "", "write a source map preview image (.png)")
	f.StringVar(&o.tonemapper, "preview-tonemapper", "", "tone map the png quality preview: "+strings.Join(cmath.Tonemappers, ", "))
	f.StringArrayVar(&o.debugPixels, "debug-pixel", nil, "log how pixel x,y was decided")
}

// config assembles the run configuration: the definition file first,
// then positional files and dirs, then the individual flags on top.
func (o *options)config(args []string) (compose.Config, error) {
	if o.quiet {
		log.SetOutput(io.Discard)
	}

	cfg := compose.NewConfig()
	if o.definition != "" {
		var err error
		if cfg, err = compose.LoadConfig(o.definition); err != nil {
			return cfg, err
		}
	}
	if err := cfg.LoadFilesAndDirs(args...); err != nil {
		return cfg, err
	}

	for _, group := range o.inputs {
		def, err := parseInputGroup(group)
		if err != nil {
			return cfg, err
		}
		cfg.Inputs = append(cfg.Inputs, def)
	}

	if cfg.Strategy == nil {
		cfg.Strategy = map[string]string{}
	}
	for _, kv := range o.strategy {
		k, v, err := parseKeyValue(kv)
		if err != nil {
			return cfg, err
		}
		cfg.Strategy[k] = v
	}

	for _, s := range o.debugPixels {
		pt, err := parseDebugPixel(s)
		if err != nil {
			return cfg, err
		}
		cfg.DebugPixels = append(cfg.DebugPixels, pt)
	}

	overrides := []struct {
		flag    string
		field  *string
	}{
		{o.output,         &cfg.OutputFile},
		{o.compositor,     &cfg.Compositor},
		{o.sourceTrace,    &cfg.SourceTrace},
		{o.qualityOutput,  &cfg.QualityOutput},
		{o.qualityPreview, &cfg.QualityPreview},
		{o.sourcePreview,  &cfg.SourcePreview},
		{o.tonemapper,     &cfg.PreviewTonemapper},
	}
	for _, ov := range overrides {
		if ov.flag != "" {
			*ov.field = ov.flag
		}
	}
	cfg.Verbosity += o.verbosity

	return cfg, nil
}

func parseKeyValue(s string) (string, string, error) {
	k, v, found := strings.Cut(s, "=")
	if !found || k == "" {
		return "", "", fmt.Errorf("'%s' is not name=value", s)
	}
	return k, v, nil
}

// parseInputGroup parses "path[,cloud=mask][,m.metric=number][,param=value]".
func parseInputGroup(s string) (compose.InputDef, error) {
	fields := strings.Split(s, ",")
	def := compose.InputDef{Filename: fields[0]}
	if def.Filename == "" {
		return def, fmt.Errorf("input group '%s' has no filename", s)
	}

	for _, field := range fields[1:] {
		k, v, err := parseKeyValue(field)
		if err != nil {
			return def, fmt.Errorf("input group '%s': %v", s, err)
		}

		switch {
		case k == "cloud":
			def.CloudMask = v

		case strings.HasPrefix(k, "m."):
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return def, fmt.Errorf("input group '%s': metric %s: %v", s, k, err)
			}
			if def.Metrics == nil {
				def.Metrics = map[string]float64{}
			}
			def.Metrics[strings.TrimPrefix(k, "m.")] = f

		default:
			if def.Params == nil {
				def.Params = map[string]string{}
			}
			def.Params[k] = v
		}
	}

	return def, nil
}

func parseDebugPixel(s string) ([]int, error) {
	xs, ys, found := strings.Cut(s, ",")
	if !found {
		return nil, fmt.Errorf("debug pixel '%s' is not x,y", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return nil, fmt.Errorf("debug pixel '%s': %v", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return nil, fmt.Errorf("debug pixel '%s': %v", s, err)
	}
	return []int{x, y}, nil
}

func newMethodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods",
		Short: "List the quality methods and compositors",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "quality methods:\n")
			for _, name := range quality.NewRegistry().Names() {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintf(out, "compositors:\n")
			for _, name := range compose.ListSelectors() {
				fmt.Fprintf(out, "  %s\n", name)
			}
		},
	}
}

func newConfigCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config [input files and dirs ...]",
		Short: "Print the final configuration, without running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.config(args)
			if err != nil {
				return err
			}
			if err := cfg.FinalizeConfiguration(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s", cfg.AsYaml())
			return nil
		},
	}
}
