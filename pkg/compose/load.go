package compose

import(
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Files named like this are attached as the cloud mask of the input
// with the same name minus the suffix, when loading a directory.
var cloudMaskSuffixes = []string{"_cloud", "_BQA", "_qa"}

// LoadFilesAndDirs adds inputs from raster files, recursing into any
// directories. A definition file (.yaml, .yml or .json) found along the
// way replaces the settings loaded so far, but its inputs are added to
// the ones already known.
func (c *Config)LoadFilesAndDirs(args ...string) error {
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return fmt.Errorf("load %s: %v", arg, err)

		case item.IsDir():
			contents, err := ioutil.ReadDir(arg)
			if err != nil {
				return fmt.Errorf("readdir %s: %v", arg, err)
			}
			masks := []string{}
			for _, content := range contents {
				filename := filepath.Join(arg, content.Name())
				if isCloudMask(filename) {
					masks = append(masks, filename)
					continue
				}
				if err := c.LoadFilesAndDirs(filename); err != nil {
					return fmt.Errorf("load %s: %v", arg, err)
				}
			}
			for _, mask := range masks {
				c.attachCloudMask(mask)
			}

		default:
			if err := c.loadFile(arg); err != nil {
				return fmt.Errorf("loadfile %s: %v", arg, err)
			}
		}
	}

	return nil
}

func (c *Config)loadFile(filename string) error {
	switch strings.ToLower(filepath.Ext(filename)) {

	case ".tif", ".tiff", ".bil":
		c.Inputs = append(c.Inputs, InputDef{Filename: filename})

	case ".yaml", ".yml", ".json":
		cfg, err := LoadConfig(filename)
		if err != nil {
			return err
		}
		cfg.Inputs = append(c.Inputs, cfg.Inputs...)
		*c = cfg
		log.Printf("Loaded base configuration from %s\n", filename)
	}

	return nil
}

func isCloudMask(filename string) bool {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	for _, suffix := range cloudMaskSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}

func (c *Config)attachCloudMask(mask string) {
	ext := filepath.Ext(mask)
	base := strings.TrimSuffix(mask, ext)
	for _, suffix := range cloudMaskSuffixes {
		if !strings.HasSuffix(base, suffix) {
			continue
		}
		target := strings.TrimSuffix(base, suffix)
		for i := range c.Inputs {
			if strings.TrimSuffix(c.Inputs[i].Filename, filepath.Ext(c.Inputs[i].Filename)) == target {
				c.Inputs[i].CloudMask = mask
				return
			}
		}
	}
	log.Printf("cloud mask %s has no matching input, ignoring\n", mask)
}
