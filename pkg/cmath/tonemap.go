package cmath

import(
	"fmt"

	"github.com/fogleman/gg"
	"github.com/mdouchement/hdr/tmo"
)

var(
	Tonemappers = []string{"drago03", "durand", "linear", "reinhard05"}
)

func ListTonemappers() string {
	return fmt.Sprintf("%v", Tonemappers)
}

func newTonemapper(fg *FloatGrid, name string) (tmo.ToneMappingOperator, error) {
	g := hdrGrid{fg}

	switch name {
	case "drago03":
		op := tmo.NewDefaultDrago03(g)
		op.Bias = 1.0
		return op, nil

	case "durand":
		return tmo.NewDefaultDurand(g), nil

	case "linear":
		return tmo.NewLinear(g), nil

	case "reinhard05":
		op := tmo.NewDefaultReinhard05(g)
		op.Chromatic = 0.0           // The grid is grey anyway
		return op, nil
	}

	return nil, fmt.Errorf("tonemapper %q not recognized, wanted %s", name, ListTonemappers())
}

// ToImgTonemapped renders the grid through one of the HDR tone mapping
// operators instead of a plain stretch. Rejects come out black.
func (fg *FloatGrid)ToImgTonemapped(title, filename, tonemapper string) error {
	op, err := newTonemapper(fg, tonemapper)
	if err != nil {
		return err
	}

	dc := gg.NewContextForImage(op.Perform())
	dc.SetRGB(1,1,0)
	dc.DrawString(fmt.Sprintf("%s (%s)", title, tonemapper), 10, 20)
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("save png '%s': %v", filename, err)
	}
	return nil
}
