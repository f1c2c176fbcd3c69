package cmath

import(
	"fmt"
	"image"
	"image/color"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

// A LabelGrid is a grid of small integer labels, such as the index of
// the input each output pixel came from. Zero means no label.
type LabelGrid struct {
	stride int
	values []uint16
}

func NewLabelGrid(w, h int) LabelGrid {
	return LabelGrid{
		stride: w,
		values: make([]uint16, w*h),
	}
}

func (lg *LabelGrid)Set(x, y int, v uint16) { lg.values[lg.stride*y + x] = v }
func (lg *LabelGrid)Get(x, y int) uint16    { return lg.values[lg.stride*y + x] }
func (lg *LabelGrid)Dx() int                { return lg.stride }
func (lg *LabelGrid)Dy() int                { return len(lg.values) / lg.stride }

func (lg *LabelGrid)SetRow(y int, row []uint16) { copy(lg.values[lg.stride*y:lg.stride*(y+1)], row) }
func (lg *LabelGrid)Row(y int) []uint16         { return lg.values[lg.stride*y:lg.stride*(y+1)] }

func (g1 *LabelGrid)Copy() *LabelGrid {
	g2 := LabelGrid{stride: g1.stride, values:make([]uint16, len(g1.values))}
	copy(g2.values, g1.values)
	return &g2
}

// A Region is a 4-connected set of pixels sharing one label.
type Region struct {
	Label  uint16
	Size   int
	First  int  // offset of the first pixel, in scan order
}

// Regions labels every 4-connected region. It returns the region
// number of each pixel, and the regions in the order they were found.
func (lg *LabelGrid)Regions() ([]int, []Region) {
	w, h := lg.Dx(), lg.Dy()
	ids := make([]int, len(lg.values))
	for i := range ids {
		ids[i] = -1
	}

	regions := []Region{}
	stack := []int{}
	for start := range lg.values {
		if ids[start] >= 0 {
			continue
		}
		id := len(regions)
		r := Region{Label:lg.values[start], First:start}

		ids[start] = id
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			r.Size++

			x, y := i % w, i / w
			for _, n := range neighbours4(x, y, w, h) {
				if ids[n] < 0 && lg.values[n] == r.Label {
					ids[n] = id
					stack = append(stack, n)
				}
			}
		}
		regions = append(regions, r)
	}

	return ids, regions
}

// neighbours4 returns pixel offsets above, left, right and below (x,y),
// skipping those off the edge.
func neighbours4(x, y, w, h int) []int {
	n := make([]int, 0, 4)
	if y > 0   { n = append(n, (y-1)*w + x) }
	if x > 0   { n = append(n, y*w + x-1) }
	if x < w-1 { n = append(n, y*w + x+1) }
	if y < h-1 { n = append(n, (y+1)*w + x) }
	return n
}

// Sieve removes labelled regions smaller than threshold pixels, by
// merging each into the largest labelled region that touches it (the
// first found, on ties). A small region touching only unlabelled (0)
// pixels is merged into the largest of those instead. Unlabelled
// regions are never sieved themselves. It repeats until nothing
// changes; regions at or above the threshold are never relabelled.
// Returns the number of pixels relabelled.
func (lg *LabelGrid)Sieve(threshold int) int {
	changed := 0
	w, h := lg.Dx(), lg.Dy()

	for {
		ids, regions := lg.Regions()

		parent := make([]int, len(regions))
		for i := range parent {
			parent[i] = i
		}
		find := func(i int) int {
			for parent[i] != i {
				parent[i] = parent[parent[i]]
				i = parent[i]
			}
			return i
		}

		// Bucket pixel offsets by region, keeping scan order within each
		start := make([]int, len(regions)+1)
		for id, r := range regions {
			start[id+1] = start[id] + r.Size
		}
		pixels := make([]int, len(ids))
		next := append([]int{}, start[:len(regions)]...)
		for i, id := range ids {
			pixels[next[id]] = i
			next[id]++
		}

		merges := 0
		for id, r := range regions {
			if r.Label == 0 || r.Size >= threshold {
				continue
			}

			best, bestUnlabelled := -1, -1
			for _, i := range pixels[start[id]:start[id+1]] {
				for _, n := range neighbours4(i % w, i / w, w, h) {
					nid := ids[n]
					switch {
					case nid == id:
					case regions[nid].Label == 0:
						if bestUnlabelled < 0 || regions[nid].Size > regions[bestUnlabelled].Size {
							bestUnlabelled = nid
						}
					case best < 0 || regions[nid].Size > regions[best].Size:
						best = nid
					}
				}
			}
			if best < 0 {
				best = bestUnlabelled
			}
			if best < 0 {
				continue
			}

			if root, target := find(id), find(best); root != target {
				parent[root] = target
				merges++
			}
		}

		if merges == 0 {
			return changed
		}

		for i := range lg.values {
			if newLabel := regions[find(ids[i])].Label; newLabel != lg.values[i] {
				lg.values[i] = newLabel
				changed++
			}
		}
	}
}

// ToImg renders the labels with one colour per label (label 0 is
// transparent), shrunk to fit maxWidth, with a title.
func (lg *LabelGrid)ToImg(title, filename string, numLabels, maxWidth int) error {
	palette := colorful.FastHappyPalette(numLabels)

	full := image.NewNRGBA(image.Rect(0, 0, lg.Dx(), lg.Dy()))
	for y:=0; y<lg.Dy(); y++ {
		for x:=0; x<lg.Dx(); x++ {
			v := int(lg.Get(x, y))
			if v == 0 || v > len(palette) {
				continue
			}
			r, g, b := palette[v-1].RGB255()
			full.SetNRGBA(x, y, color.NRGBA{r, g, b, 0xFF})
		}
	}

	var img image.Image = full
	if maxWidth > 0 && lg.Dx() > maxWidth {
		h := lg.Dy() * maxWidth / lg.Dx()
		if h < 1 {
			h = 1
		}
		small := image.NewNRGBA(image.Rect(0, 0, maxWidth, h))
		draw.NearestNeighbor.Scale(small, small.Bounds(), full, full.Bounds(), draw.Src, nil)
		img = small
	}

	dc := gg.NewContextForImage(img)
	dc.SetRGB(1,1,1)
	dc.DrawString(title, 10, 20)
	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("save png '%s': %v", filename, err)
	}
	return nil
}
