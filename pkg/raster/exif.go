package raster

import(
	"fmt"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// AcquisitionTime pulls the EXIF DateTime out of an image file. Most
// satellite GeoTIFFs don't carry EXIF, in which case you get an error.
func AcquisitionTime(filename string) (time.Time, error) {
	reader, err := os.Open(filename)
	if err != nil {
		return time.Time{}, fmt.Errorf("open+r exif '%s': %v", filename, err)
	}
	defer reader.Close()

	ex, err := exif.Decode(reader)
	if err != nil {
		return time.Time{}, fmt.Errorf("exif parsing '%s': %v", filename, err)
	}

	t, err := ex.DateTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("exif DateTime '%s': %v", filename, err)
	}
	return t, nil
}
