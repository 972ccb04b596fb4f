// Package normalize corrects image orientation from EXIF metadata, resizes
// within caller bounds, and re-encodes the result as JPEG.
package normalize

import (
	"errors"
	"io"

	"github.com/rwcarlsen/goexif/exif"
)

// Orientation is the EXIF orientation tag (0x0112) value. Names follow the
// clockwise rotation a viewer must apply to display the image upright.
type Orientation int

const (
	Unspecified Orientation = 0
	Normal      Orientation = 1
	FlipH       Orientation = 2
	Rotate180   Orientation = 3
	FlipV       Orientation = 4
	Transpose   Orientation = 5
	Rotate90    Orientation = 6
	Transverse  Orientation = 7
	Rotate270   Orientation = 8
)

// Degrees maps an orientation tag to the clockwise rotation that makes the
// pixels upright. Only the three pure rotations are honoured; every other
// value, including mirrored variants, maps to 0.
func Degrees(o Orientation) int {
	switch o {
	case Rotate90:
		return 90
	case Rotate180:
		return 180
	case Rotate270:
		return 270
	}
	return 0
}

// Record wraps the orientation tag read from one image for the lifetime of
// a single call. The zero value means no metadata was available.
type Record struct {
	tag Orientation
}

// NewRecord returns a Record holding tag.
func NewRecord(tag Orientation) *Record { return &Record{tag: tag} }

// Orientation returns the current tag value.
func (r *Record) Orientation() Orientation {
	if r == nil {
		return Unspecified
	}
	return r.tag
}

// Degrees returns the rotation the current tag calls for.
func (r *Record) Degrees() int { return Degrees(r.Orientation()) }

// Reset marks the tag NORMAL once the rotation lives in the pixel data, so
// the encoded output is not rotated a second time by its consumer.
func (r *Record) Reset() {
	if r != nil {
		r.tag = Normal
	}
}

// readRecord decodes EXIF from r. An image with EXIF but no orientation tag
// yields an Unspecified record without error.
func readRecord(r io.Reader) (*Record, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, err
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		var missing exif.TagNotPresentError
		if errors.As(err, &missing) {
			return &Record{}, nil
		}
		return nil, err
	}
	v, err := tag.Int(0)
	if err != nil {
		return nil, err
	}
	if v < int(Normal) || v > int(Rotate270) {
		return &Record{}, nil
	}
	return &Record{tag: Orientation(v)}, nil
}
