package normalize

import (
	"context"
	"image"
	"io"
	"log/slog"

	"github.com/disintegration/imaging"
)

// Opener opens the byte stream behind a source URI.
type Opener interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Normalizer reads orientation metadata through Opener and applies it.
type Normalizer struct {
	Opener    Opener
	MaxPixels int64        // decode budget; zero disables it
	Logger    *slog.Logger // optional (defaults to slog.Default())
}

// New returns a Normalizer reading metadata through o.
func New(o Opener, logger *slog.Logger) *Normalizer {
	return &Normalizer{Opener: o, Logger: logger}
}

func (n *Normalizer) log() *slog.Logger {
	if n.Logger == nil {
		return slog.Default().With("domain", "normalize")
	}
	return n.Logger.With("domain", "normalize")
}

// ReadRecord reads the orientation tag of the image at uri. Metadata that
// cannot be opened or parsed is logged and yields an empty Record; orientation
// correction is best-effort and never fails a call.
func (n *Normalizer) ReadRecord(ctx context.Context, uri string) *Record {
	rc, err := n.Opener.Open(ctx, uri)
	if err != nil {
		n.log().Warn("error loading exif data from image", "uri", uri, "err", err)
		return &Record{}
	}
	defer rc.Close()
	rec, err := readRecord(rc)
	if err != nil {
		n.log().Warn("error loading exif data from image", "uri", uri, "err", err)
		return &Record{}
	}
	return rec
}

// Decode decodes r within the MaxPixels budget.
func (n *Normalizer) Decode(r io.Reader) (image.Image, error) {
	img, _, err := Decode(r, n.MaxPixels)
	return img, err
}

// Normalize reads the record for uri, bakes its rotation into img when
// correct is set, and scales the result to fit width x height. The returned
// record is what the encoded output should carry.
func (n *Normalizer) Normalize(ctx context.Context, img image.Image, uri string, correct bool, width, height int) (image.Image, *Record) {
	rec := n.ReadRecord(ctx, uri)
	if correct {
		img = CorrectOrientation(img, rec)
	}
	return Resize(img, width, height), rec
}

// CorrectOrientation rotates img clockwise by the angle rec calls for and
// resets rec. With a zero angle img is returned unchanged.
func CorrectOrientation(img image.Image, rec *Record) image.Image {
	deg := rec.Degrees()
	if deg == 0 {
		return img
	}
	out := Rotate(img, deg)
	rec.Reset()
	return out
}

// Rotate turns img clockwise by deg, which must be 90, 180 or 270.
// imaging rotates counter-clockwise, hence the swapped calls.
func Rotate(img image.Image, deg int) image.Image {
	switch deg {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	}
	return img
}
