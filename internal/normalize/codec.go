package normalize

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/haukened/snap/internal/domain"
)

const sniffLen = 3072

// Decode sniffs the stream and decodes it into an image. Content that is not
// an image, that fails to decode, or whose width times height exceeds
// maxPixels wraps domain.ErrDecode. A maxPixels of zero or less disables the
// budget.
func Decode(r io.Reader, maxPixels int64) (image.Image, string, error) {
	br := bufio.NewReaderSize(r, sniffLen)
	head, _ := br.Peek(sniffLen) // short streams return what they have
	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, "", fmt.Errorf("%w: content type %s", domain.ErrDecode, mt.String())
	}
	var src io.Reader = br
	if maxPixels > 0 {
		// The header bytes read here are replayed to the full decode.
		var seen bytes.Buffer
		cfg, _, err := image.DecodeConfig(io.TeeReader(br, &seen))
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
		}
		if px := int64(cfg.Width) * int64(cfg.Height); px > maxPixels {
			return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrDecode, cfg.Width, cfg.Height, maxPixels)
		}
		src = io.MultiReader(&seen, br)
	}
	img, format, err := image.Decode(src)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return img, format, nil
}

// EncodeJPEG writes img as JPEG at quality. Unless o is Unspecified, a
// minimal EXIF APP1 segment carrying o is placed right after SOI.
func EncodeJPEG(w io.Writer, img image.Image, quality int, o Orientation) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return err
	}
	out := buf.Bytes()
	if o == Unspecified {
		_, err := w.Write(out)
		return err
	}
	seg, err := orientationSegment(o)
	if err != nil {
		return err
	}
	if _, err := w.Write(out[:2]); err != nil { // SOI
		return err
	}
	if _, err := w.Write(seg); err != nil {
		return err
	}
	_, err = w.Write(out[2:])
	return err
}

// orientationSegment builds an APP1 segment whose TIFF block holds a single
// IFD0 entry: Orientation.
func orientationSegment(o Orientation) ([]byte, error) {
	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("exif: ifd mapping: %w", err)
	}
	ib := exif.NewIfdBuilder(im, exif.NewTagIndex(), exifcommon.IfdStandardIfdIdentity, binary.LittleEndian)
	if err := ib.AddStandardWithName("Orientation", []uint16{uint16(o)}); err != nil {
		return nil, fmt.Errorf("exif: orientation tag: %w", err)
	}
	tiff, err := exif.NewIfdByteEncoder().EncodeToExif(ib)
	if err != nil {
		return nil, fmt.Errorf("exif: encode: %w", err)
	}

	payload := append([]byte("Exif\x00\x00"), tiff...)
	seg := make([]byte, 4, 4+len(payload))
	seg[0], seg[1] = 0xFF, 0xE1
	binary.BigEndian.PutUint16(seg[2:], uint16(len(payload)+2))
	return append(seg, payload...), nil
}
