package camera

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// Decoder extracts QR payloads from camera frames. Each frame is cropped to
// a centered detection region before decoding. The region matches the
// scanning overlay shown to the user, so codes at the edge of the viewfinder
// do not trigger a read.
type Decoder struct {
	reader         gozxing.Reader
	regionFraction float64
}

// NewDecoder creates a Decoder whose detection region covers the given
// centered fraction of each frame dimension. A fraction outside (0, 1]
// falls back to the whole frame.
func NewDecoder(regionFraction float64) *Decoder {
	if regionFraction <= 0 || regionFraction > 1 {
		regionFraction = 1
	}
	return &Decoder{
		reader:         qrcode.NewQRCodeReader(),
		regionFraction: regionFraction,
	}
}

// Decode attempts to read a QR code from the frame. A miss, no code in
// frame, is an ordinary error the caller ignores; only device errors are
// ever surfaced to the user.
func (d *Decoder) Decode(frame image.Image) (string, error) {
	region := centerCrop(frame, d.regionFraction)

	src := gozxing.NewLuminanceSourceFromImage(region)
	bmp, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(src))
	if err != nil {
		return "", err
	}

	result, err := d.reader.Decode(bmp, nil)
	if err != nil {
		return "", err
	}

	return result.GetText(), nil
}

// centerCrop returns the centered sub-image covering fraction of each
// dimension.
func centerCrop(img image.Image, fraction float64) image.Image {
	if fraction >= 1 {
		return img
	}

	b := img.Bounds()
	w := int(float64(b.Dx()) * fraction)
	h := int(float64(b.Dy()) * fraction)
	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + (b.Dy()-h)/2
	crop := image.Rect(x0, y0, x0+w, y0+h)

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(crop)
	}

	// Fallback for image types without SubImage support.
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, img.At(x0+x, y0+y))
		}
	}
	return out
}
