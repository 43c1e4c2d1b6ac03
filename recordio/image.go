package recordio

import (
	"bytes"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// transform turns a decoded image into a CHW float32 sample.
type transform struct {
	channels, height, width int
	mean                    [3]float32

	pad      int
	fill     uint8
	minScale float64
	maxScale float64
	randCrop bool
	mirror   bool
}

func (t transform) sampleSize() int {
	return t.channels * t.height * t.width
}

func decodeImage(payload []byte) (image.Image, error) {
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "decode image")
	}
	if b := img.Bounds(); b.Empty() {
		return nil, errors.Errorf("empty %s image", format)
	}
	return img, nil
}

// apply writes the transformed sample of img into dst, which must hold
// sampleSize values.
func (t transform) apply(img image.Image, rng *rand.Rand, dst []float32) {
	if t.pad > 0 {
		img = padImage(img, t.pad, t.fill)
	}

	scale := 1.0
	if t.maxScale > t.minScale {
		scale = t.minScale + rng.Float64()*(t.maxScale-t.minScale)
	} else if t.minScale > 0 {
		scale = t.minScale
	}

	// Crop window in source pixels: the target size before scaling, clamped
	// to the image.
	b := img.Bounds()
	cw := min(b.Dx(), max(1, int(math.Round(float64(t.width)/scale))))
	ch := min(b.Dy(), max(1, int(math.Round(float64(t.height)/scale))))
	x0, y0 := (b.Dx()-cw)/2, (b.Dy()-ch)/2
	if t.randCrop {
		x0, y0 = rng.IntN(b.Dx()-cw+1), rng.IntN(b.Dy()-ch+1)
	}
	src := image.Rect(b.Min.X+x0, b.Min.Y+y0, b.Min.X+x0+cw, b.Min.Y+y0+ch)

	out := image.NewRGBA(image.Rect(0, 0, t.width, t.height))
	if cw == t.width && ch == t.height {
		draw.Draw(out, out.Bounds(), img, src.Min, draw.Src)
	} else {
		draw.BiLinear.Scale(out, out.Bounds(), img, src, draw.Src, nil)
	}

	flip := t.mirror && rng.IntN(2) == 1
	plane := t.height * t.width
	for y := range t.height {
		for x := range t.width {
			sx := x
			if flip {
				sx = t.width - 1 - x
			}
			p := out.RGBAAt(sx, y)
			i := y*t.width + x
			if t.channels == 1 {
				g := color.GrayModel.Convert(p).(color.Gray).Y
				dst[i] = float32(g) - t.mean[0]
				continue
			}
			dst[i] = float32(p.R) - t.mean[0]
			dst[plane+i] = float32(p.G) - t.mean[1]
			dst[2*plane+i] = float32(p.B) - t.mean[2]
		}
	}
}

func padImage(img image.Image, pad int, fill uint8) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()+2*pad, b.Dy()+2*pad))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.Gray{Y: fill}), image.Point{}, draw.Src)
	draw.Draw(out, image.Rect(pad, pad, pad+b.Dx(), pad+b.Dy()), img, b.Min, draw.Src)
	return out
}
