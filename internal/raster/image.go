// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package raster

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/kovidgoyal/go-parallel"
)

// A planar three-channel image in float32.
// Holds either display values (sRGB, 0..255) or uniform values (L*a*b*
// scaled into 0..255 the way 8-bit codecs store it), depending on the
// pipeline stage which produced it.
type Image struct {
	ID       int    // Sequential ID number, for log output. By convention the source is 0 and the target 1
	FileName string // Original file name, if any, for log output.

	Naxisn []int32 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y,C)
	Pixels int32   // Number of values in the image. Product of Naxisn[]

	Data []float32 // The image data. One plane per channel, each plane in row-major order
}

// Creates an image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels := int32(1)
	for _, naxis := range naxisn {
		numPixels *= naxis
	}
	if data == nil {
		data = make([]float32, numPixels)
	}
	return &Image{
		Naxisn: append([]int32(nil), naxisn...), // clone slice
		Pixels: numPixels,
		Data:   data,
	}
}

// Creates an image with the same dimensions and ID as the given one. New data array will be allocated
func NewImageFromImage(img *Image) *Image {
	out := NewImageFromNaxisn(img.Naxisn, nil)
	out.ID, out.FileName = img.ID, img.FileName
	return out
}

// Creates a deep copy of the given image
func (f *Image) Clone() *Image {
	out := NewImageFromImage(f)
	copy(out.Data, f.Data)
	return out
}

func (f *Image) Width() int {
	if len(f.Naxisn) < 1 {
		return 0
	}
	return int(f.Naxisn[0])
}

func (f *Image) Height() int {
	if len(f.Naxisn) < 2 {
		return 0
	}
	return int(f.Naxisn[1])
}

// Number of channels. Two-dimensional images are mono
func (f *Image) Channels() int {
	switch len(f.Naxisn) {
	case 0:
		return 0
	case 1, 2:
		return 1
	default:
		return int(f.Naxisn[2])
	}
}

// Returns the data plane of the given channel
func (f *Image) Channel(c int) []float32 {
	l := len(f.Data) / f.Channels()
	return f.Data[c*l : (c+1)*l]
}

// Checks the image is a non-empty three-channel image
func (f *Image) CheckRGB() error {
	if len(f.Naxisn) != 3 || f.Naxisn[2] != 3 {
		return fmt.Errorf("%d: %s pixels: %w", f.ID, f.DimensionsToString(), ErrInvalidChannelCount)
	}
	if f.Naxisn[0] <= 0 || f.Naxisn[1] <= 0 {
		return fmt.Errorf("%d: %s pixels: %w", f.ID, f.DimensionsToString(), ErrEmptyImage)
	}
	if int(f.Pixels) != len(f.Data) {
		return fmt.Errorf("%d: %d values for %s pixels: %w", f.ID, len(f.Data), f.DimensionsToString(), ErrInvalidChannelCount)
	}
	return nil
}

func (f *Image) DimensionsToString() string {
	b := strings.Builder{}
	for i, naxis := range f.Naxisn {
		if i > 0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Widens a Go image into a display image with values in 0..255. Alpha is ignored
func NewImageFromGo(img image.Image) (*Image, error) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	f := NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
	if width == 0 || height == 0 {
		return f, nil
	}
	size := width * height
	rs, gs, bs := f.Data[:size], f.Data[size:2*size], f.Data[2*size:]

	var rows func(start, limit int)
	switch src := img.(type) {
	case *image.RGBA:
		rows = func(start, limit int) {
			for y := start; y < limit; y++ {
				pix := src.Pix[y*src.Stride:]
				for x := 0; x < width; x++ {
					i := y*width + x
					rs[i], gs[i], bs[i] = float32(pix[4*x]), float32(pix[4*x+1]), float32(pix[4*x+2])
				}
			}
		}
	case *image.NRGBA:
		rows = func(start, limit int) {
			for y := start; y < limit; y++ {
				pix := src.Pix[y*src.Stride:]
				for x := 0; x < width; x++ {
					i := y*width + x
					rs[i], gs[i], bs[i] = float32(pix[4*x]), float32(pix[4*x+1]), float32(pix[4*x+2])
				}
			}
		}
	default:
		rows = func(start, limit int) {
			for y := start; y < limit; y++ {
				for x := 0; x < width; x++ {
					c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
					i := y*width + x
					rs[i], gs[i], bs[i] = float32(c.R), float32(c.G), float32(c.B)
				}
			}
		}
	}
	if err := parallel.Run_in_parallel_over_range(0, rows, 0, height); err != nil {
		return nil, err
	}
	return f, nil
}

// Narrows a display image into a Go image. Values are clamped to 0..255 and rounded, NaN becomes 0
func (f *Image) ToGo() (*image.RGBA, error) {
	if err := f.CheckRGB(); err != nil {
		return nil, err
	}
	width, height := f.Width(), f.Height()
	size := width * height
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rs, gs, bs := f.Data[:size], f.Data[size:2*size], f.Data[2*size:]
	rows := func(start, limit int) {
		for y := start; y < limit; y++ {
			pix := img.Pix[y*img.Stride:]
			for x := 0; x < width; x++ {
				i := y*width + x
				pix[4*x], pix[4*x+1], pix[4*x+2], pix[4*x+3] = ToUint8(rs[i]), ToUint8(gs[i]), ToUint8(bs[i]), 255
			}
		}
	}
	if err := parallel.Run_in_parallel_over_range(0, rows, 0, height); err != nil {
		return nil, err
	}
	return img, nil
}

// Saturating conversion of a float to 8 bit, rounding to nearest. NaN maps to 0
func ToUint8(v float32) uint8 {
	return uint8(Clamp255(float32(math.Round(float64(v)))))
}

// Clamps a value to [0,255]. NaN maps to 0
func Clamp255(v float32) float32 {
	if !(v > 0) { // also catches NaN
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
