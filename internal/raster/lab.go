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
	colorful "github.com/lucasb-eyer/go-colorful"
)

// The uniform color space is CIE L*a*b* relative to D65, scaled the way 8-bit
// image codecs store it: L in [0,100] maps to [0,255], a and b are offset by 128.
const (
	labScaleL  = 255.0
	labScaleAB = 100.0
	labOffset  = 128.0
)

// Converts one sRGB pixel with channels in 0..255 into scaled L*a*b*
func RGBToLab(r, g, b float32) (l, a, bb float32) {
	col := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	ll, aa, bbb := col.Lab()
	return float32(ll * labScaleL), float32(aa*labScaleAB + labOffset), float32(bbb*labScaleAB + labOffset)
}

// Converts one scaled L*a*b* pixel into sRGB with channels in 0..255.
// Out-of-gamut colors are clamped, and channels rounded to integers
func LabToRGB(l, a, b float32) (r, g, bb float32) {
	col := colorful.Lab(float64(l)/labScaleL, (float64(a)-labOffset)/labScaleAB, (float64(b)-labOffset)/labScaleAB)
	r8, g8, b8 := col.Clamped().RGB255()
	return float32(r8), float32(g8), float32(b8)
}

// Pixel function to convert sRGB to scaled L*a*b*. Operates in-place
func pf3ChanRGBToLab(rs, gs, bs []float32, params interface{}) {
	for i := range rs {
		rs[i], gs[i], bs[i] = RGBToLab(rs[i], gs[i], bs[i])
	}
}

// Pixel function to convert scaled L*a*b* to sRGB. Operates in-place
func pf3ChanLabToRGB(ls, as, bs []float32, params interface{}) {
	for i := range ls {
		ls[i], as[i], bs[i] = LabToRGB(ls[i], as[i], bs[i])
	}
}

// Converts display values to the uniform color space. Operates in-place
func (f *Image) RGBToLab() error {
	return f.ApplyPixelFunction3Chan(pf3ChanRGBToLab, nil)
}

// Converts uniform color space values to display values. Operates in-place
func (f *Image) LabToRGB() error {
	return f.ApplyPixelFunction3Chan(pf3ChanLabToRGB, nil)
}

// Converts a display image into the uniform color space. Returns a new image
func ToUniform(f *Image) (*Image, error) {
	out := f.Clone()
	if err := out.RGBToLab(); err != nil {
		return nil, err
	}
	return out, nil
}

// Converts a uniform color space image back to display values. Returns a new image
func ToDisplay(f *Image) (*Image, error) {
	out := f.Clone()
	if err := out.LabToRGB(); err != nil {
		return nil, err
	}
	return out, nil
}
