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

package transfer

import (
	"fmt"
	"math"
	"strings"

	"github.com/mlnoga/colortransfer/internal/raster"
)

// How clamped float values are narrowed to 8 bit levels
type Narrowing int

const (
	NarrowRound    Narrowing = iota // Round to nearest level
	NarrowTruncate                  // Truncate towards zero, as plain integer casts do
)

func (n Narrowing) String() string {
	switch n {
	case NarrowRound:
		return "round"
	case NarrowTruncate:
		return "truncate"
	}
	return fmt.Sprintf("Narrowing(%d)", int(n))
}

// Parses a narrowing mode from its string form
func ParseNarrowing(s string) (Narrowing, error) {
	switch strings.ToLower(s) {
	case "", "round":
		return NarrowRound, nil
	case "truncate", "trunc":
		return NarrowTruncate, nil
	}
	return NarrowRound, fmt.Errorf("unknown narrowing mode '%s'", s)
}

func (n Narrowing) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Narrowing) UnmarshalText(text []byte) error {
	v, err := ParseNarrowing(string(text))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

// Pixel function narrowing clamped values to integer levels. Operates in-place
func pf3ChanNarrow(c0, c1, c2 []float32, params interface{}) {
	round := params.(Narrowing) != NarrowTruncate
	for _, data := range [3][]float32{c0, c1, c2} {
		for i, v := range data {
			if round {
				data[i] = float32(math.Round(float64(v)))
			} else {
				data[i] = float32(math.Trunc(float64(v)))
			}
		}
	}
}

// Clamps the uniform values of the given image to [0,255], narrows them to 8 bit levels
// and converts the result to display values. Returns a new image
func Finish(lab *raster.Image, narrow Narrowing) (*raster.Image, error) {
	out := lab.Clone()
	if err := out.Clamp(); err != nil {
		return nil, err
	}
	if err := out.ApplyPixelFunction3Chan(pf3ChanNarrow, narrow); err != nil {
		return nil, err
	}
	if err := out.LabToRGB(); err != nil {
		return nil, err
	}
	return out, nil
}
