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

	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/mlnoga/colortransfer/internal/stats"
)

// Options for the color transfer pipeline
type Options struct {
	Narrowing Narrowing `json:"narrowing"`
}

// Outcome of a color transfer
type Result struct {
	Image       *raster.Image      `json:"-"`           // Display image with the target's structure and the source's colors
	SourceStats stats.ChannelStats `json:"sourceStats"` // Uniform color space statistics of the source
	TargetStats stats.ChannelStats `json:"targetStats"` // Uniform color space statistics of the target
	Degenerate  []Degenerate       `json:"degenerate"`  // Channels with degenerate scale ratios, if any
}

// Transfers the color distribution of the source onto the target. Both images
// must be non-empty three-channel display images. Neither input is modified.
// The result has the target's dimensions, ID and file name
func Transfer(source, target *raster.Image, opts Options) (*Result, error) {
	srcLab, err := raster.ToUniform(source)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	tgtLab, err := raster.ToUniform(target)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	res := &Result{}
	if res.SourceStats, err = stats.Compute(srcLab); err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if res.TargetStats, err = stats.Compute(tgtLab); err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}

	matched, degenerate, err := Match(tgtLab, res.TargetStats, res.SourceStats)
	if err != nil {
		return nil, err
	}
	res.Degenerate = degenerate
	if res.Image, err = Finish(matched, opts.Narrowing); err != nil {
		return nil, err
	}
	return res, nil
}
