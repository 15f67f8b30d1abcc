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
	"errors"
	"fmt"
)

// Error kinds reported by the color transfer pipeline. Match with errors.Is
var (
	ErrInvalidChannelCount = errors.New("image must have exactly 3 channels")
	ErrEmptyImage          = errors.New("image has zero pixels")
	ErrImageLoadFailed     = errors.New("image load failed")
	ErrImageTooLarge       = errors.New("image exceeds memory budget")
	ErrDegenerateChannel   = errors.New("channel has zero standard deviation")
)

// A failure to load an image from a path. Matches ErrImageLoadFailed,
// and unwraps to the underlying cause (e.g. fs.ErrNotExist)
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrImageLoadFailed.Error(), e.Path, e.Err.Error())
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool { return target == ErrImageLoadFailed }
