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
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Reads an image file in any of the registered raster formats (PNG, JPEG, GIF, BMP, TIFF, WebP).
// Any failure is reported as a *LoadError
func NewImageFromFile(fileName string, id int) (*Image, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, &LoadError{Path: fileName, Err: err}
	}
	defer file.Close()

	f, err := NewImageFromReader(bufio.NewReader(file), fileName, id)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Decodes an image from the given reader. The name is used for error and log output only
func NewImageFromReader(r io.Reader, name string, id int) (*Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	f, err := NewImageFromGo(img)
	if err != nil {
		return nil, &LoadError{Path: name, Err: err}
	}
	if f.Pixels == 0 {
		return nil, &LoadError{Path: name, Err: fmt.Errorf("%s image with %s pixels: %w", format, f.DimensionsToString(), ErrEmptyImage)}
	}
	f.ID, f.FileName = id, name
	return f, nil
}
