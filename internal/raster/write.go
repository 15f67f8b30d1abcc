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
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// An output file format
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
)

// Determines the output format from the file name suffix
func FormatFromFileName(fileName string) (Format, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".bmp":
		return FormatBMP, nil
	}
	return "", fmt.Errorf("unknown suffix for output file %s", fileName)
}

// Parses a format name as used in the REST API
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return "", fmt.Errorf("unknown image format %s", s)
}

// MIME content type of the format
func (fo Format) ContentType() string {
	return "image/" + string(fo)
}

// Write a display image to a file, choosing the format from the file name suffix.
// Quality applies to JPEG only
func (f *Image) WriteFile(fileName string, quality int) error {
	format, err := FormatFromFileName(fileName)
	if err != nil {
		return err
	}
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}

	writer := bufio.NewWriter(file)
	if err = f.Write(writer, format, quality); err != nil {
		file.Close()
		return err
	}
	if err = writer.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// Write a display image in the given format
func (f *Image) Write(writer io.Writer, format Format, quality int) error {
	img, err := f.ToGo()
	if err != nil {
		return err
	}
	switch format {
	case FormatPNG:
		return png.Encode(writer, img)
	case FormatJPEG:
		return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
	case FormatTIFF:
		return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case FormatBMP:
		return bmp.Encode(writer, img)
	}
	return fmt.Errorf("unknown image format %s", format)
}
