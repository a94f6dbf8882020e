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

package frame

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

var ErrUnknownSuffix = errors.New("unknown file suffix")

// Write a frame to JPG with the given quality
func (f *Frame) WriteJPG(writer io.Writer, quality int) error {
	return jpeg.Encode(writer, f.ToImage(), &jpeg.Options{Quality: quality})
}

// Write a frame to PNG
func (f *Frame) WritePNG(writer io.Writer) error {
	return png.Encode(writer, f.ToImage())
}

// Write a frame to 8-bit TIFF with deflate compression
func (f *Frame) WriteTIFF(writer io.Writer) error {
	return tiff.Encode(writer, f.ToImage(), &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Write a frame to the given file. The format is chosen by suffix:
// .png, .jpg/.jpeg or .tif/.tiff
func (f *Frame) WriteFile(fileName string) error {
	return writeImageFile(fileName, f.WritePNG, f.WriteJPG, f.WriteTIFF)
}

// Write any Go image to the given file, choosing the format by suffix
func WriteImageFile(fileName string, img image.Image) error {
	return writeImageFile(fileName,
		func(w io.Writer) error { return png.Encode(w, img) },
		func(w io.Writer, q int) error { return jpeg.Encode(w, img, &jpeg.Options{Quality: q}) },
		func(w io.Writer) error { return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true}) },
	)
}

func writeImageFile(fileName string, pngFn func(io.Writer) error, jpgFn func(io.Writer, int) error, tiffFn func(io.Writer) error) error {
	var encode func(io.Writer) error
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".png":
		encode = pngFn
	case ".jpg", ".jpeg":
		encode = func(w io.Writer) error { return jpgFn(w, 95) }
	case ".tif", ".tiff":
		encode = tiffFn
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSuffix, fileName)
	}

	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	return finishFile(encode(writer), writer, file)
}

// Flushes the writer unless writing failed, then closes the file.
// Returns the first error of writing, flushing and closing
func finishFile(writeErr error, writer *bufio.Writer, file io.Closer) error {
	if writeErr == nil {
		writeErr = writer.Flush()
	}
	if closeErr := file.Close(); writeErr == nil {
		writeErr = closeErr
	}
	return writeErr
}

// Load a frame from a PNG, JPEG or TIFF file
func Load(fileName string) (*Frame, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", fileName, err)
	}
	return FromImage(img), nil
}

// Save a frame to the given file, choosing the format by suffix
func Save(fileName string, f *Frame) error {
	return f.WriteFile(fileName)
}
