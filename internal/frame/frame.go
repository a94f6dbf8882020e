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

// Package frame holds video frames with 8-bit RGB pixels, their grayscale
// counterparts used for motion estimation, and conversions to and from the
// Go image world and raw planar YUV files.
package frame

import (
	"fmt"
	"image"
	"image/color"
)

// A video frame. Pixels are 8-bit R,G,B triplets, interleaved and row-major.
// Frames handed to the denoiser are treated as read-only.
type Frame struct {
	ID     int     // Sequential index within the sequence, for log output
	Width  int     // Number of columns
	Height int     // Number of rows
	Pix    []uint8 // Pixel data, 3*Width bytes per row
}

// Creates a new black frame of the given size
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, 3*width*height),
	}
}

// Creates a frame around the given pixel data. Data is not copied
func NewFromPix(width, height int, pix []uint8) *Frame {
	return &Frame{Width: width, Height: height, Pix: pix}
}

// Returns a deep copy of the frame
func (f *Frame) Clone() *Frame {
	return &Frame{
		ID:     f.ID,
		Width:  f.Width,
		Height: f.Height,
		Pix:    append([]uint8(nil), f.Pix...),
	}
}

// Computes the offset of the red channel for pixel x, y
func (f *Frame) PixOffset(x, y int) int {
	return (y*f.Width + x) * 3
}

// Returns the channel values at x, y
func (f *Frame) At(x, y int) (r, g, b uint8) {
	i := f.PixOffset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// Sets the channel values at x, y
func (f *Frame) Set(x, y int, r, g, b uint8) {
	i := f.PixOffset(x, y)
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
}

// Sets all pixels to the given color
func (f *Frame) Fill(r, g, b uint8) {
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2] = r, g, b
	}
}

// Bounds of the frame in image coordinates
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Tells whether two frames have identical width and height
func (f *Frame) SameShape(o *Frame) bool {
	return f.Width == o.Width && f.Height == o.Height
}

// Tells whether two frames have identical shape and pixel values
func (f *Frame) Equal(o *Frame) bool {
	if !f.SameShape(o) || len(f.Pix) != len(o.Pix) {
		return false
	}
	for i, v := range f.Pix {
		if v != o.Pix[i] {
			return false
		}
	}
	return true
}

func (f *Frame) DimensionsToString() string {
	return fmt.Sprintf("%dx%d", f.Width, f.Height)
}

// Converts the frame into a Go image
func (f *Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Width*3 : (y+1)*f.Width*3]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for x := 0; x < f.Width; x++ {
			dst[4*x], dst[4*x+1], dst[4*x+2], dst[4*x+3] = src[3*x], src[3*x+1], src[3*x+2], 0xff
		}
	}
	return img
}

// Creates a frame from any Go image. Alpha is ignored
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy())
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := rgba.Pix[rgba.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
			dst := f.Pix[y*f.Width*3:]
			for x := 0; x < f.Width; x++ {
				dst[3*x], dst[3*x+1], dst[3*x+2] = src[4*x], src[4*x+1], src[4*x+2]
			}
		}
		return f
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
			f.Set(x-bounds.Min.X, y-bounds.Min.Y, c.R, c.G, c.B)
		}
	}
	return f
}
