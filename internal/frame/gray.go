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

// A single channel float32 image with gray values in [0,255]
type Gray struct {
	Width  int
	Height int
	Pix    []float32
}

// Creates a new gray image of the given size, initialized to zero
func NewGray(width, height int) *Gray {
	return &Gray{Width: width, Height: height, Pix: make([]float32, width*height)}
}

// Gray value at x, y
func (g *Gray) At(x, y int) float32 {
	return g.Pix[y*g.Width+x]
}

// Gray value at x, y with coordinates clamped into the image,
// i.e. the outermost rows and columns are replicated
func (g *Gray) AtClamped(x, y int) float32 {
	if x < 0 {
		x = 0
	} else if x >= g.Width {
		x = g.Width - 1
	}
	if y < 0 {
		y = 0
	} else if y >= g.Height {
		y = g.Height - 1
	}
	return g.Pix[y*g.Width+x]
}

// Luma of a single RGB pixel with BT.601 weights, rounded to the nearest integer
func Luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// Converts a frame to grayscale using Y = (299 R + 587 G + 114 B + 500) / 1000
func ToGray(f *Frame) *Gray {
	g := NewGray(f.Width, f.Height)
	for i := range g.Pix {
		o := 3 * i
		g.Pix[i] = float32(Luma(f.Pix[o], f.Pix[o+1], f.Pix[o+2]))
	}
	return g
}

// Downsamples the gray image by a factor of two with 2x2 box averaging.
// Odd trailing rows and columns are folded into the last output pixel
func (g *Gray) Half() *Gray {
	w, h := (g.Width+1)/2, (g.Height+1)/2
	res := NewGray(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := 2*x, 2*y
			sum := g.AtClamped(sx, sy) + g.AtClamped(sx+1, sy) + g.AtClamped(sx, sy+1) + g.AtClamped(sx+1, sy+1)
			res.Pix[y*w+x] = 0.25 * sum
		}
	}
	return res
}
