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

package flow

import (
	"image"
	"math"

	"github.com/fogleman/gg"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Magnitude at which the colour wheel reaches full saturation
const SaturationMagnitude = 10.0

// Renders the field as a colour wheel image: hue encodes the direction,
// saturation the magnitude up to SaturationMagnitude, at full value
func (f *Field) ColorImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			dx, dy := f.At(x, y)
			hue := math.Atan2(dy, dx) * 180 / math.Pi
			if hue < 0 {
				hue += 360
			}
			sat := math.Min(math.Hypot(dx, dy)/SaturationMagnitude, 1)
			r, g, b := colorful.Hsv(hue, sat, 1).Clamped().RGB255()
			o := img.PixOffset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 0xff
		}
	}
	return img
}

// Renders the field as red arrows on black, one every step pixels
// where the magnitude exceeds minMagnitude
func (f *Field) ArrowImage(step int, minMagnitude float64) image.Image {
	if step < 1 {
		step = 1
	}
	dc := gg.NewContext(f.Width, f.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(1)
	for y := step / 2; y < f.Height; y += step {
		for x := step / 2; x < f.Width; x += step {
			dx, dy := f.At(x, y)
			mag := math.Hypot(dx, dy)
			if mag <= minMagnitude {
				continue
			}
			x0, y0 := float64(x), float64(y)
			x1, y1 := x0+dx, y0+dy
			dc.DrawLine(x0, y0, x1, y1)

			// arrow head
			angle := math.Atan2(dy, dx)
			head := math.Min(4, 0.4*mag)
			for _, side := range []float64{-1, 1} {
				a := angle + math.Pi + side*math.Pi/6
				dc.DrawLine(x1, y1, x1+head*math.Cos(a), y1+head*math.Sin(a))
			}
			dc.Stroke()
		}
	}
	return dc.Image()
}
