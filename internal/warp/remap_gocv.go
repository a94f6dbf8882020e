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

//go:build gocv

package warp

import (
	"fmt"
	"image/color"

	"github.com/mlnoga/mctf/internal/frame"
	"gocv.io/x/gocv"
)

// Resampler backed by OpenCV remap with linear interpolation and replicated
// borders. Rounding follows OpenCV's fixed point arithmetic, so results may
// differ from Bilinear by one in rare cases
type Remap struct{}

func NewRemap() *Remap { return &Remap{} }

func (r *Remap) Resample(src *frame.Frame, m *Map) (*frame.Frame, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	srcMat, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC3, src.Pix)
	if err != nil {
		return nil, fmt.Errorf("remap source: %w", err)
	}
	defer srcMat.Close()

	mapX := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV32F)
	defer mapX.Close()
	mapY := gocv.NewMatWithSize(m.Height, m.Width, gocv.MatTypeCV32F)
	defer mapY.Close()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			i := y*m.Width + x
			mapX.SetFloatAt(y, x, float32(m.X[i]))
			mapY.SetFloatAt(y, x, float32(m.Y[i]))
		}
	}

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Remap(srcMat, &dst, &mapX, &mapY, gocv.InterpolationLinear, gocv.BorderReplicate, color.RGBA{})

	res := frame.NewFromPix(m.Width, m.Height, dst.ToBytes())
	res.ID = src.ID
	return res, nil
}
