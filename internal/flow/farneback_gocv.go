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

package flow

import (
	"fmt"

	"github.com/mlnoga/mctf/internal/frame"
	"gocv.io/x/gocv"
)

// Dense optic flow with OpenCV's Farneback polynomial expansion method
type Farneback struct {
	PyrScale   float64 `json:"pyrScale"`
	Levels     int     `json:"levels"`
	WinSize    int     `json:"winSize"`
	Iterations int     `json:"iterations"`
	PolyN      int     `json:"polyN"`
	PolySigma  float64 `json:"polySigma"`
}

func NewFarnebackDefault() *Farneback {
	return &Farneback{PyrScale: 0.5, Levels: 3, WinSize: 15, Iterations: 3, PolyN: 5, PolySigma: 1.2}
}

func grayToMat(g *frame.Gray) (gocv.Mat, error) {
	buf := make([]byte, len(g.Pix))
	for i, v := range g.Pix {
		if v < 0 {
			v = 0
		} else if v > 255 {
			v = 255
		}
		buf[i] = byte(v + 0.5)
	}
	return gocv.NewMatFromBytes(g.Height, g.Width, gocv.MatTypeCV8UC1, buf)
}

func (fb *Farneback) Estimate(a, b *frame.Gray) (*Field, error) {
	if err := checkPair(a, b); err != nil {
		return nil, err
	}
	prev, err := grayToMat(a)
	if err != nil {
		return nil, fmt.Errorf("farneback: %w", err)
	}
	defer prev.Close()
	next, err := grayToMat(b)
	if err != nil {
		return nil, fmt.Errorf("farneback: %w", err)
	}
	defer next.Close()

	flowMat := gocv.NewMat()
	defer flowMat.Close()
	gocv.CalcOpticalFlowFarneback(prev, next, &flowMat, fb.PyrScale, fb.Levels, fb.WinSize, fb.Iterations, fb.PolyN, fb.PolySigma, 0)
	if flowMat.Empty() || flowMat.Type() != gocv.MatTypeCV32FC2 {
		return nil, fmt.Errorf("farneback: unexpected flow matrix")
	}

	res := NewField(a.Width, a.Height)
	for y := 0; y < a.Height; y++ {
		for x := 0; x < a.Width; x++ {
			vec := flowMat.GetVecfAt(y, x)
			res.DX[y*a.Width+x], res.DY[y*a.Width+x] = float64(vec[0]), float64(vec[1])
		}
	}
	return res, nil
}
