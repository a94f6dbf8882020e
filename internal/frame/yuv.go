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
	"io"
	"math"
	"os"
)

// Default frame size of raw YUV files, as produced by the capture pipeline
const (
	DefaultYUVWidth  = 1280
	DefaultYUVHeight = 720
)

var ErrOddSize = errors.New("YUV 4:2:0 needs even width and height")

// Size in bytes of a single planar 4:2:0 frame: full resolution Y plane
// followed by U and V planes at quarter resolution
func YUV420FrameSize(width, height int) int {
	return width*height + 2*(width/2)*(height/2)
}

// Reads planar YUV 4:2:0 frames of the given size until the end of the reader.
// Chroma is upsampled by pixel replication and converted with BT.601 coefficients.
// A truncated trailing frame is reported as io.ErrUnexpectedEOF
func ReadYUV420(r io.Reader, width, height int) ([]*Frame, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || height%2 != 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrOddSize, width, height)
	}
	buf := make([]byte, YUV420FrameSize(width, height))
	frames := []*Frame{}
	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("frame %d: %w", len(frames), err)
		}
		f := yuv420ToRGB(buf, width, height)
		f.ID = len(frames)
		frames = append(frames, f)
	}
}

// Reads all frames from a raw planar YUV 4:2:0 file
func ReadYUV420File(fileName string, width, height int) ([]*Frame, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadYUV420(bufio.NewReaderSize(file, YUV420FrameSize(width, height)), width, height)
}

// Writes frames as planar YUV 4:2:0. Chroma is downsampled with 2x2 averaging.
// All frames must share the size of the first
func WriteYUV420(w io.Writer, frames []*Frame) error {
	if len(frames) == 0 {
		return nil
	}
	width, height := frames[0].Width, frames[0].Height
	if width%2 != 0 || height%2 != 0 {
		return fmt.Errorf("%w: %dx%d", ErrOddSize, width, height)
	}
	buf := make([]byte, YUV420FrameSize(width, height))
	for i, f := range frames {
		if f.Width != width || f.Height != height {
			return fmt.Errorf("frame %d has size %s, expected %dx%d", i, f.DimensionsToString(), width, height)
		}
		rgbToYUV420(f, buf)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// Writes frames to a raw planar YUV 4:2:0 file
func WriteYUV420File(fileName string, frames []*Frame) error {
	file, err := os.Create(fileName)
	if err != nil {
		return err
	}
	writer := bufio.NewWriter(file)
	return finishFile(WriteYUV420(writer, frames), writer, file)
}

func clampByte(v float64) uint8 {
	v = math.RoundToEven(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func yuv420ToRGB(buf []byte, width, height int) *Frame {
	f := New(width, height)
	cw := width / 2
	yPlane := buf[:width*height]
	uPlane := buf[width*height : width*height+cw*(height/2)]
	vPlane := buf[width*height+cw*(height/2):]
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yy := float64(yPlane[y*width+x])
			u := float64(uPlane[(y/2)*cw+x/2]) - 128
			v := float64(vPlane[(y/2)*cw+x/2]) - 128
			f.Set(x, y,
				clampByte(yy+1.403*v),
				clampByte(yy-0.714*v-0.344*u),
				clampByte(yy+1.773*u),
			)
		}
	}
	return f
}

func rgbToYUV420(f *Frame, buf []byte) {
	width, height := f.Width, f.Height
	cw, ch := width/2, height/2
	yPlane := buf[:width*height]
	uPlane := buf[width*height : width*height+cw*ch]
	vPlane := buf[width*height+cw*ch:]

	us := make([]float64, width*height)
	vs := make([]float64, width*height)
	for i := 0; i < width*height; i++ {
		r, g, b := float64(f.Pix[3*i]), float64(f.Pix[3*i+1]), float64(f.Pix[3*i+2])
		yy := 0.299*r + 0.587*g + 0.114*b
		yPlane[i] = clampByte(yy)
		us[i] = (b-yy)*0.564 + 128
		vs[i] = (r-yy)*0.713 + 128
	}
	for y := 0; y < ch; y++ {
		for x := 0; x < cw; x++ {
			i := 2*y*width + 2*x
			uPlane[y*cw+x] = clampByte(0.25 * (us[i] + us[i+1] + us[i+width] + us[i+width+1]))
			vPlane[y*cw+x] = clampByte(0.25 * (vs[i] + vs[i+1] + vs[i+width] + vs[i+width+1]))
		}
	}
}
