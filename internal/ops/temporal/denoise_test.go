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

package temporal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mlnoga/mctf/internal/denoise"
	"github.com/mlnoga/mctf/internal/flow"
	"github.com/mlnoga/mctf/internal/frame"
	"github.com/mlnoga/mctf/internal/ops"
	"github.com/mlnoga/mctf/internal/synth"
	"github.com/mlnoga/mctf/internal/warp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpDenoiseJSONDefaults(t *testing.T) {
	op := NewOpDenoiseDefault()
	require.NoError(t, json.Unmarshal([]byte(`{"type":"denoise","config":{"radius":2},"estimator":"zero"}`), op))
	assert.Equal(t, 2, op.Config.Radius)
	assert.Equal(t, 40, op.Config.Threshold)
	assert.Equal(t, "zero", op.Estimator)
	assert.Equal(t, "bilinear", op.Resampler)
	assert.True(t, op.Active)
	assert.NotNil(t, ops.GetOperatorFactory("denoise"))
}

func TestRegistry(t *testing.T) {
	assert.Contains(t, EstimatorNames(), "hornSchunck")
	assert.Contains(t, ResamplerNames(), "bilinear")

	c := denoise.DefaultConfig()
	c.HornSchunck.Alpha = 7
	est, err := NewEstimator("hornSchunck", &c)
	require.NoError(t, err)
	c.HornSchunck.Alpha = 9 // the estimator holds its own copy
	assert.Equal(t, 7.0, est.(*flow.HornSchunck).Alpha)

	_, err = NewEstimator("magic", &c)
	assert.ErrorIs(t, err, denoise.ErrInvalidInput)
	_, err = NewResampler("magic", 1)
	assert.ErrorIs(t, err, denoise.ErrInvalidInput)
	assert.Panics(t, func() { RegisterResampler("bilinear", nil) })
}

func TestDenoisePipeline(t *testing.T) {
	dir := t.TempDir()
	p := synth.DefaultParams()
	p.Width, p.Height, p.Frames, p.DX, p.DY, p.Spikes = 16, 8, 4, 0, 0, 2
	_, noisy := synth.Generate(p)
	for i, f := range noisy {
		require.NoError(t, frame.Save(filepath.Join(dir, fmt.Sprintf("in%d.png", i)), f))
	}

	js := fmt.Sprintf(`{"steps":[
		{"type":"loadMany","filePatterns":[%q]},
		{"type":"denoise","config":{"radius":1},"estimator":"zero"},
		{"type":"forEach","operation":{"type":"save","filePattern":%q}}
	]}`, filepath.Join(dir, "in*.png"), filepath.Join(dir, "out%d.png"))

	log := &bytes.Buffer{}
	c := ops.NewContext(log)
	res, err := ops.RunJSON([]byte(js), c)
	require.NoError(t, err)
	require.Len(t, res, 4)

	cfg := denoise.DefaultConfig()
	cfg.Radius = 1
	want, err := denoise.Denoise(noisy, cfg, mustEstimator(t, "zero", &cfg), mustResampler(t, "bilinear"), nil)
	require.NoError(t, err)
	for i := range want {
		assert.True(t, want[i].Equal(res[i]), "frame %d", i)
		saved, err := frame.Load(filepath.Join(dir, fmt.Sprintf("out%d.png", i)))
		require.NoError(t, err)
		assert.True(t, want[i].Equal(saved), "saved frame %d", i)
	}
	assert.Contains(t, log.String(), "Using zero motion estimation")
}

func mustEstimator(t *testing.T, name string, c *denoise.Config) flow.Estimator {
	est, err := NewEstimator(name, c)
	require.NoError(t, err)
	return est
}

func mustResampler(t *testing.T, name string) warp.Resampler {
	res, err := NewResampler(name, 2)
	require.NoError(t, err)
	return res
}

func TestResamplerThreadsSplitBudget(t *testing.T) {
	cfg := denoise.DefaultConfig()
	cfg.Radius, cfg.MemoryMB, cfg.MaxThreads = 1, 1024, 8

	fs := []*frame.Frame{frame.New(16, 16), frame.New(16, 16), frame.New(16, 16), frame.New(16, 16)}
	assert.Equal(t, 2, resamplerThreads(fs, cfg), "four workers share eight threads")
	assert.Equal(t, 8, resamplerThreads(fs[:1], cfg), "a single worker keeps all threads")
	assert.Equal(t, 1, resamplerThreads(nil, cfg))
}
