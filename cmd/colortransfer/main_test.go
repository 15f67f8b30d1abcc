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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mlnoga/colortransfer/internal/ops"
	"github.com/mlnoga/colortransfer/internal/ops/xfer"
	"github.com/mlnoga/colortransfer/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sets a flag variable for the duration of the test
func setFlag[T any](t *testing.T, p *T, v T) {
	old := *p
	*p = v
	t.Cleanup(func() { *p = old })
}

func TestTransferPipelineFromFlags(t *testing.T) {
	setFlag(t, source, "src.jpg")
	setFlag(t, target, "tgt.png")
	setFlag(t, out, "result.tif")
	setFlag(t, truncate, true)

	seq, err := transferPipeline(nil)
	require.NoError(t, err)
	require.Len(t, seq.Steps, 3)
	load := seq.Steps[0].(*ops.OpLoadMany)
	assert.Equal(t, []string{"src.jpg", "tgt.png"}, load.FilePatterns)
	assert.True(t, load.Literal)
	assert.Equal(t, transfer.NarrowTruncate, seq.Steps[1].(*xfer.OpTransfer).Narrowing)
	assert.Equal(t, "result.tif", seq.Steps[2].(*ops.OpSave).FilePattern)

	seq, err = transferPipeline([]string{"a.png", "b.png"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, seq.Steps[0].(*ops.OpLoadMany).FilePatterns)

	_, err = transferPipeline([]string{"only.png"})
	assert.Error(t, err)
}

func TestTransferPipelineNeedsBothImages(t *testing.T) {
	setFlag(t, source, "")
	setFlag(t, target, "tgt.png")
	_, err := transferPipeline(nil)
	assert.Error(t, err)
}

func TestTransferPipelineFromFile(t *testing.T) {
	fileName := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(fileName, []byte(`{"type":"seq","active":true,"steps":[
		{"type":"loadMany","filePatterns":["s.png","t.png"]},
		{"type":"transfer"},
		{"type":"save","filePattern":"o.png"}
	]}`), 0644))
	setFlag(t, pipeline, fileName)

	seq, err := transferPipeline(nil)
	require.NoError(t, err)
	require.Len(t, seq.Steps, 3)
	assert.Equal(t, transfer.NarrowRound, seq.Steps[1].(*xfer.OpTransfer).Narrowing)
	assert.Equal(t, 95, seq.Steps[2].(*ops.OpSave).Quality)
}
