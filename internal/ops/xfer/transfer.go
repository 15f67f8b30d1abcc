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

package xfer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mlnoga/colortransfer/internal/ops"
	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/mlnoga/colortransfer/internal/transfer"
)

// Transfers the color distribution of a source image onto a target image.
// Takes two inputs (source first, then target), produces one output
type OpTransfer struct {
	ops.OpBase
	transfer.Options

	mutex  sync.Mutex       `json:"-"`
	result *transfer.Result `json:"-"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpTransferDefault() }) } // register the operator for JSON decoding

func NewOpTransferDefault() *OpTransfer { return NewOpTransfer(transfer.Options{}) }

func NewOpTransfer(opts transfer.Options) *OpTransfer {
	return &OpTransfer{
		OpBase:  ops.OpBase{Type: "transfer", Active: true},
		Options: opts,
	}
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpTransfer) UnmarshalJSON(data []byte) error {
	var def struct {
		ops.OpBase
		transfer.Options
	}
	d := NewOpTransferDefault()
	def.OpBase, def.Options = d.OpBase, d.Options
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	op.OpBase, op.Options = def.OpBase, def.Options
	return nil
}

func (op *OpTransfer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ops.OpBase
		transfer.Options
	}{op.OpBase, op.Options})
}

// Returns the outcome of the most recent materialization, or nil
func (op *OpTransfer) Result() *transfer.Result {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return op.result
}

func (op *OpTransfer) MakePromises(ins []ops.Promise, c *ops.Context) (outs []ops.Promise, err error) {
	if len(ins) != 2 {
		return nil, fmt.Errorf("%s operator needs a source and a target input, got %d", op.Type, len(ins))
	}
	if !op.Active {
		return ins[1:], nil
	}
	out := func() (*raster.Image, error) {
		fs, err := ops.MaterializeAll(ins, c.MaxThreads, false)
		if err != nil {
			return nil, err
		}
		return op.Apply(fs[0], fs[1], c)
	}
	return []ops.Promise{out}, nil
}

// Applies the transfer to materialized images
func (op *OpTransfer) Apply(source, target *raster.Image, c *ops.Context) (*raster.Image, error) {
	if err := CheckMemory(c, source, target); err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Transferring colors from %d (%s) to %d (%s) with %s narrowing ...\n",
		target.ID, source.ID, source.DimensionsToString(), target.ID, target.DimensionsToString(), op.Narrowing)
	res, err := transfer.Transfer(source, target, op.Options)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.Log, "%d: Source %v\n", source.ID, res.SourceStats)
	fmt.Fprintf(c.Log, "%d: Target %v\n", target.ID, res.TargetStats)
	for _, d := range res.Degenerate {
		fmt.Fprintf(c.Log, "%d: Warning: %s\n", target.ID, d.Error())
	}

	op.mutex.Lock()
	op.result = res
	op.mutex.Unlock()
	return res.Image, nil
}

// Bytes of working buffers the transfer allocates beyond its inputs:
// a uniform copy of the source, and uniform, matched and finished copies of the target
func WorkingBytes(source, target *raster.Image) int64 {
	return 4 * (int64(source.Pixels) + 3*int64(target.Pixels))
}

// Checks the working buffers of the transfer fit into the memory budget of the context.
// A non-positive budget disables the check
func CheckMemory(c *ops.Context, source, target *raster.Image) error {
	if c.WorkMemoryMB <= 0 {
		return nil
	}
	need, budget := WorkingBytes(source, target), int64(c.WorkMemoryMB)*1024*1024
	if need > budget {
		return fmt.Errorf("%d: need %d MiB for %s and %s pixels, budget %d MiB: %w", target.ID,
			(need+1024*1024-1)/(1024*1024), source.DimensionsToString(), target.DimensionsToString(),
			c.WorkMemoryMB, raster.ErrImageTooLarge)
	}
	return nil
}
