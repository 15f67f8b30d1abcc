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
	"os"
	"sort"
	"sync"

	"github.com/mlnoga/colortransfer/internal/ops"
	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/mlnoga/colortransfer/internal/stats"
)

// Calculates extended uniform color space statistics for each input and logs them.
// Optionally exports all reports seen so far as JSON to a file.
// Takes n inputs, produces the n unchanged inputs
type OpStats struct {
	ops.OpUnaryBase
	NumSamples int    `json:"numSamples"` // Random samples for median estimation
	FileName   string `json:"fileName"`   // Optional JSON export

	mutex   sync.Mutex      `json:"-"`
	reports []*stats.Report `json:"-"`
}

func init() { ops.SetOperatorFactory(func() ops.Operator { return NewOpStatsDefault() }) } // register the operator for JSON decoding

func NewOpStatsDefault() *OpStats { return NewOpStats(stats.DefaultSamples, "") }

func NewOpStats(numSamples int, fileName string) *OpStats {
	op := &OpStats{
		OpUnaryBase: ops.OpUnaryBase{OpBase: ops.OpBase{Type: "stats", Active: true}},
		NumSamples:  numSamples,
		FileName:    fileName,
	}
	op.OpUnaryBase.Apply = op.Apply // assign class method to superclass abstract method
	return op
}

// Unmarshal the type from JSON with default values for missing entries
func (op *OpStats) UnmarshalJSON(data []byte) error {
	var def struct {
		ops.OpBase
		NumSamples int    `json:"numSamples"`
		FileName   string `json:"fileName"`
	}
	d := NewOpStatsDefault()
	def.OpBase, def.NumSamples, def.FileName = d.OpBase, d.NumSamples, d.FileName
	if err := json.Unmarshal(data, &def); err != nil {
		return err
	}
	op.OpUnaryBase = ops.OpUnaryBase{OpBase: def.OpBase}
	op.NumSamples, op.FileName = def.NumSamples, def.FileName
	op.OpUnaryBase.Apply = op.Apply // make method receiver point to op
	return nil
}

// Returns the reports gathered so far, sorted by image ID
func (op *OpStats) Reports() []*stats.Report {
	op.mutex.Lock()
	defer op.mutex.Unlock()
	return append([]*stats.Report(nil), op.reports...)
}

func (op *OpStats) Apply(f *raster.Image, c *ops.Context) (result *raster.Image, err error) {
	lab, err := raster.ToUniform(f)
	if err != nil {
		return nil, err
	}
	r, err := stats.NewReport(lab, op.NumSamples)
	if err != nil {
		return nil, err
	}
	fmt.Fprint(c.Log, r.String())

	op.mutex.Lock()         // lock so a single thread is active
	defer op.mutex.Unlock() // always release lock on exit
	op.reports = append(op.reports, r)
	sort.Slice(op.reports, func(i, j int) bool { return op.reports[i].ID < op.reports[j].ID })
	if op.FileName != "" {
		if err := op.writeReports(c); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Writes all reports gathered so far to the export file. Caller holds the mutex
func (op *OpStats) writeReports(c *ops.Context) error {
	fmt.Fprintf(c.Log, "Writing %d statistics reports to file %s ...\n", len(op.reports), op.FileName)
	bs, err := json.MarshalIndent(op.reports, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(op.FileName, bs, 0644); err != nil {
		return fmt.Errorf("error writing file %s: %w", op.FileName, err)
	}
	return nil
}
