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

package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/colortransfer/internal/ops"
	"github.com/mlnoga/colortransfer/internal/ops/xfer"
	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/mlnoga/colortransfer/internal/transfer"
	"github.com/mlnoga/colortransfer/web"
)

// Settings for the HTTP server
type Config struct {
	Addr        string // Listen address, e.g. ":8080"
	Chroot      string // Optional chroot directory, applied after binding the port
	Setuid      int    // Optional user ID to switch to after binding the port, or -1
	JPEGQuality int    // Quality for JPEG responses
}

type server struct {
	ctx         *ops.Context
	jpegQuality int
}

// Creates the router with all API endpoints
func NewRouter(c *ops.Context, jpegQuality int) *gin.Engine {
	s := &server{ctx: c, jpegQuality: jpegQuality}
	r := gin.New()
	r.Use(gin.LoggerWithWriter(c.Log), gin.Recovery())
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/transfer", s.postTransfer)
			v1.POST("/stats", s.postStats)
		}
	}
	return r
}

// Binds the listen address, sandboxes the process and serves requests until an error occurs
func Serve(c *ops.Context, cfg Config) error {
	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	if err := MakeSandbox(c.Log, cfg.Chroot, cfg.Setuid); err != nil {
		l.Close()
		return err
	}
	fmt.Fprintf(c.Log, "Listening on %s\n", l.Addr())
	return NewRouter(c, cfg.JPEGQuality).RunListener(l)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// Decodes an uploaded image from the given multipart form field
func formImage(c *gin.Context, field string, id int) (*raster.Image, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	defer file.Close()
	return raster.NewImageFromReader(file, fh.Filename, id)
}

// Parses transfer parameters. The optional params field holds a JSON operator,
// the truncate field overrides its narrowing
func transferOp(c *gin.Context) (*xfer.OpTransfer, error) {
	op := xfer.NewOpTransferDefault()
	if params := c.PostForm("params"); params != "" {
		if err := json.Unmarshal([]byte(params), op); err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		op.Active = true
	}
	if t := c.PostForm("truncate"); t != "" {
		truncate, err := strconv.ParseBool(t)
		if err != nil {
			return nil, fmt.Errorf("truncate: %w", err)
		}
		op.Narrowing = transfer.NarrowRound
		if truncate {
			op.Narrowing = transfer.NarrowTruncate
		}
	}
	return op, nil
}

func (s *server) postTransfer(c *gin.Context) {
	source, err := formImage(c, "source", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	target, err := formImage(c, "target", 1)
	if err != nil {
		badRequest(c, err)
		return
	}
	format, err := raster.ParseFormat(c.PostForm("format"))
	if err != nil {
		badRequest(c, err)
		return
	}
	op, err := transferOp(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	outs, err := op.MakePromises([]ops.Promise{ops.PromiseImage(source), ops.PromiseImage(target)}, s.ctx)
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := outs[0]()
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, raster.ErrImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	buf := bytes.Buffer{}
	if err := f.Write(&buf, format, s.jpegQuality); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if res := op.Result(); res != nil {
		setJSONHeader(c, "X-Source-Stats", res.SourceStats)
		setJSONHeader(c, "X-Target-Stats", res.TargetStats)
		if len(res.Degenerate) > 0 {
			setJSONHeader(c, "X-Degenerate", res.Degenerate)
		}
	}
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func setJSONHeader(c *gin.Context, key string, v interface{}) {
	if bs, err := json.Marshal(v); err == nil {
		c.Header(key, string(bs))
	}
}

func (s *server) postStats(c *gin.Context) {
	f, err := formImage(c, "image", 0)
	if err != nil {
		badRequest(c, err)
		return
	}
	op := xfer.NewOpStatsDefault()
	if _, err := op.Apply(f, s.ctx); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, op.Reports()[0])
}
