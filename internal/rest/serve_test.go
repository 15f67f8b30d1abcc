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
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/colortransfer/internal/ops"
	"github.com/mlnoga/colortransfer/internal/raster"
	"github.com/mlnoga/colortransfer/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func testRouter(workMemoryMB int) *gin.Engine {
	c := ops.NewContext(io.Discard)
	c.MaxThreads = 2
	c.WorkMemoryMB = workMemoryMB
	return NewRouter(c, 90)
}

func encodedImage(t *testing.T, width, height, seed int) []byte {
	f := raster.NewImageFromNaxisn([]int32{int32(width), int32(height), 3}, nil)
	for i := range f.Data {
		f.Data[i] = float32((i*seed + 5) % 256)
	}
	buf := bytes.Buffer{}
	require.NoError(t, f.Write(&buf, raster.FormatPNG, 0))
	return buf.Bytes()
}

// Builds a multipart request with the given files and fields
func multipartRequest(t *testing.T, url string, files map[string][]byte, fields map[string]string) *http.Request {
	body := bytes.Buffer{}
	w := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := w.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPing(t *testing.T) {
	rec := serve(testRouter(0), httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"pong"}`, rec.Body.String())
}

func TestIndex(t *testing.T) {
	rec := serve(testRouter(0), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/api/v1/transfer")
}

func TestTransfer(t *testing.T) {
	files := map[string][]byte{"source": encodedImage(t, 8, 6, 7), "target": encodedImage(t, 5, 9, 3)}
	for _, fields := range []map[string]string{
		nil,
		{"truncate": "true"},
		{"format": "bmp", "params": `{"type":"transfer","narrowing":"truncate"}`},
	} {
		rec := serve(testRouter(0), multipartRequest(t, "/api/v1/transfer", files, fields))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		f, err := raster.NewImageFromReader(rec.Body, "response", 0)
		require.NoError(t, err)
		assert.Equal(t, 5, f.Width())
		assert.Equal(t, 9, f.Height())

		var s stats.ChannelStats
		require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("X-Source-Stats")), &s))
		assert.Greater(t, s.StdL, float32(0))
	}
}

func TestTransferJPEG(t *testing.T) {
	files := map[string][]byte{"source": encodedImage(t, 8, 6, 7), "target": encodedImage(t, 16, 16, 3)}
	rec := serve(testRouter(0), multipartRequest(t, "/api/v1/transfer", files, map[string]string{"format": "jpeg"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
}

func TestTransferBadRequests(t *testing.T) {
	good := encodedImage(t, 4, 4, 7)
	for name, req := range map[string]*http.Request{
		"missing target": multipartRequest(t, "/api/v1/transfer", map[string][]byte{"source": good}, nil),
		"garbage source": multipartRequest(t, "/api/v1/transfer", map[string][]byte{"source": []byte("not an image"), "target": good}, nil),
		"unknown format": multipartRequest(t, "/api/v1/transfer", map[string][]byte{"source": good, "target": good}, map[string]string{"format": "gif"}),
		"bad truncate":   multipartRequest(t, "/api/v1/transfer", map[string][]byte{"source": good, "target": good}, map[string]string{"truncate": "maybe"}),
		"bad params":     multipartRequest(t, "/api/v1/transfer", map[string][]byte{"source": good, "target": good}, map[string]string{"params": `{"narrowing":"sideways"}`}),
		"not multipart":  httptest.NewRequest(http.MethodPost, "/api/v1/transfer", bytes.NewBufferString("{}")),
	} {
		rec := serve(testRouter(0), req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Contains(t, rec.Body.String(), "error", name)
	}
}

func TestTransferTooLarge(t *testing.T) {
	files := map[string][]byte{"source": encodedImage(t, 4, 4, 7), "target": encodedImage(t, 300, 300, 3)}
	rec := serve(testRouter(1), multipartRequest(t, "/api/v1/transfer", files, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), raster.ErrImageTooLarge.Error())
}

func TestStats(t *testing.T) {
	rec := serve(testRouter(0), multipartRequest(t, "/api/v1/stats", map[string][]byte{"image": encodedImage(t, 6, 4, 11)}, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var r stats.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	assert.Equal(t, "6x4x3", r.Dimensions)
	assert.Equal(t, "image.png", r.FileName)
	assert.Equal(t, "b", r.Channels[2].Name)

	rec = serve(testRouter(0), multipartRequest(t, "/api/v1/stats", nil, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
