package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"ipdr-backend/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fakeServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {})

	mux.HandleFunc("POST /predict-file", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "No file uploaded", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if len(data) == 0 {
			http.Error(w, "Uploaded file is empty", http.StatusBadRequest)
			return
		}
		writeJson(w, api.PredictFileResponse{
			Predictions: []string{"normal"},
			N:           1,
			File:        "upload_1_aaaaaaaa_" + header.Filename,
		})
	})

	mux.HandleFunc("GET /data/list", func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, []string{"upload_1_aaaaaaaa_a.csv", "upload_2_bbbbbbbb_b.csv"})
	})

	mux.HandleFunc("DELETE /data/delete", func(w http.ResponseWriter, r *http.Request) {
		file := r.URL.Query().Get("file")
		if file != "upload_1_aaaaaaaa_a.csv" {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		writeJson(w, api.StatusResponse{Status: "ok", Message: "File " + file + " deleted successfully"})
	})

	mux.HandleFunc("GET /reports/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJson(w, api.SummaryResponse{TotalPredictions: 3, ByLabel: map[string]int64{"normal": 2, "suspicious": 1}})
	})

	mux.HandleFunc("GET /reports/export", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "csv" {
			http.Error(w, "unsupported format", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("file,row,prediction\n"))
	})

	mux.HandleFunc("GET /reports/export_pdf", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.3"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestUploadAndList(t *testing.T) {
	c := New(fakeServer(t).URL)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	path := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(path, []byte("ip,data_volume\n10.0.0.1,5\n"), 0644))

	res, err := c.Upload(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "upload_1_aaaaaaaa_a.csv", res.File)
	assert.Equal(t, []string{"normal"}, res.Predictions)

	files, err := c.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"upload_1_aaaaaaaa_a.csv", "upload_2_bbbbbbbb_b.csv"}, files)

	summary, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.TotalPredictions)
}

func TestUploadEmptyFile(t *testing.T) {
	c := New(fakeServer(t).URL)

	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := c.Upload(context.Background(), path)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Uploaded file is empty", apiErr.Message)
}

func TestDelete(t *testing.T) {
	c := New(fakeServer(t).URL)
	ctx := context.Background()

	res, err := c.Delete(ctx, "upload_1_aaaaaaaa_a.csv")
	require.NoError(t, err)
	assert.Equal(t, "File upload_1_aaaaaaaa_a.csv deleted successfully", res.Message)

	_, err = c.Delete(ctx, "missing.csv")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestExport(t *testing.T) {
	c := New(fakeServer(t).URL)
	ctx := context.Background()

	var csv bytes.Buffer
	require.NoError(t, c.Export(ctx, "csv", &csv))
	assert.Equal(t, "file,row,prediction\n", csv.String())

	var pdf bytes.Buffer
	require.NoError(t, c.Export(ctx, "pdf", &pdf))
	assert.Equal(t, "%PDF-1.3", pdf.String())

	var out bytes.Buffer
	err := c.Export(ctx, "json", &out)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Empty(t, out.String())
}

func TestUnreachableServer(t *testing.T) {
	server := fakeServer(t)
	c := New(server.URL)
	server.Close()

	_, err := c.List(context.Background())
	require.Error(t, err)
	var apiErr *Error
	assert.False(t, errors.As(err, &apiErr))
}
