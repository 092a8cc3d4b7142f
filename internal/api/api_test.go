package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore"
	"github.com/vinceanalytics/keywords/internal/config"
)

const sample = "ip\treferrer\tevent_list\tproduct_list\n" +
	"1.1.1.1\thttp://www.google.com/search?q=Ipod\t\t\n" +
	"1.1.1.1\t\t1\tElectronics;Ipod;1;290;\n" +
	"2.2.2.2\thttp://www.bing.com/search?q=Zune\t\t\n" +
	"2.2.2.2\t\t1\tElectronics;Zune;1;250;\n"

func testServer(buckets map[string]objstore.Bucket) *Server {
	cfg := &config.Config{BatchSize: 2, Workers: 2}
	s := New(cfg)
	s.open = func(name string) (objstore.Bucket, error) {
		b, ok := buckets[name]
		if !ok {
			return nil, fmt.Errorf("no bucket %q", name)
		}
		return b, nil
	}
	return s
}

func postJob(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJobRoundTrip(t *testing.T) {
	ctx := context.Background()
	exports := objstore.NewInMemBucket()
	require.NoError(t, exports.Upload(ctx, "in/hits.tsv", bytes.NewReader([]byte(sample))))
	s := testServer(map[string]objstore.Bucket{"exports": exports})

	w := postJob(t, s.Handler(),
		`{"input_bucket":"exports","input_key":"in/hits.tsv","output_key":"output/report.tab"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	require.Equal(t, int64(4), resp.RowsProcessed)
	require.Equal(t, int64(2), resp.PurchasesFound)
	require.Equal(t, 2, resp.UniqueKeywords)
	require.Equal(t, 540.0, resp.TotalRevenue)

	rc, err := exports.Get(ctx, "output/report.tab")
	require.NoError(t, err)
	defer rc.Close()
	d, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t,
		"Search Engine Domain\tSearch Keyword\tRevenue\n"+
			"www.google.com\tipod\t290.00\n"+
			"www.bing.com\tzune\t250.00\n",
		string(d))
}

func TestJobDefaultOutputKey(t *testing.T) {
	ctx := context.Background()
	exports := objstore.NewInMemBucket()
	require.NoError(t, exports.Upload(ctx, "hits.tsv", bytes.NewReader([]byte(sample))))
	s := testServer(map[string]objstore.Bucket{"": exports})

	w := postJob(t, s.Handler(), `{"input_key":"hits.tsv"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	require.NoError(t, exports.Iter(ctx, "output/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	require.Len(t, names, 1)
	require.True(t, strings.HasSuffix(names[0], "_SearchKeywordPerformance.tab"), names[0])
}

func TestJobSeparateOutputBucket(t *testing.T) {
	ctx := context.Background()
	exports := objstore.NewInMemBucket()
	reports := objstore.NewInMemBucket()
	require.NoError(t, exports.Upload(ctx, "hits.tsv", bytes.NewReader([]byte(sample))))
	s := testServer(map[string]objstore.Bucket{"exports": exports, "reports": reports})

	w := postJob(t, s.Handler(),
		`{"input_bucket":"exports","input_key":"hits.tsv","output_bucket":"reports","output_key":"report.tab"}`)
	require.Equal(t, http.StatusOK, w.Code)

	ok, err := reports.Exists(ctx, "report.tab")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJobValidation(t *testing.T) {
	s := testServer(map[string]objstore.Bucket{"": objstore.NewInMemBucket()})
	h := s.Handler()

	w := postJob(t, h, `{`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJob(t, h, `{"input_bucket":"exports"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestJobBadExportIsUnprocessable(t *testing.T) {
	ctx := context.Background()
	exports := objstore.NewInMemBucket()
	require.NoError(t, exports.Upload(ctx, "hits.tsv",
		bytes.NewReader([]byte("ip\treferrer\n1.1.1.1\thttp://x/\n"))))
	s := testServer(map[string]objstore.Bucket{"": exports})

	w := postJob(t, s.Handler(), `{"input_key":"hits.tsv"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := testServer(nil)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "keywords_rows_processed_total")
}
