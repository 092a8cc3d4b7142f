// Package api runs attribution as an HTTP job service over object storage.
// A job fetches one hit export, runs both passes, and lands the keyword
// performance report back in the bucket, dated like a scheduled export.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thanos-io/objstore"
	"github.com/vinceanalytics/keywords/internal/attr"
	"github.com/vinceanalytics/keywords/internal/bucket"
	"github.com/vinceanalytics/keywords/internal/config"
	"github.com/vinceanalytics/keywords/internal/hits"
	"github.com/vinceanalytics/keywords/internal/log"
	"github.com/vinceanalytics/keywords/internal/report"
	"github.com/vinceanalytics/keywords/internal/system"
)

type JobRequest struct {
	InputBucket  string `json:"input_bucket,omitempty"`
	InputKey     string `json:"input_key"`
	OutputBucket string `json:"output_bucket,omitempty"`
	OutputKey    string `json:"output_key,omitempty"`
}

type JobResponse struct {
	ID             string  `json:"id"`
	Input          string  `json:"input"`
	Output         string  `json:"output"`
	RowsProcessed  int64   `json:"rows_processed"`
	RowsSkipped    int64   `json:"rows_skipped"`
	PurchasesFound int64   `json:"purchases_found"`
	UniqueKeywords int     `json:"unique_keywords"`
	TotalRevenue   float64 `json:"total_revenue"`
}

type Server struct {
	cfg   *config.Config
	retry *bucket.Retry

	// open is swappable so tests can hand jobs an in memory bucket.
	open func(name string) (objstore.Bucket, error)
}

func New(cfg *config.Config) *Server {
	return &Server{
		cfg:   cfg,
		retry: bucket.NewRetry(),
		open: func(name string) (objstore.Bucket, error) {
			return bucket.Open(&cfg.Store, name)
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", s.Jobs)
	mux.HandleFunc("/api/v1/healthz", s.Health)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Jobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.InputKey == "" {
		http.Error(w, "input_key is required", http.StatusBadRequest)
		return
	}
	resp, err := s.Run(r.Context(), &req)
	if err != nil {
		system.Jobs.WithLabelValues("failed").Inc()
		status := http.StatusInternalServerError
		if errors.Is(err, hits.ErrMissingColumns) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		return
	}
	system.Jobs.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

// Run executes one job: fetch the export, run both passes, store the report.
func (s *Server) Run(ctx context.Context, req *JobRequest) (*JobResponse, error) {
	id := ulid.Make().String()
	lg := log.Ctx(ctx).With().Str("job", id).Logger()
	ctx = log.Set(ctx, &lg)
	start := time.Now()

	in, err := s.open(req.InputBucket)
	if err != nil {
		return nil, fmt.Errorf("opening input bucket: %w", err)
	}
	defer in.Close()

	dir, err := os.MkdirTemp("", "keywords-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	local, err := s.retry.Fetch(ctx, in, req.InputKey, dir)
	if err != nil {
		return nil, err
	}

	src := hits.NewSource(hits.File(local), s.cfg.BatchSize)
	acc, stats, err := attr.Run(ctx, src, s.cfg.Workers)
	if err != nil {
		return nil, err
	}
	res := report.Materialize(acc, stats)

	outKey := req.OutputKey
	if outKey == "" {
		outKey = path.Join("output", report.DefaultName(time.Now()))
	}
	outName := req.OutputBucket
	if outName == "" {
		outName = req.InputBucket
	}
	out := in
	if outName != req.InputBucket {
		out, err = s.open(outName)
		if err != nil {
			return nil, fmt.Errorf("opening output bucket: %w", err)
		}
		defer out.Close()
	}
	localOut := local + ".tab"
	f, err := os.Create(localOut)
	if err != nil {
		return nil, err
	}
	err = res.WriteTSV(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	if err := s.retry.Store(ctx, out, outKey, localOut); err != nil {
		return nil, err
	}

	elapsed := time.Since(start)
	system.Observe(res.Stats, elapsed)
	lg.Info().
		Str("input", s.uri(req.InputBucket, req.InputKey)).
		Str("output", s.uri(outName, outKey)).
		Int64("rows", res.Stats.RowsProcessed).
		Int64("purchases", res.Stats.PurchasesFound).
		Int("keywords", res.Stats.UniqueKeywords).
		Float64("total_revenue", res.Stats.TotalRevenue).
		Dur("elapsed", elapsed).
		Msg("job done")
	return &JobResponse{
		ID:             id,
		Input:          s.uri(req.InputBucket, req.InputKey),
		Output:         s.uri(outName, outKey),
		RowsProcessed:  res.Stats.RowsProcessed,
		RowsSkipped:    res.Stats.RowsSkipped,
		PurchasesFound: res.Stats.PurchasesFound,
		UniqueKeywords: res.Stats.UniqueKeywords,
		TotalRevenue:   res.Stats.TotalRevenue,
	}, nil
}

func (s *Server) uri(name, key string) string {
	if s.cfg.Store.Provider == config.ProviderS3 {
		if name == "" {
			name = s.cfg.Store.S3.Bucket
		}
		return "s3://" + path.Join(name, key)
	}
	return path.Join(name, key)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
