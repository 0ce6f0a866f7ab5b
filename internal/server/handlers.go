package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
	"github.com/mohammed1916/marine-anomaly/internal/logging"
	"github.com/mohammed1916/marine-anomaly/internal/record"
	pq "github.com/mohammed1916/marine-anomaly/internal/storage/parquet"
	"github.com/mohammed1916/marine-anomaly/internal/validation"
)

// Default query parameters.
const (
	DefaultStartTS  int64   = -1_000_000_000_000_000_000
	DefaultEndTS    int64   = 1_000_000_000_000_000_000
	DefaultStart    int64   = 0
	DefaultEnd      int64   = 100
	DefaultCellSize float64 = 0.001
)

const contentNDJSON = "application/x-ndjson"

// errorBody is the JSON body of a failed request.
type errorBody struct {
	Error string `json:"error"`
}

// FileEntry is one entry of GET /files.
type FileEntry struct {
	Name string `json:"name"`
}

// RowLine is one NDJSON line of the row streams.
type RowLine struct {
	Progress int           `json:"progress"`
	Row      record.Record `json:"row"`
}

// VesselCount is the body of GET /unique-vessels and one NDJSON line of
// POST /unique-vessels-multi.
type VesselCount struct {
	File          string `json:"file"`
	UniqueVessels int64  `json:"unique_vessels"`
	Progress      *int   `json:"progress,omitempty"`
}

// MultiRequest is the body of POST /unique-vessels-multi.
type MultiRequest struct {
	Files []string `json:"files"`
}

func writeJSON(c *gin.Context, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fail(c, fmt.Errorf("encode response: %w", err))
		return
	}
	c.Data(status, "application/json; charset=utf-8", data)
}

// fail responds with the status err maps to.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := errors.HTTPStatus(err)
	data, _ := json.Marshal(errorBody{Error: err.Error()})
	c.Data(status, "application/json; charset=utf-8", data)
	c.Abort()
}

func queryInt(c *gin.Context, name string, def int64, required bool) (int64, error) {
	s, ok := c.GetQuery(name)
	if !ok || s == "" {
		if required {
			return 0, errors.NewMissingField(name)
		}
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.NewInvalidArgument(name, s, "not an integer")
	}
	return v, nil
}

func queryFloat(c *gin.Context, name string, def float64) (float64, error) {
	s, ok := c.GetQuery(name)
	if !ok || s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.NewInvalidArgument(name, s, "not a number")
	}
	return v, nil
}

// timeRange parses start_ts and end_ts.
func timeRange(c *gin.Context, required bool) (int64, int64, error) {
	t0, err := queryInt(c, "start_ts", DefaultStartTS, required)
	if err != nil {
		return 0, 0, err
	}
	t1, err := queryInt(c, "end_ts", DefaultEndTS, required)
	if err != nil {
		return 0, 0, err
	}
	return t0, t1, nil
}

// fileParam validates the file query parameter and returns its canonical
// name and filesystem path.
func (s *Server) fileParam(c *gin.Context) (string, string, error) {
	name, err := validation.ValidateFile(c.Query("file"))
	if err != nil {
		return "", "", err
	}
	p, err := validation.ResolveFile(s.dataDir, name)
	return name, p, err
}

func (s *Server) openFile(c *gin.Context) (string, *pq.File, error) {
	name, p, err := s.fileParam(c)
	if err != nil {
		return "", nil, err
	}
	f, err := pq.Open(p)
	if err != nil {
		return "", nil, err
	}
	return name, f, nil
}

func (s *Server) queryContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.queryTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

// loadContext returns the context of a shared cache load. It keeps the values
// of ctx but not its cancellation, and is bounded by the query timeout.
func (s *Server) loadContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.queryTimeout > 0 {
		return context.WithTimeout(ctx, s.queryTimeout)
	}
	return context.WithCancel(ctx)
}

// ndjson writes one line per value and flushes it to the client.
type ndjson struct {
	c       *gin.Context
	started bool
}

func (w *ndjson) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !w.started {
		w.c.Header("Content-Type", contentNDJSON)
		w.c.Status(http.StatusOK)
		w.started = true
	}
	data = append(data, '\n')
	if _, err := w.c.Writer.Write(data); err != nil {
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// finish reports an error that happened mid-stream. Once the first line is
// sent the status can no longer change; the stream is cut short instead.
func (w *ndjson) finish(err error) {
	if err == nil {
		if !w.started {
			w.c.Header("Content-Type", contentNDJSON)
			w.c.Status(http.StatusOK)
			w.c.Writer.WriteHeaderNow()
		}
		return
	}
	if !w.started {
		fail(w.c, err)
		return
	}
	_ = w.c.Error(err)
}

func progress(done, total int64) int {
	return int(done * 100 / max(total, 1))
}

func (s *Server) handleFiles(c *gin.Context) {
	names, err := pq.ListFiles(s.dataDir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		fail(c, fmt.Errorf("list files: %w", err))
		return
	}
	entries := make([]FileEntry, len(names))
	for i, n := range names {
		entries[i] = FileEntry{Name: n}
	}
	writeJSON(c, http.StatusOK, entries)
}

func (s *Server) handleStreamRows(c *gin.Context) {
	start, err := queryInt(c, "start", DefaultStart, false)
	if err != nil {
		fail(c, err)
		return
	}
	end, err := queryInt(c, "end", DefaultEnd, false)
	if err != nil {
		fail(c, err)
		return
	}
	_, f, err := s.openFile(c)
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	ctx, cancel := s.queryContext(c)
	defer cancel()

	out := &ndjson{c: c}
	err = s.engine.RowsRange(ctx, f, start, end, func(i int64, r record.Record) error {
		return out.write(RowLine{Progress: progress(i-start+1, end-start), Row: r})
	})
	out.finish(err)
}

func (s *Server) handleStreamTime(c *gin.Context) {
	t0, t1, err := timeRange(c, true)
	if err != nil {
		fail(c, err)
		return
	}
	_, f, err := s.openFile(c)
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	ctx, cancel := s.queryContext(c)
	defer cancel()

	rows, err := s.engine.TimeWindow(ctx, f, t0, t1)
	if err != nil {
		fail(c, err)
		return
	}

	out := &ndjson{c: c}
	total := int64(len(rows))
	for i, r := range rows {
		if err := out.write(RowLine{Progress: progress(int64(i)+1, total), Row: r}); err != nil {
			out.finish(err)
			return
		}
	}
	out.finish(nil)
}

func (s *Server) handleRow(c *gin.Context) {
	index, err := strconv.ParseInt(c.Param("index"), 10, 64)
	if err != nil {
		fail(c, errors.NewInvalidArgument("index", c.Param("index"), "not an integer"))
		return
	}
	_, f, err := s.openFile(c)
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	ctx, cancel := s.queryContext(c)
	defer cancel()

	r, err := s.engine.RowAt(ctx, f, index)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (s *Server) handleBounds(c *gin.Context) {
	switch kind := c.DefaultQuery("kind", "time"); kind {
	case "time":
		s.handleTimeBounds(c)
	case "geo":
		s.handleGeoBounds(c)
	default:
		fail(c, errors.NewInvalidArgument("kind", kind, "expected time or geo"))
	}
}

func (s *Server) handleTimeBounds(c *gin.Context) {
	name, p, err := s.fileParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	v, err := s.cache.Do(CacheKey(name, 0, 0, "bounds"), func() (any, error) {
		lctx, cancel := s.loadContext(ctx)
		defer cancel()
		f, err := pq.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return s.engine.TimeBounds(lctx, f)
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleGeoBounds(c *gin.Context) {
	if !s.requireAnalytics(c) {
		return
	}
	t0, t1, err := timeRange(c, false)
	if err != nil {
		fail(c, err)
		return
	}
	name, p, err := s.fileParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	v, err := s.cache.Do(CacheKey(name, t0, t1, "geo"), func() (any, error) {
		lctx, cancel := s.loadContext(ctx)
		defer cancel()
		return s.analytics.GeoBounds(lctx, p, t0, t1)
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) requireAnalytics(c *gin.Context) bool {
	if s.analytics == nil {
		writeJSON(c, http.StatusServiceUnavailable, errorBody{Error: "analytics disabled"})
		c.Abort()
		return false
	}
	return true
}

func (s *Server) handleHeatmap(c *gin.Context) {
	if !s.requireAnalytics(c) {
		return
	}
	t0, t1, err := timeRange(c, false)
	if err != nil {
		fail(c, err)
		return
	}
	cell, err := queryFloat(c, "cell_size", DefaultCellSize)
	if err != nil {
		fail(c, err)
		return
	}
	name, p, err := s.fileParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	key := CacheKey(name, t0, t1, "heatmap:"+strconv.FormatFloat(cell, 'g', -1, 64))
	v, err := s.cache.Do(key, func() (any, error) {
		lctx, cancel := s.loadContext(ctx)
		defer cancel()
		cells, err := s.analytics.Heatmap(lctx, p, t0, t1, cell)
		if err != nil {
			return nil, err
		}
		points := make([][3]float64, len(cells))
		for i, hc := range cells {
			points[i] = [3]float64{hc.Lat, hc.Lon, hc.Weight}
		}
		return points, nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleUniqueVessels(c *gin.Context) {
	if !s.requireAnalytics(c) {
		return
	}
	t0, t1, err := timeRange(c, false)
	if err != nil {
		fail(c, err)
		return
	}
	name, p, err := s.fileParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	v, err := s.cache.Do(CacheKey(name, t0, t1, "unique"), func() (any, error) {
		lctx, cancel := s.loadContext(ctx)
		defer cancel()
		n, err := s.analytics.UniqueVessels(lctx, p, t0, t1)
		if err != nil {
			return nil, err
		}
		return VesselCount{File: name, UniqueVessels: n}, nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleVesselIDs(c *gin.Context) {
	if !s.requireAnalytics(c) {
		return
	}
	t0, t1, err := timeRange(c, false)
	if err != nil {
		fail(c, err)
		return
	}
	name, p, err := s.fileParam(c)
	if err != nil {
		fail(c, err)
		return
	}
	ctx := c.Request.Context()

	v, err := s.cache.Do(CacheKey(name, t0, t1, "ids"), func() (any, error) {
		lctx, cancel := s.loadContext(ctx)
		defer cancel()
		return s.analytics.VesselIDs(lctx, p, t0, t1)
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, v)
}

func (s *Server) handleUniqueVesselsMulti(c *gin.Context) {
	if !s.requireAnalytics(c) {
		return
	}
	var req MultiRequest
	body, err := c.GetRawData()
	if err != nil {
		fail(c, errors.NewInvalidArgument("body", "", err.Error()))
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		fail(c, errors.NewInvalidArgument("body", "", err.Error()))
		return
	}
	names, err := validation.ValidateFiles(req.Files)
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()

	out := &ndjson{c: c}
	for i, name := range names {
		p, _ := validation.ResolveFile(s.dataDir, name)
		if err := ctx.Err(); err != nil {
			out.finish(err)
			return
		}
		v, err := s.cache.Do(CacheKey(name, DefaultStartTS, DefaultEndTS, "unique"), func() (any, error) {
			lctx, cancel := s.loadContext(ctx)
			defer cancel()
			n, err := s.analytics.UniqueVessels(lctx, p, DefaultStartTS, DefaultEndTS)
			if err != nil {
				return nil, err
			}
			return VesselCount{File: name, UniqueVessels: n}, nil
		})
		if err != nil {
			logging.FromContext(ctx, s.log).Warn("unique vessels failed", "file", name, "error", err)
			out.finish(err)
			return
		}
		line := v.(VesselCount)
		pct := progress(int64(i)+1, int64(len(names)))
		line.Progress = &pct
		if err := out.write(line); err != nil {
			out.finish(err)
			return
		}
	}
	out.finish(nil)
}
