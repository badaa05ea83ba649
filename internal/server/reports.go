package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/usagetrack/internal/ratelimit"
	"github.com/smallbiznis/usagetrack/internal/tracking/report"
	"go.uber.org/zap"
)

const (
	formatJSON = "json"
	formatCSV  = "csv"
)

func (s *Server) MostAccessedDataset(c *gin.Context) {
	serveJSON(s, c, "most accessed dataset", s.reports.MostAccessedDatasetRows, report.DefaultObjectLimit)
}

func (s *Server) MostAccessedResource(c *gin.Context) {
	serveJSON(s, c, "most accessed resource", s.reports.MostAccessedResourceRows, report.DefaultObjectLimit)
}

func (s *Server) MostAccessedToken(c *gin.Context) {
	serveJSON(s, c, "most accessed token", s.reports.MostAccessedTokenRows, report.DefaultObjectLimit)
}

func (s *Server) AllTokenUsage(c *gin.Context) {
	serveJSON(s, c, "all token usage", s.reports.AllTokenUsageRows, report.DefaultAllUsageLimit)
}

func (s *Server) ActiveUsers(c *gin.Context) {
	serveJSON(s, c, "active users", s.reports.ActiveUsers, report.DefaultActiveUsersLimit)
}

func (s *Server) MostAccessedDatasetCSV(c *gin.Context) {
	serveCSV(s, c, "most accessed dataset with token", s.reports.MostAccessedDatasetRows, report.DefaultObjectLimit)
}

func (s *Server) MostAccessedResourceCSV(c *gin.Context) {
	serveCSV(s, c, "most accessed resource with token", s.reports.MostAccessedResourceRows, report.DefaultObjectLimit)
}

func (s *Server) MostAccessedTokenCSV(c *gin.Context) {
	serveCSV(s, c, "most accessed token", s.reports.MostAccessedTokenRows, report.DefaultObjectLimit)
}

func (s *Server) AllTokenUsageCSV(c *gin.Context) {
	serveCSV(s, c, "all token usage", s.reports.AllTokenUsageRows, report.DefaultAllUsageLimit)
}

func serveJSON[T any](s *Server, c *gin.Context, name string, load func(context.Context, int) ([]T, error), def int) {
	limit, err := parseLimit(c.Query("limit"), def)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	s.obsMetrics.RecordReportRequest(ctx, slug.Make(name), formatJSON)

	rows, err := load(ctx, limit)
	if err != nil {
		s.log.Error("report failed", zap.String("report", name), zap.Error(err))
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// serveCSV answers 204 with an empty body when the report has no rows.
func serveCSV[T report.Row](s *Server, c *gin.Context, name string, load func(context.Context, int) ([]T, error), def int) {
	limit, err := parseLimit(c.Query("limit"), def)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	s.obsMetrics.RecordReportRequest(ctx, slug.Make(name), formatCSV)

	release, err := s.throttleExport(c, slug.Make(name))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer release()

	rows, err := load(ctx, limit)
	if err != nil {
		s.log.Error("report export failed", zap.String("report", name), zap.Error(err))
		AbortWithError(c, err)
		return
	}
	if len(rows) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	header, records := report.Table(rows)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := w.WriteAll(records); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", slug.Make(name)+".csv"))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// throttleExport fails open when the limiter backend errors.
func (s *Server) throttleExport(c *gin.Context, report string) (func(), error) {
	noop := func() {}
	if !s.exports.Enabled() {
		return noop, nil
	}
	actor, _ := actorFromContext(c)
	ctx := c.Request.Context()

	res, err := s.exports.Allow(ctx, actor.UserID)
	if err != nil {
		s.log.Warn("export rate limit unavailable", zap.Error(err))
		return noop, nil
	}
	if !res.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		return noop, ErrTooManyRequests
	}

	release, err := s.exports.Acquire(ctx, actor.UserID, report)
	if errors.Is(err, ratelimit.ErrExportBusy) {
		return noop, err
	}
	if err != nil {
		s.log.Warn("export lock unavailable", zap.Error(err))
		return noop, nil
	}
	return release, nil
}

func parseLimit(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a positive integer")
	}
	return report.NormalizeLimit(limit, def), nil
}
