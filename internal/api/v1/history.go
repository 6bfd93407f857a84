package api

import (
	"bytes"
	"net/http"
	"slices"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/history"
)

// ExportFilename is the attachment name of the CSV export.
const ExportFilename = "qcline-history.csv"

// HistoryResponse is a page of completed items.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
	Total   int64            `json:"total"`
	Limit   int              `json:"limit"`
}

func (c *Controller) initHistoryRoutes() {
	c.Group.GET("/history", c.GetHistory)
	c.Group.GET("/export.csv", c.ExportCSV)
}

// historyFilter parses the lane, verdict and limit query parameters.
func historyFilter(ctx echo.Context) (history.Filter, error) {
	f := history.Filter{
		Lane:    ctx.QueryParam("lane"),
		Verdict: classifier.Verdict(ctx.QueryParam("verdict")),
	}
	if f.Verdict != "" && !slices.Contains(classifier.Verdicts, f.Verdict) {
		return f, echo.NewHTTPError(http.StatusBadRequest, "unknown verdict "+string(f.Verdict))
	}
	if raw := ctx.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return f, echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		f.Limit = limit
	}
	return f, nil
}

// GetHistory handles GET /api/v1/history
func (c *Controller) GetHistory(ctx echo.Context) error {
	if c.History == nil {
		return c.HandleError(ctx, nil, "Item history is not enabled", http.StatusServiceUnavailable)
	}

	f, err := historyFilter(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid history query", http.StatusBadRequest)
	}

	records, err := c.History.List(f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list item history", http.StatusInternalServerError)
	}
	total, err := c.History.Count(f)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to count item history", http.StatusInternalServerError)
	}
	if records == nil {
		records = []history.Record{}
	}

	limit := f.Limit
	if limit == 0 {
		limit = history.DefaultListLimit
	}
	return ctx.JSON(http.StatusOK, HistoryResponse{Records: records, Total: total, Limit: limit})
}

// ExportCSV handles GET /api/v1/export.csv. Rendered exports are cached for
// a few seconds so polling dashboards do not hit the database every time.
func (c *Controller) ExportCSV(ctx echo.Context) error {
	if c.History == nil {
		return c.HandleError(ctx, nil, "Item history is not enabled", http.StatusServiceUnavailable)
	}

	f, err := historyFilter(ctx)
	if err != nil {
		return c.HandleError(ctx, err, "Invalid export query", http.StatusBadRequest)
	}

	key := "export:" + f.Lane + ":" + string(f.Verdict) + ":" + strconv.Itoa(f.Limit)
	body, found := c.exportCache.Get(key)
	if !found {
		var buf bytes.Buffer
		if err := c.History.WriteCSV(&buf, f); err != nil {
			return c.HandleError(ctx, err, "Failed to export item history", http.StatusInternalServerError)
		}
		body = buf.Bytes()
		c.exportCache.Set(key, body, cache.DefaultExpiration)
	}

	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+ExportFilename+`"`)
	return ctx.Blob(http.StatusOK, "text/csv; charset=utf-8", body.([]byte))
}
