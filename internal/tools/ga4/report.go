// Package ga4 implements the supplemented GA4 analytics tool family
// (SPEC_FULL.md supplemented feature: ga4_run_report), rooted at a
// service-account JSON the same way config.GA4Config describes. Grounded
// on google.golang.org/api, used elsewhere in the retrieval pack (e.g.
// taipm-go-deep-agent) for Google API access — the teacher itself has no
// analytics integration, so this is new domain-stack wiring rather than
// an adaptation of teacher code.
package ga4

import (
	"context"
	"fmt"

	"google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"github.com/shannon-run/llm-gateway/internal/tools"
)

// RunReportTool executes a GA4 "runReport" query for one property.
type RunReportTool struct {
	propertyID string
	service    *analyticsdata.Service
}

// NewRunReportTool builds the ga4_run_report tool from a service-account
// JSON credential and a GA4 property id (config.GA4Config).
func NewRunReportTool(ctx context.Context, serviceAccountJSON []byte, propertyID string) (*RunReportTool, error) {
	svc, err := analyticsdata.NewService(ctx, option.WithCredentialsJSON(serviceAccountJSON))
	if err != nil {
		return nil, fmt.Errorf("create analytics data service: %w", err)
	}
	return &RunReportTool{propertyID: propertyID, service: svc}, nil
}

func (t *RunReportTool) Metadata() tools.Metadata {
	return tools.Metadata{
		Name:        "ga4_run_report",
		Description: "Run a GA4 Data API report (dimensions, metrics, date range) against the configured property.",
		Category:    "ga4",
		RequiresAuth: true,
	}
}

func (t *RunReportTool) Parameters() []tools.ToolParameter {
	return []tools.ToolParameter{
		{Name: "dimensions", Type: tools.ParamArray, ItemsType: tools.ParamString, Required: true, Description: "GA4 dimension names, e.g. pagePath"},
		{Name: "metrics", Type: tools.ParamArray, ItemsType: tools.ParamString, Required: true, Description: "GA4 metric names, e.g. screenPageViews"},
		{Name: "start_date", Type: tools.ParamString, Required: false, Default: "7daysAgo", Description: "GA4 relative or absolute start date"},
		{Name: "end_date", Type: tools.ParamString, Required: false, Default: "today", Description: "GA4 relative or absolute end date"},
	}
}

func (t *RunReportTool) Run(ctx context.Context, sess *tools.SessionContext, obs tools.Observer, params map[string]any) (tools.Result, error) {
	dims := toStringSlice(params["dimensions"])
	metrics := toStringSlice(params["metrics"])
	startDate, _ := params["start_date"].(string)
	if startDate == "" {
		startDate = "7daysAgo"
	}
	endDate, _ := params["end_date"].(string)
	if endDate == "" {
		endDate = "today"
	}

	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{StartDate: startDate, EndDate: endDate}},
	}
	for _, d := range dims {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}

	resp, err := t.service.Properties.RunReport("properties/"+t.propertyID, req).Context(ctx).Do()
	if err != nil {
		return tools.Result{Success: false, Error: err.Error()}, nil
	}

	rows := make([]map[string]any, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		entry := map[string]any{}
		for i, dv := range row.DimensionValues {
			if i < len(dims) {
				entry[dims[i]] = dv.Value
			}
		}
		for i, mv := range row.MetricValues {
			if i < len(metrics) {
				entry[metrics[i]] = mv.Value
			}
		}
		rows = append(rows, entry)
	}
	return tools.Result{Success: true, Output: map[string]any{"rows": rows, "row_count": resp.RowCount}}, nil
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
