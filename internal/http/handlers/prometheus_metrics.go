package handlers

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"
)

// MetricsHandler serves the Prometheus exposition endpoint. An optional
// ?resource= argument narrows resource-labelled families to one resource,
// so a single scrape job per resource stays cheap; families without that
// label pass through untouched.
func MetricsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		resource := string(ctx.QueryArgs().Peek("resource"))

		metricFamilies, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to gather metrics")
			return
		}
		if resource != "" {
			metricFamilies = filterByResource(metricFamilies, resource)
		}

		var buf bytes.Buffer
		encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
		for _, mf := range metricFamilies {
			if err := encoder.Encode(mf); err != nil {
				ctx.SetStatusCode(fasthttp.StatusInternalServerError)
				ctx.SetBodyString("failed to encode metrics")
				return
			}
		}

		ctx.SetContentType(string(expfmt.FmtText))
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(buf.Bytes())
	}
}

func filterByResource(families []*dto.MetricFamily, resource string) []*dto.MetricFamily {
	filtered := make([]*dto.MetricFamily, 0, len(families))
	for _, mf := range families {
		hasResourceLabel := false
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "resource" {
					hasResourceLabel = true
					break
				}
			}
			if hasResourceLabel {
				break
			}
		}

		if !hasResourceLabel {
			filtered = append(filtered, mf)
			continue
		}

		var kept []*dto.Metric
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "resource" && l.GetValue() == resource {
					kept = append(kept, m)
					break
				}
			}
		}
		if len(kept) == 0 {
			continue
		}

		filtered = append(filtered, &dto.MetricFamily{
			Name:   mf.Name,
			Help:   mf.Help,
			Type:   mf.Type,
			Metric: kept,
		})
	}
	return filtered
}
