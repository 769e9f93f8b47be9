package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"marketplace-settlement/internal/audit"
	"marketplace-settlement/internal/auth"
	"marketplace-settlement/internal/kernel"
	"marketplace-settlement/internal/observability/metrics"
	reporting "marketplace-settlement/internal/reporting/domain"
)

const reportsPrefix = "/api/v1/reports/vendors/"

const (
	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// RevenueReporter builds vendor revenue reports.
type RevenueReporter interface {
	VendorRevenue(ctx context.Context, vendorID string, period reporting.Period) (reporting.VendorRevenue, error)
}

// Handler serves vendor revenue reports.
type Handler struct {
	reporter    RevenueReporter
	auditLogger audit.Logger
	clock       kernel.Clock
}

// NewHandler constructs a handler.
func NewHandler(reporter RevenueReporter, auditLogger audit.Logger) (*Handler, error) {
	if reporter == nil {
		return nil, errors.New("reporting handler: nil reporter")
	}
	return &Handler{reporter: reporter, auditLogger: auditLogger, clock: kernel.SystemClock{}}, nil
}

// ServeHTTP handles GET /api/v1/reports/vendors/{id}/revenue[.pdf|.xlsx].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || !strings.HasPrefix(r.URL.Path, reportsPrefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, reportsPrefix), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	vendorID := parts[0]
	var format string
	switch parts[1] {
	case "revenue":
		format = "json"
	case "revenue.pdf":
		format = "pdf"
	case "revenue.xlsx":
		format = "xlsx"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !canView(r.Context(), vendorID) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	period, err := PeriodFromQuery(r, h.clock.Now())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.handleRevenue(w, r, vendorID, period, format)
}

func (h *Handler) handleRevenue(w http.ResponseWriter, r *http.Request, vendorID string, period reporting.Period, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportExport(format, result, time.Since(start))
	}()

	report, err := h.reporter.VendorRevenue(r.Context(), vendorID, period)
	if err != nil {
		result = metrics.ResultError
		respondReportError(w, err)
		return
	}
	data, contentType, err := Render(report, format)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if format != "json" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, FileName(report, format)))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	if h.auditLogger != nil {
		_ = h.auditLogger.Log(r.Context(), audit.FromRequest(r, "report.export", "vendor", vendorID, map[string]any{
			"format": format,
			"from":   period.From.Format(time.DateOnly),
			"to":     period.To.Format(time.DateOnly),
		}))
	}
}

// Render encodes report in the given format: json, pdf or xlsx.
func Render(report reporting.VendorRevenue, format string) ([]byte, string, error) {
	switch format {
	case "json":
		data, err := json.Marshal(report)
		return data, "application/json", err
	case "pdf":
		data, err := BuildRevenuePDF(report)
		return data, contentTypePDF, err
	case "xlsx":
		data, err := BuildRevenueXLSX(report)
		return data, contentTypeXLSX, err
	}
	return nil, "", fmt.Errorf("reporting: unknown format %q", format)
}

// FileName returns the download name of an exported report.
func FileName(report reporting.VendorRevenue, format string) string {
	return fmt.Sprintf("revenue-%s-%s.%s", report.VendorID, report.Period.From.Format("2006-01"), format)
}

// PeriodFromQuery reads the window from ?month=YYYY-MM or ?from=&to= dates
// (to is exclusive). Without either it is the month containing now.
func PeriodFromQuery(r *http.Request, now time.Time) (reporting.Period, error) {
	q := r.URL.Query()
	if month := q.Get("month"); month != "" {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return reporting.Period{}, fmt.Errorf("%w: month %q", reporting.ErrInvalidPeriod, month)
		}
		return reporting.MonthPeriod(t), nil
	}
	from, to := q.Get("from"), q.Get("to")
	if from == "" && to == "" {
		return reporting.MonthPeriod(now), nil
	}
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return reporting.Period{}, fmt.Errorf("%w: from %q", reporting.ErrInvalidPeriod, from)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return reporting.Period{}, fmt.Errorf("%w: to %q", reporting.ErrInvalidPeriod, to)
	}
	period := reporting.Period{From: start, To: end}
	return period, period.Validate()
}

// canView admits admins and the vendor the report belongs to.
func canView(ctx context.Context, vendorID string) bool {
	actor, ok := auth.ActorFromContext(ctx)
	if !ok {
		return false
	}
	if actor.Is(auth.RoleAdmin) {
		return true
	}
	return actor.Is(auth.RoleVendor) && actor.ID == vendorID
}

func respondReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reporting.ErrEmptyVendorID), errors.Is(err, reporting.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, kernel.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		http.Error(w, "report error", http.StatusInternalServerError)
	}
}
