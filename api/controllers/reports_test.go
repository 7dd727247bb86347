package controllers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BenTyson/evercraft-sub001/internal/reports"
	pkgerrors "github.com/BenTyson/evercraft-sub001/pkg/errors"
	"github.com/BenTyson/evercraft-sub001/pkg/pagination"
)

type stubReportsService struct {
	listParams pagination.Params
	from, to   time.Time
	exportErr  error
}

func (s *stubReportsService) FinancialOverview(_ context.Context, shopID uuid.UUID, _ time.Time) (*reports.FinancialOverview, error) {
	return &reports.FinancialOverview{ShopID: shopID}, nil
}

func (s *stubReportsService) TaxSummary(_ context.Context, shopID uuid.UUID) (*reports.TaxSummary, error) {
	return &reports.TaxSummary{ShopID: shopID}, nil
}

func (s *stubReportsService) ListTransactions(_ context.Context, _ uuid.UUID, params pagination.Params) (*reports.TransactionPage, error) {
	s.listParams = params
	return &reports.TransactionPage{}, nil
}

func (s *stubReportsService) ExportTransactionsCSV(_ context.Context, _ uuid.UUID, from, to time.Time, w io.Writer) error {
	s.from, s.to = from, to
	if s.exportErr != nil {
		return s.exportErr
	}
	_, err := io.WriteString(w, "payment_id,order_number\n")
	return err
}

func TestShopFinancials(t *testing.T) {
	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/"+shopID.String()+"/financials", nil)
	req = addRouteParams(req, map[string]string{"shopId": shopID.String()})
	resp := httptest.NewRecorder()
	ShopFinancials(&stubReportsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), shopID.String()) {
		t.Fatalf("expected shop id in body, got %s", resp.Body.String())
	}
}

func TestShopTaxSummaryInvalidShop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/nope/tax-summary", nil)
	req = addRouteParams(req, map[string]string{"shopId": "nope"})
	resp := httptest.NewRecorder()
	ShopTaxSummary(&stubReportsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListShopTransactionsPassesPagination(t *testing.T) {
	svc := &stubReportsService{}
	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/x/transactions?limit=5&cursor=abc", nil)
	req = addRouteParams(req, map[string]string{"shopId": shopID.String()})
	resp := httptest.NewRecorder()
	ListShopTransactions(svc, testLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.listParams.Limit != 5 || svc.listParams.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.listParams)
	}
}

func TestListShopTransactionsRejectsLargeLimit(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/x/transactions?limit=1000", nil)
	req = addRouteParams(req, map[string]string{"shopId": uuid.NewString()})
	resp := httptest.NewRecorder()
	ListShopTransactions(&stubReportsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestExportShopTransactionsWritesCSV(t *testing.T) {
	svc := &stubReportsService{}
	shopID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/x/transactions/export?from=2026-01-01&to=2026-02-01", nil)
	req = addRouteParams(req, map[string]string{"shopId": shopID.String()})
	resp := httptest.NewRecorder()
	ExportShopTransactions(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}
	disposition := resp.Header().Get("Content-Disposition")
	if !strings.Contains(disposition, "transactions-"+shopID.String()+"-from-2026-01-01-to-2026-02-01.csv") {
		t.Fatalf("unexpected disposition %q", disposition)
	}
	if !svc.from.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) || !svc.to.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected range %s..%s", svc.from, svc.to)
	}
	if resp.Body.String() != "payment_id,order_number\n" {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestExportShopTransactionsErrorUsesEnvelope(t *testing.T) {
	svc := &stubReportsService{exportErr: pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/x/transactions/export?from=2026-02-01&to=2026-01-01", nil)
	req = addRouteParams(req, map[string]string{"shopId": uuid.NewString()})
	resp := httptest.NewRecorder()
	ExportShopTransactions(svc, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON error, got %q", ct)
	}
}

func TestExportShopTransactionsRejectsBadDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/shops/x/transactions/export?from=yesterday", nil)
	req = addRouteParams(req, map[string]string{"shopId": uuid.NewString()})
	resp := httptest.NewRecorder()
	ExportShopTransactions(&stubReportsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
