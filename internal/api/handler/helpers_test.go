package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sendit/parcel-service/internal/api/middleware"
	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

// ---- request helpers --------------------------------------------------------

func newRequest(method, target string, body io.Reader, contentType string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	return newRequest(method, target, strings.NewReader(body), echo.MIMEApplicationJSON)
}

// newContext builds an echo context authenticated as actor. A zero actor
// leaves the context anonymous.
func newContext(req *http.Request, actor ports.Actor) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if actor.ID != "" {
		c.Set(middleware.ContextUserID, actor.ID)
		c.Set(middleware.ContextRole, actor.Role)
	}
	return c, rec
}

var (
	customer = ports.Actor{ID: "cust-1", Role: domain.RoleCustomer}
	admin    = ports.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	courier  = ports.Actor{ID: "courier-1", Role: domain.RoleCourier}
)

func assertHTTPCode(t *testing.T, err error, code int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError %d, got %v", code, err)
	}
	if he.Code != code {
		t.Fatalf("expected %d, got %d (%v)", code, he.Code, he.Message)
	}
}

func sampleParcel() *domain.Parcel {
	return &domain.Parcel{ID: "p1", TrackingNumber: "SND-TEST", Status: domain.StatusProcessing, SenderID: customer.ID}
}

// ---- service stubs ----------------------------------------------------------

type stubParcelService struct {
	ports.ParcelService
	createFn func(ctx context.Context, in ports.CreateParcelInput) (*ports.ParcelResult, error)
	listFn   func(ctx context.Context, in ports.ListParcelsInput) (*ports.ListParcelsResult, error)
	updateFn func(ctx context.Context, in ports.StatusUpdateInput) (*domain.Parcel, error)
	cancelFn func(ctx context.Context, actor ports.Actor, id, reason string) (*domain.Parcel, error)
	trackFn  func(ctx context.Context, tn string) (*ports.TrackingView, error)
}

func (s *stubParcelService) CreateParcel(ctx context.Context, in ports.CreateParcelInput) (*ports.ParcelResult, error) {
	return s.createFn(ctx, in)
}

func (s *stubParcelService) ListParcels(ctx context.Context, in ports.ListParcelsInput) (*ports.ListParcelsResult, error) {
	return s.listFn(ctx, in)
}

func (s *stubParcelService) UpdateParcelStatus(ctx context.Context, in ports.StatusUpdateInput) (*domain.Parcel, error) {
	return s.updateFn(ctx, in)
}

func (s *stubParcelService) CancelParcel(ctx context.Context, actor ports.Actor, id, reason string) (*domain.Parcel, error) {
	return s.cancelFn(ctx, actor, id, reason)
}

func (s *stubParcelService) TrackParcel(ctx context.Context, tn string) (*ports.TrackingView, error) {
	return s.trackFn(ctx, tn)
}

func (s *stubParcelService) Quote(weight float64, unit domain.WeightUnit, dt domain.DeliveryType, cov domain.InsuranceCoverage) domain.PriceBreakdown {
	return domain.CalculatePrice(weight, unit, dt, cov)
}

type stubCourierService struct {
	ports.CourierService
	updateFn func(ctx context.Context, in ports.DeliveryUpdateInput) (*ports.CourierDelivery, error)
}

func (s *stubCourierService) UpdateDeliveryStatus(ctx context.Context, in ports.DeliveryUpdateInput) (*ports.CourierDelivery, error) {
	return s.updateFn(ctx, in)
}
