package handler

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/sendit/parcel-service/internal/core/domain"
	"github.com/sendit/parcel-service/internal/core/ports"
)

func deliveryFor(status domain.ParcelStatus) *ports.CourierDelivery {
	p := sampleParcel()
	p.Status = status
	return &ports.CourierDelivery{Parcel: p, Priority: domain.PriorityMedium}
}

func TestCourierHandler_UpdateStatus_JSON(t *testing.T) {
	stub := &stubCourierService{
		updateFn: func(_ context.Context, in ports.DeliveryUpdateInput) (*ports.CourierDelivery, error) {
			if in.CourierID != courier.ID || in.ParcelID != "p1" {
				t.Errorf("unexpected ids: %s %s", in.CourierID, in.ParcelID)
			}
			if in.Status != domain.StatusDelayed || in.FailureReason != domain.AttemptNoOneHome {
				t.Errorf("unexpected status: %s %s", in.Status, in.FailureReason)
			}
			if in.Coordinates == nil || in.Coordinates.Lat != -1.29 {
				t.Errorf("coordinates not mapped: %+v", in.Coordinates)
			}
			if in.Photo != nil {
				t.Error("JSON update must not carry a photo")
			}
			return deliveryFor(in.Status), nil
		},
	}
	body := `{"status":"delayed","failure_reason":"FAILED_NO_ONE_HOME","coordinates":{"lat":-1.29,"lng":36.82}}`
	c, rec := newContext(jsonRequest(http.MethodPatch, "/v1/courier/deliveries/p1/status", body), courier)
	c.SetParamNames("parcel_id")
	c.SetParamValues("p1")

	if err := NewCourierHandler(stub).UpdateStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCourierHandler_UpdateStatus_MultipartWithPhoto(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("status", "DELIVERED")
	_ = w.WriteField("notes", "left with reception")
	_ = w.WriteField("lat", "-4.04")
	_ = w.WriteField("lng", "39.66")
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="photo"; filename="door.jpg"`)
	hdr.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = part.Write([]byte("jpeg-bytes"))
	_ = w.Close()

	stub := &stubCourierService{
		updateFn: func(_ context.Context, in ports.DeliveryUpdateInput) (*ports.CourierDelivery, error) {
			if in.Status != domain.StatusDelivered || in.Notes != "left with reception" {
				t.Errorf("unexpected input: %+v", in)
			}
			if in.Coordinates == nil || in.Coordinates.Lng != 39.66 {
				t.Errorf("coordinates not parsed: %+v", in.Coordinates)
			}
			if in.Photo == nil {
				t.Fatal("photo missing")
			}
			if in.Photo.ContentType != "image/jpeg" || in.Photo.Filename != "door.jpg" {
				t.Errorf("unexpected photo meta: %+v", in.Photo)
			}
			data, _ := io.ReadAll(in.Photo.Body)
			if string(data) != "jpeg-bytes" {
				t.Errorf("unexpected photo body: %q", data)
			}
			return deliveryFor(in.Status), nil
		},
	}
	req := newRequest(http.MethodPatch, "/v1/courier/deliveries/p1/status", &buf, w.FormDataContentType())
	c, _ := newContext(req, courier)
	c.SetParamNames("parcel_id")
	c.SetParamValues("p1")

	if err := NewCourierHandler(stub).UpdateStatus(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
}

func TestCourierHandler_UpdateStatus_BadCoordinates(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("status", "DELIVERED")
	_ = w.WriteField("lat", "north")
	_ = w.Close()

	req := newRequest(http.MethodPatch, "/v1/courier/deliveries/p1/status", &buf, w.FormDataContentType())
	c, _ := newContext(req, courier)

	err := NewCourierHandler(&stubCourierService{}).UpdateStatus(c)
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestCourierHandler_UpdateStatus_MissingStatus(t *testing.T) {
	c, _ := newContext(jsonRequest(http.MethodPatch, "/v1/courier/deliveries/p1/status", `{"notes":"hi"}`), courier)

	err := NewCourierHandler(&stubCourierService{}).UpdateStatus(c)
	assertHTTPCode(t, err, http.StatusUnprocessableEntity)
}
