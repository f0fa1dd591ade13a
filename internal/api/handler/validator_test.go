package handler

import (
	"strings"
	"testing"
)

func TestValidator_Messages(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name string
		req  any
		want []string
	}{
		{
			name: "payment confirmation without identifiers",
			req:  &paymentConfirmRequest{},
			want: []string{"parcel_id is required when TrackingNumber is absent"},
		},
		{
			name: "malformed tracking number",
			req:  &paymentConfirmRequest{TrackingNumber: "SND-1"},
			want: []string{"tracking_number must look like ST-1234567"},
		},
		{
			name: "quote with several failures",
			req:  &quoteRequest{Weight: 0, WeightUnit: "TON"},
			want: []string{"weight must be greater than 0", "weight_unit must be one of: KG LB G"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("message %q does not contain %q", err.Error(), w)
				}
			}
		})
	}
}

func TestValidator_AcceptsValidRequest(t *testing.T) {
	req := &paymentConfirmRequest{TrackingNumber: "ST-0012345", PaymentReference: "pi_1"}
	if err := NewValidator().Validate(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
