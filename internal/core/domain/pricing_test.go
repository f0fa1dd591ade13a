package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCalculatePrice(t *testing.T) {
	tests := []struct {
		name     string
		weight   float64
		unit     WeightUnit
		dt       DeliveryType
		coverage InsuranceCoverage
		want     string
	}{
		{"light standard", 0.5, UnitKilogram, DeliveryStandard, NoInsurance, "15"},
		{"3kg express", 3, UnitKilogram, DeliveryExpress, NoInsurance, "37.5"},
		{"5kg boundary", 5, UnitKilogram, DeliveryStandard, NoInsurance, "25"},
		{"20kg boundary overnight", 20, UnitKilogram, DeliveryOvernight, NoInsurance, "90"},
		{"heavy same day insured", 21, UnitKilogram, DeliverySameDay, BasicInsurance, "195"},
		{"grams", 800, UnitGram, DeliveryStandard, NoInsurance, "15"},
		{"pounds", 10, UnitPound, DeliveryStandard, PremiumInsurance, "27.5"},
		{"unknown type falls back to standard", 3, UnitKilogram, "TELEPORT", NoInsurance, "25"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculatePrice(tc.weight, tc.unit, tc.dt, tc.coverage)
			if !got.Total.Equal(decimal.RequireFromString(tc.want)) {
				t.Errorf("Total = %s, want %s", got.Total, tc.want)
			}
		})
	}
}

func TestCalculateEarnings(t *testing.T) {
	tests := []struct {
		name      string
		km        float64
		dt        DeliveryType
		fragile   bool
		highValue bool
		want      int64
	}{
		{"10km standard", 10, DeliveryStandard, false, false, 150},
		{"10km express", 10, DeliveryExpress, false, false, 225},
		{"fragile bonus", 10, DeliveryStandard, true, false, 175},
		{"high value bonus once", 10, DeliveryStandard, true, true, 175},
		{"overnight rounds", 1, DeliveryOvernight, false, false, 78},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := CalculateEarnings(tc.km, tc.dt, tc.fragile, tc.highValue)
			if !got.Equal(decimal.NewFromInt(tc.want)) {
				t.Errorf("earnings = %s, want %d", got, tc.want)
			}
		})
	}
}

func TestDailyBonus(t *testing.T) {
	if !DailyBonus(5).IsZero() {
		t.Error("5 deliveries should not earn a bonus")
	}
	if !DailyBonus(6).Equal(decimal.NewFromInt(60)) {
		t.Errorf("6 deliveries: got %s, want 60", DailyBonus(6))
	}
}

func TestHaversine(t *testing.T) {
	nairobi := &Coordinates{Lat: -1.2864, Lng: 36.8172}
	mombasa := &Coordinates{Lat: -4.0435, Lng: 39.6682}

	d := Haversine(nairobi, mombasa)
	if math.Abs(d-440) > 5 {
		t.Errorf("Nairobi-Mombasa = %.1f km, want about 440", d)
	}
	if Haversine(nairobi, nil) != 0 {
		t.Error("missing coordinates should give 0")
	}
}

func TestEstimateDelivery(t *testing.T) {
	morning := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	afternoon := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		dt   DeliveryType
		from time.Time
		want time.Time
	}{
		{"same day before cutoff", DeliverySameDay, morning, time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)},
		{"same day after cutoff", DeliverySameDay, afternoon, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC)},
		{"overnight", DeliveryOvernight, afternoon, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
		{"express", DeliveryExpress, morning, time.Date(2026, 3, 11, 18, 0, 0, 0, time.UTC)},
		{"standard", DeliveryStandard, morning, time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EstimateDelivery(tc.dt, tc.from); !got.Equal(tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParcelPriority(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		p    Parcel
		want Priority
	}{
		{"express", Parcel{DeliveryType: DeliveryExpress, EstimatedDelivery: now.Add(72 * time.Hour)}, PriorityHigh},
		{"fragile", Parcel{DeliveryType: DeliveryStandard, Handling: Handling{Fragile: true}, EstimatedDelivery: now.Add(72 * time.Hour)}, PriorityHigh},
		{"due soon", Parcel{DeliveryType: DeliveryStandard, EstimatedDelivery: now.Add(3 * time.Hour)}, PriorityHigh},
		{"due tomorrow", Parcel{DeliveryType: DeliveryStandard, EstimatedDelivery: now.Add(20 * time.Hour)}, PriorityMedium},
		{"far out", Parcel{DeliveryType: DeliveryStandard, EstimatedDelivery: now.Add(72 * time.Hour)}, PriorityLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParcelPriority(&tc.p, now); got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestTrackingNumber(t *testing.T) {
	for i := 0; i < 100; i++ {
		tn := GenerateTrackingNumber()
		if !IsTrackingNumber(tn) {
			t.Fatalf("generated malformed tracking number %q", tn)
		}
	}
	for _, bad := range []string{"ST-123456", "ST-12345678", "st-1234567", "XX-1234567"} {
		if IsTrackingNumber(bad) {
			t.Errorf("%q should be rejected", bad)
		}
	}
}
