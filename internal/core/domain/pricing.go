package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

const earthRadiusKm = 6371.0

var (
	priceTypeFactors = map[DeliveryType]decimal.Decimal{
		DeliveryStandard:  decimal.NewFromInt(1),
		DeliveryExpress:   decimal.NewFromFloat(1.5),
		DeliverySameDay:   decimal.NewFromFloat(2.5),
		DeliveryOvernight: decimal.NewFromInt(2),
	}
	earningsTypeFactors = map[DeliveryType]decimal.Decimal{
		DeliveryStandard:  decimal.NewFromInt(1),
		DeliveryExpress:   decimal.NewFromFloat(1.5),
		DeliverySameDay:   decimal.NewFromInt(2),
		DeliveryOvernight: decimal.NewFromFloat(1.3),
	}

	insuranceRate        = decimal.NewFromFloat(0.10)
	earningsBase         = decimal.NewFromInt(50)
	earningsPerKm        = decimal.NewFromInt(10)
	specialHandlingBonus = decimal.NewFromInt(25)
	dailyBonusPerParcel  = decimal.NewFromInt(10)
)

// DailyBonusThreshold is the number of deliveries in one day that must be
// exceeded before the daily bonus applies.
const DailyBonusThreshold = 5

// PriceBreakdown explains how a shipment price was derived.
type PriceBreakdown struct {
	WeightKg           float64         `json:"weight_kg"`
	BasePrice          decimal.Decimal `json:"base_price"`
	TypeMultiplier     decimal.Decimal `json:"type_multiplier"`
	InsuranceSurcharge decimal.Decimal `json:"insurance_surcharge"`
	Total              decimal.Decimal `json:"total"`
}

// ToKilograms converts a weight to kilograms. Unknown units are taken as KG.
func ToKilograms(weight float64, unit WeightUnit) float64 {
	switch unit {
	case UnitPound:
		return weight * 0.45359237
	case UnitGram:
		return weight / 1000
	default:
		return weight
	}
}

// BasePriceForWeight returns the weight band price.
func BasePriceForWeight(kg float64) decimal.Decimal {
	switch {
	case kg < 1:
		return decimal.NewFromInt(15)
	case kg <= 5:
		return decimal.NewFromInt(25)
	case kg <= 20:
		return decimal.NewFromInt(45)
	default:
		return decimal.NewFromInt(75)
	}
}

// CalculatePrice prices a shipment at creation time. The total is rounded
// half away from zero to two decimal places.
func CalculatePrice(weight float64, unit WeightUnit, deliveryType DeliveryType, coverage InsuranceCoverage) PriceBreakdown {
	kg := ToKilograms(weight, unit)
	base := BasePriceForWeight(kg)

	factor, ok := priceTypeFactors[deliveryType]
	if !ok {
		factor = priceTypeFactors[DeliveryStandard]
	}

	surcharge := decimal.Zero
	if coverage.Insured() {
		surcharge = base.Mul(insuranceRate)
	}

	return PriceBreakdown{
		WeightKg:           kg,
		BasePrice:          base,
		TypeMultiplier:     factor,
		InsuranceSurcharge: surcharge.Round(2),
		Total:              base.Mul(factor).Add(surcharge).Round(2),
	}
}

// CalculateEarnings returns what a courier earns for one completed delivery,
// rounded to a whole currency unit.
func CalculateEarnings(distanceKm float64, deliveryType DeliveryType, fragile, highValue bool) decimal.Decimal {
	total := earningsBase.Add(decimal.NewFromFloat(distanceKm).Mul(earningsPerKm))

	factor, ok := earningsTypeFactors[deliveryType]
	if !ok {
		factor = earningsTypeFactors[DeliveryStandard]
	}
	total = total.Mul(factor)

	if fragile || highValue {
		total = total.Add(specialHandlingBonus)
	}
	return total.Round(0)
}

// DeliveryEarnings applies CalculateEarnings to a parcel, using the
// great-circle distance between sender and recipient.
func DeliveryEarnings(p *Parcel) decimal.Decimal {
	distance := Haversine(p.SenderAddress.Coordinates, p.RecipientAddress.Coordinates)
	return CalculateEarnings(distance, p.DeliveryType, p.Handling.Fragile, p.Handling.HighValue)
}

// DailyBonus is paid when a courier completes more than DailyBonusThreshold
// deliveries in one calendar day.
func DailyBonus(deliveries int) decimal.Decimal {
	if deliveries <= DailyBonusThreshold {
		return decimal.Zero
	}
	return dailyBonusPerParcel.Mul(decimal.NewFromInt(int64(deliveries)))
}

// Haversine returns the great-circle distance in km, or 0 when either point
// is missing.
func Haversine(a, b *Coordinates) float64 {
	if a == nil || b == nil {
		return 0
	}
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Priority orders deliveries for display; it does not affect pricing.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank returns a sort key where HIGH sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// ParcelPriority classifies a parcel relative to now.
func ParcelPriority(p *Parcel, now time.Time) Priority {
	if p.DeliveryType == DeliverySameDay || p.DeliveryType == DeliveryExpress {
		return PriorityHigh
	}
	if p.Handling.Fragile || p.Handling.Perishable || p.Handling.HighValue {
		return PriorityHigh
	}
	if p.EstimatedDelivery.IsZero() {
		return PriorityLow
	}
	until := p.EstimatedDelivery.Sub(now)
	switch {
	case until <= 4*time.Hour:
		return PriorityHigh
	case until <= 24*time.Hour:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// EstimateDelivery calculates the promised delivery time from the moment a
// parcel is created, in the location of `from`.
func EstimateDelivery(deliveryType DeliveryType, from time.Time) time.Time {
	endOfDay := time.Date(from.Year(), from.Month(), from.Day(), 18, 0, 0, 0, from.Location())
	switch deliveryType {
	case DeliverySameDay:
		if from.Hour() >= 14 {
			return endOfDay.AddDate(0, 0, 1)
		}
		return endOfDay
	case DeliveryOvernight:
		return time.Date(from.Year(), from.Month(), from.Day(), 9, 0, 0, 0, from.Location()).AddDate(0, 0, 1)
	case DeliveryExpress:
		return endOfDay.AddDate(0, 0, 1)
	default: // STANDARD or unknown → 3 days
		return endOfDay.AddDate(0, 0, 3)
	}
}
