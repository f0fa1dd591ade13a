package service

import "context"

// StaticRatings reports the same average rating for every courier until a
// ratings service exists.
type StaticRatings struct {
	Value float64
}

func (r StaticRatings) AverageRating(context.Context, string) (float64, error) {
	return r.Value, nil
}
