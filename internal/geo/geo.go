// Package geo converts EXIF-style DMS (degrees/minutes/seconds) rational
// values into signed decimal-degree coordinates.
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Errors returned by the normalizer. Callers that treat geolocation as
// best-effort (the metadata extractor) discard these; they exist so the
// failure mode is inspectable in tests and logs.
var (
	ErrZeroDenominator = errors.New("geo: rational with zero denominator")
	ErrTooFewTerms     = errors.New("geo: need degrees, minutes and seconds")
	ErrNotFinite       = errors.New("geo: value is not finite")
	ErrBadReference    = errors.New("geo: unknown hemisphere reference")
	ErrOutOfRange      = errors.New("geo: coordinate out of range")
)

// Rational is an EXIF rational value, a numerator/denominator pair.
type Rational struct {
	Num int64
	Den int64
}

// Float converts the rational to a float64. A zero denominator is invalid
// rather than a division by zero.
func (r Rational) Float() (float64, error) {
	if r.Den == 0 {
		return 0, ErrZeroDenominator
	}
	return float64(r.Num) / float64(r.Den), nil
}

// Coordinate is a signed decimal-degree position. Latitude is in
// [-90, 90], longitude in [-180, 180]. Immutable once constructed.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DecimalDegrees collapses a DMS triple into decimal degrees:
// degrees + minutes/60 + seconds/3600. It requires at least three terms
// and fails if any term is invalid or the result is not finite.
func DecimalDegrees(dms []Rational) (float64, error) {
	if len(dms) < 3 {
		return 0, ErrTooFewTerms
	}

	deg, err := dms[0].Float()
	if err != nil {
		return 0, err
	}
	min, err := dms[1].Float()
	if err != nil {
		return 0, err
	}
	sec, err := dms[2].Float()
	if err != nil {
		return 0, err
	}

	v := deg + min/60 + sec/3600
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNotFinite
	}
	return v, nil
}

// FromDMS builds a Coordinate from latitude and longitude DMS triples plus
// their hemisphere references ("N"/"S" and "E"/"W"). Southern and western
// references negate the respective axis. Pure and deterministic.
func FromDMS(lat []Rational, latRef string, lon []Rational, lonRef string) (Coordinate, error) {
	latitude, err := DecimalDegrees(lat)
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	longitude, err := DecimalDegrees(lon)
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude: %w", err)
	}

	switch strings.ToUpper(strings.TrimSpace(latRef)) {
	case "N":
	case "S":
		latitude = -latitude
	default:
		return Coordinate{}, fmt.Errorf("latitude ref %q: %w", latRef, ErrBadReference)
	}

	switch strings.ToUpper(strings.TrimSpace(lonRef)) {
	case "E":
	case "W":
		longitude = -longitude
	default:
		return Coordinate{}, fmt.Errorf("longitude ref %q: %w", lonRef, ErrBadReference)
	}

	if latitude < -90 || latitude > 90 {
		return Coordinate{}, fmt.Errorf("latitude %f: %w", latitude, ErrOutOfRange)
	}
	if longitude < -180 || longitude > 180 {
		return Coordinate{}, fmt.Errorf("longitude %f: %w", longitude, ErrOutOfRange)
	}

	return Coordinate{Latitude: latitude, Longitude: longitude}, nil
}
