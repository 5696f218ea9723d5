// Package exifmeta extracts embedded GPS metadata from uploaded image
// bytes. Extraction is best-effort: malformed, absent or unsupported
// metadata yields no coordinate, never an error, so this step can never
// block the pipeline.
package exifmeta

import (
	"bytes"

	"github.com/gabriel-vasile/mimetype"
	"github.com/jdeng/goheif"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"

	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/geo"
	"github.com/Deloput/A-DAY-TODAY-CREATE-YOUR-TRAVEL-GUIDE/internal/logger"
)

func init() {
	// Vendor maker-note parsers improve tag coverage for camera files.
	exif.RegisterParsers(mknote.All...)
}

// ExtractGPS parses EXIF tags from the original (pre-conversion) file
// bytes and returns the embedded coordinate, or nil when none can be
// recovered. It must run before format conversion, which strips metadata.
func ExtractGPS(data []byte) *geo.Coordinate {
	payload := data
	if mt := mimetype.Detect(data); mt.Is("image/heic") || mt.Is("image/heif") {
		raw, err := goheif.ExtractExif(bytes.NewReader(data))
		if err != nil || len(raw) == 0 {
			logger.Debug("no EXIF block in HEIC container: %v", err)
			return nil
		}
		payload = trimToTIFF(raw)
	}

	x, err := exif.Decode(bytes.NewReader(payload))
	if err != nil {
		logger.Debug("EXIF decode failed: %v", err)
		return nil
	}

	lat, ok := gpsTriple(x, exif.GPSLatitude)
	if !ok {
		return nil
	}
	lon, ok := gpsTriple(x, exif.GPSLongitude)
	if !ok {
		return nil
	}
	latRef, ok := gpsRef(x, exif.GPSLatitudeRef)
	if !ok {
		return nil
	}
	lonRef, ok := gpsRef(x, exif.GPSLongitudeRef)
	if !ok {
		return nil
	}

	coord, err := geo.FromDMS(lat, latRef, lon, lonRef)
	if err != nil {
		logger.Debug("GPS tags present but not normalizable: %v", err)
		return nil
	}
	return &coord
}

// gpsTriple reads a degrees/minutes/seconds rational triple. Absent tags,
// short tags and unreadable components all report absence.
func gpsTriple(x *exif.Exif, field exif.FieldName) ([]geo.Rational, bool) {
	tag, err := x.Get(field)
	if err != nil || tag == nil {
		return nil, false
	}
	if tag.Count < 3 {
		return nil, false
	}

	dms := make([]geo.Rational, 0, 3)
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil {
			return nil, false
		}
		dms = append(dms, geo.Rational{Num: num, Den: den})
	}
	return dms, true
}

// gpsRef reads a single-character hemisphere reference tag.
func gpsRef(x *exif.Exif, field exif.FieldName) (string, bool) {
	tag, err := x.Get(field)
	if err != nil || tag == nil {
		return "", false
	}
	s, err := tag.StringVal()
	if err != nil || s == "" {
		return "", false
	}
	return s, true
}

// trimToTIFF slices a raw EXIF item down to its TIFF stream. HEIC items
// may carry an offset word and the "Exif\0\0" marker ahead of the TIFF
// byte-order header.
func trimToTIFF(raw []byte) []byte {
	limit := len(raw) - 4
	if limit > 16 {
		limit = 16
	}
	for i := 0; i <= limit; i++ {
		if bytes.HasPrefix(raw[i:], []byte{'I', 'I', 0x2a, 0x00}) ||
			bytes.HasPrefix(raw[i:], []byte{'M', 'M', 0x00, 0x2a}) {
			return raw[i:]
		}
	}
	return raw
}
