package core

import (
	"math"
	"strconv"
	"strings"
)

// EarthRadiusKm is the mean Earth radius used for all great-circle
// calculations in the grid layer (kilometres).
const EarthRadiusKm = 6371.0

const (
	// DefaultVoltageKV is used whenever a voltage tag is missing or
	// unparseable. Untagged lines are overwhelmingly distribution feeders.
	DefaultVoltageKV = 11.0

	// DefaultCoordPrecision is the number of decimal degrees kept when
	// deduplicating coordinates into buses (4 decimals ≈ 11 m).
	DefaultCoordPrecision = 4

	// MinLineLengthKm is the floor applied to every stored line length so
	// that coincident endpoints never produce zero-weight lines.
	MinLineLengthKm = 0.01
)

// LonLat is a geographic position in decimal degrees.
type LonLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// coordKey is the rounded form of a LonLat used as a dedup key.
type coordKey struct {
	lon, lat int64
}

// key rounds the position to precision decimals.
func (p LonLat) key(precision int) coordKey {
	scale := math.Pow10(precision)
	return coordKey{
		lon: int64(math.Round(p.Lon * scale)),
		lat: int64(math.Round(p.Lat * scale)),
	}
}

// DistanceKm returns the great-circle distance to other.
func (p LonLat) DistanceKm(other LonLat) float64 {
	return GreatCircleKm(p.Lat, p.Lon, other.Lat, other.Lon)
}

// GreatCircleKm returns the haversine distance between two lat/lon points
// in kilometres. It is zero only for identical points.
func GreatCircleKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// ParseVoltageKV converts an OSM-style voltage tag into kilovolts.
//
// The tag may be empty, a single value in volts, or several values
// separated by ';' (multi-circuit lines). The largest numeric token wins;
// values above 1000 are taken to be volts. When nothing usable is present
// DefaultVoltageKV is returned, so the function never fails.
func ParseVoltageKV(raw string) float64 {
	kv, ok := parseVoltageKV(raw)
	if !ok {
		return DefaultVoltageKV
	}
	return kv
}

// parseVoltageKV is the explicit form of ParseVoltageKV: ok is false when
// the tag carries no positive numeric token.
func parseVoltageKV(raw string) (float64, bool) {
	best := 0.0
	found := false
	for _, tok := range strings.Split(raw, ";") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		if !found || v > best {
			best = v
			found = true
		}
	}
	if !found {
		return 0, false
	}
	if best > 1000 {
		return best / 1000.0, true
	}
	return best, true
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
