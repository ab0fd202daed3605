package geocode

import (
	"regexp"
	"strconv"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

// Patterns are tried in order. The generic pair pattern also matches
// unrelated numbers, so it only runs when the named pattern finds nothing.
var (
	centerLatPattern = regexp.MustCompile(`centerLatitude["']?\s*[:=]\s*["']?([-+]?\d*\.?\d+)`)
	centerLonPattern = regexp.MustCompile(`centerLongitude["']?\s*[:=]\s*["']?([-+]?\d*\.?\d+)`)
	coordPairPattern = regexp.MustCompile(`([-+]?\d+\.\d+),\s*([-+]?\d+\.\d+)`)
)

// ExtractCoordinate scans an unstructured page body for the first
// coordinate that lies within legal latitude/longitude ranges.
func ExtractCoordinate(body string) (weather.Coordinate, bool) {
	if coord, ok := extractCenter(body); ok {
		return coord, true
	}

	for _, m := range coordPairPattern.FindAllStringSubmatch(body, -1) {
		if coord, ok := parsePair(m[1], m[2]); ok {
			return coord, true
		}
	}
	return weather.Coordinate{}, false
}

func extractCenter(body string) (weather.Coordinate, bool) {
	lat := centerLatPattern.FindStringSubmatch(body)
	lon := centerLonPattern.FindStringSubmatch(body)
	if lat == nil || lon == nil {
		return weather.Coordinate{}, false
	}
	return parsePair(lat[1], lon[1])
}

func parsePair(latStr, lonStr string) (weather.Coordinate, bool) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return weather.Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return weather.Coordinate{}, false
	}
	coord, err := weather.NewCoordinate(lat, lon)
	if err != nil {
		return weather.Coordinate{}, false
	}
	return coord, true
}
