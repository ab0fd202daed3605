package geocode

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-tile-refresh/internal/weather"
)

func TestExtractCoordinate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   weather.Coordinate
		wantOK bool
	}{
		{
			name:   "named pattern with json quoting",
			body:   `{"centerLatitude":39.9042,"centerLongitude":116.4074}`,
			want:   weather.Coordinate{Latitude: 39.9042, Longitude: 116.4074},
			wantOK: true,
		},
		{
			name:   "named pattern wins over an earlier generic pair",
			body:   `version 1.0,2.0 ... centerLatitude = "-33.86" ... centerLongitude = "151.21"`,
			want:   weather.Coordinate{Latitude: -33.86, Longitude: 151.21},
			wantOK: true,
		},
		{
			name:   "out of range generic pair is skipped",
			body:   `offset 512.25, 1024.5 then cp=48.8566,2.3522`,
			want:   weather.Coordinate{Latitude: 48.8566, Longitude: 2.3522},
			wantOK: true,
		},
		{
			name:   "invalid named pair falls through to generic",
			body:   `centerLatitude: 123.4 centerLongitude: 10.0 near 40.7128, -74.0060`,
			want:   weather.Coordinate{Latitude: 40.7128, Longitude: -74.006},
			wantOK: true,
		},
		{
			name:   "integers are not coordinates",
			body:   `width=1024,768`,
			wantOK: false,
		},
		{
			name:   "nothing",
			body:   `<html></html>`,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractCoordinate(tt.body)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.want, got)
			}
		})
	}
}
