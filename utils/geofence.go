package utils

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Coordinate represents a geographic coordinate with latitude and longitude
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Geofence represents a polygonal store boundary used to validate GPS-fix
// field responses
type Geofence struct {
	Coordinates []Coordinate `json:"coordinates"`
	Name        string       `json:"name,omitempty"`
}

// ParseGeofence parses and validates a geofence JSON document. An empty string
// yields a nil geofence (geofencing is optional per store).
func ParseGeofence(geofenceJSON string) (*Geofence, error) {
	if geofenceJSON == "" {
		return nil, nil
	}

	var geofence Geofence
	if err := json.Unmarshal([]byte(geofenceJSON), &geofence); err != nil {
		return nil, fmt.Errorf("invalid geofence JSON format: %w", err)
	}

	if len(geofence.Coordinates) < 3 {
		return nil, errors.New("geofence must have at least 3 coordinates to form a polygon")
	}

	for i, coord := range geofence.Coordinates {
		if err := validateCoordinate(coord); err != nil {
			return nil, fmt.Errorf("invalid coordinate at index %d: %w", i, err)
		}
	}

	return &geofence, nil
}

func validateCoordinate(coord Coordinate) error {
	if coord.Lat < -90 || coord.Lat > 90 {
		return fmt.Errorf("latitude %.6f is out of valid range [-90, 90]", coord.Lat)
	}
	if coord.Lng < -180 || coord.Lng > 180 {
		return fmt.Errorf("longitude %.6f is out of valid range [-180, 180]", coord.Lng)
	}
	return nil
}

// Contains reports whether the point lies inside the geofence polygon. The
// ring is closed automatically when the client did not repeat the first point.
func (g *Geofence) Contains(point Coordinate) bool {
	if g == nil || len(g.Coordinates) < 3 {
		return false
	}

	ring := make(orb.Ring, 0, len(g.Coordinates)+1)
	for _, c := range g.Coordinates {
		ring = append(ring, orb.Point{c.Lng, c.Lat})
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}

	return planar.PolygonContains(orb.Polygon{ring}, orb.Point{point.Lng, point.Lat})
}

// GPSFix is the payload of a gps field response
type GPSFix struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// GPSFixFromPayload extracts a GPS fix from a field response payload
func GPSFixFromPayload(payload map[string]interface{}) (*GPSFix, bool) {
	lat, latOK := payload["lat"].(float64)
	lng, lngOK := payload["lng"].(float64)
	if !latOK || !lngOK {
		return nil, false
	}
	fix := &GPSFix{Lat: lat, Lng: lng}
	if acc, ok := payload["accuracy"].(float64); ok {
		fix.Accuracy = acc
	}
	return fix, true
}
