package alert

import "github.com/alertwise/go-emergency-alerts/internal/models"

// validateArea checks one area's polygon: a closed ring (first and last
// point equal) with at least 3 distinct vertices and coordinates inside
// valid longitude/latitude ranges.
func validateArea(i int, area models.Area) error {
	ring := area.Polygon

	if len(ring) == 0 {
		return &PolygonError{AreaIndex: i, Reason: "polygon is required"}
	}
	if len(ring) < 4 {
		return &PolygonError{AreaIndex: i, Reason: "ring must contain at least 3 vertices plus the closing point"}
	}
	if ring[0] != ring[len(ring)-1] {
		return &PolygonError{AreaIndex: i, Reason: "ring is not closed: first and last point differ"}
	}

	for _, p := range ring {
		if p.Longitude < -180 || p.Longitude > 180 {
			return &PolygonError{AreaIndex: i, Reason: "longitude out of range"}
		}
		if p.Latitude < -90 || p.Latitude > 90 {
			return &PolygonError{AreaIndex: i, Reason: "latitude out of range"}
		}
	}

	if distinctVertices(ring) < 3 {
		return &PolygonError{AreaIndex: i, Reason: "ring must contain at least 3 distinct vertices"}
	}

	return nil
}

// distinctVertices counts unique points, ignoring the closing point.
func distinctVertices(ring []models.Point) int {
	seen := make(map[models.Point]struct{}, len(ring))
	for _, p := range ring[:len(ring)-1] {
		seen[p] = struct{}{}
	}
	return len(seen)
}
