// Package types provides shared types for the tripcue service.
package types

// Point is one location along a route for which a single content
// decision must be produced.
type Point struct {
	Index int      `json:"index"`
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Tags  []string `json:"tags,omitempty"`
}

// Route is an ordered list of points along a trip.
type Route struct {
	Name   string  `json:"name,omitempty"`
	Points []Point `json:"points"`
}
