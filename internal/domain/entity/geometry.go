package entity

// Size is a width/height pair. Display sizes may be fractional; image sizes
// are whole pixels stored as float64 to keep the conversions in one type.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether either axis is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Rect is a rectangle in display space, top-left origin, as drawn over a
// possibly scaled preview.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports a rectangle with no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// NormalizedRect is a rectangle with every axis divided by the image size and
// the origin at the bottom-left corner. Trackers exchange observations in
// this space.
type NormalizedRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Empty reports a rectangle with no area.
func (r NormalizedRect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Coordinates is a bounding box in pixel space, top-left origin.
type Coordinates struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsZero reports the "no selection" rectangle.
func (c Coordinates) IsZero() bool {
	return c == Coordinates{}
}
