// Package scene holds the size and position bookkeeping of the landing
// page's canvases: camera bounds, plane scale, cursor look, responsive
// breakpoints and scroll layout variables.
package scene

// Bounds are orthographic camera bounds
type Bounds struct {
	Top    float64
	Right  float64
	Bottom float64
	Left   float64
}

// OrthographicBounds returns camera bounds for a canvas of the given size.
// The short side spans [-1, 1] and the long side spans the aspect ratio.
// Empty sizes yield unit bounds.
func OrthographicBounds(width, height float64) Bounds {
	if width <= 0 || height <= 0 {
		return Bounds{Top: 1, Right: 1, Bottom: -1, Left: -1}
	}

	if width > height {
		aspect := width / height
		return Bounds{Top: 1, Right: aspect, Bottom: -1, Left: -aspect}
	}

	aspect := height / width
	return Bounds{Top: aspect, Right: 1, Bottom: -aspect, Left: -1}
}

// Vec2 is a two-dimensional vector
type Vec2 struct {
	X float64
	Y float64
}

// PlaneScale returns the scale that makes a unit plane cover the bounds
// returned by OrthographicBounds
func PlaneScale(width, height float64) Vec2 {
	if width <= 0 || height <= 0 {
		return Vec2{X: 2, Y: 2}
	}

	scale := Vec2{X: 2, Y: 2}
	if width > height {
		scale.X *= width / height
	}
	if width < height {
		scale.Y *= height / width
	}
	return scale
}

// CursorLook maps a cursor position relative to a canvas to a look vector.
// Both axes are normalised by the viewport width so the look keeps the same
// sensitivity horizontally and vertically; results are clamped to [-1, 1].
func CursorLook(cursor Vec2, viewportWidth float64) Vec2 {
	if viewportWidth <= 0 {
		return Vec2{}
	}
	return Vec2{
		X: clamp((cursor.X/viewportWidth-0.5)*2, -1, 1),
		Y: clamp((cursor.Y/viewportWidth-0.5)*2, -1, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
