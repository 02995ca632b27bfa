package scene

// Breakpoint toggles Class while the page is at most MaxWidth wide
type Breakpoint struct {
	Class    string  `yaml:"class" json:"class"`
	MaxWidth float64 `yaml:"max_width" json:"maxWidth"`
}

// Breakpoints is an ordered breakpoint table
type Breakpoints []Breakpoint

// DefaultBreakpoints collapses the header on narrow pages
var DefaultBreakpoints = Breakpoints{
	{Class: "break--header", MaxWidth: 630},
}

// Classes returns every class of the table and whether it is set for a page
// of the given width
func (bp Breakpoints) Classes(width float64) map[string]bool {
	classes := make(map[string]bool, len(bp))
	for _, b := range bp {
		classes[b.Class] = classes[b.Class] || width <= b.MaxWidth
	}
	return classes
}

// Active returns the classes set for width, in table order
func (bp Breakpoints) Active(width float64) []string {
	var active []string
	for _, b := range bp {
		if width <= b.MaxWidth {
			active = append(active, b.Class)
		}
	}
	return active
}
