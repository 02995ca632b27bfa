package scene

import "strconv"

// Element is a positioned block of the page. OffsetParent is nil for
// elements positioned relative to the document body.
type Element struct {
	Name         string
	Height       float64
	OffsetTop    float64
	OffsetParent *Element
}

// DocumentTop returns the element's offset from the top of the document
func (e *Element) DocumentTop() float64 {
	top := 0.0
	for el := e; el != nil; el = el.OffsetParent {
		top += el.OffsetTop
	}
	return top
}

// Property is a CSS custom property assignment
type Property struct {
	Name  string
	Value string
}

// ItemVars holds the properties of one scroll item
type ItemVars struct {
	Name       string
	Properties []Property
}

// Layout holds the custom properties derived from the page layout
type Layout struct {
	// Root is set on the body rule
	Root  []Property
	Items []ItemVars
}

// LayoutVars computes --viewport-height for the page and --client-height and
// --top for every scroll item. The result only changes with the layout, so
// it is recomputed on resize rather than on scroll.
func LayoutVars(viewportHeight float64, items []*Element) Layout {
	layout := Layout{
		Root:  []Property{{Name: "--viewport-height", Value: formatNumber(viewportHeight)}},
		Items: make([]ItemVars, 0, len(items)),
	}
	for _, item := range items {
		layout.Items = append(layout.Items, ItemVars{
			Name: item.Name,
			Properties: []Property{
				{Name: "--client-height", Value: formatNumber(item.Height)},
				{Name: "--top", Value: formatNumber(item.DocumentTop())},
			},
		})
	}
	return layout
}

// ScrollTracker reports --scroll whenever the scroll position changed
type ScrollTracker struct {
	previous float64
	seen     bool
}

// InitialScroll is the property set before the first update
var InitialScroll = Property{Name: "--scroll", Value: "0"}

// Update records position y and returns the property to set, or false when
// the position did not change since the last update
func (t *ScrollTracker) Update(y float64) (Property, bool) {
	if t.seen && t.previous == y {
		return Property{}, false
	}
	t.seen = true
	t.previous = y
	return Property{Name: "--scroll", Value: formatNumber(y)}, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
