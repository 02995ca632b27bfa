package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakpointClasses(t *testing.T) {
	assert.Equal(t, map[string]bool{"break--header": true}, DefaultBreakpoints.Classes(630))
	assert.Equal(t, map[string]bool{"break--header": false}, DefaultBreakpoints.Classes(631))
	assert.Equal(t, []string{"break--header"}, DefaultBreakpoints.Active(320))
	assert.Empty(t, DefaultBreakpoints.Active(1280))
}

func TestLayoutVarsResolvesOffsetParents(t *testing.T) {
	main := &Element{Name: "main", OffsetTop: 100}
	section := &Element{Name: "section", OffsetTop: 400, OffsetParent: main}
	item := &Element{Name: "nwa", Height: 900, OffsetTop: 50, OffsetParent: section}

	layout := LayoutVars(720, []*Element{item, main})

	assert.Equal(t, []Property{{Name: "--viewport-height", Value: "720"}}, layout.Root)
	require.Len(t, layout.Items, 2)
	assert.Equal(t, ItemVars{
		Name: "nwa",
		Properties: []Property{
			{Name: "--client-height", Value: "900"},
			{Name: "--top", Value: "550"},
		},
	}, layout.Items[0])
	assert.Equal(t, "100", layout.Items[1].Properties[1].Value)
}

func TestScrollTrackerReportsChangesOnly(t *testing.T) {
	var tracker ScrollTracker

	prop, ok := tracker.Update(0)
	require.True(t, ok, "first update always reports")
	assert.Equal(t, Property{Name: "--scroll", Value: "0"}, prop)

	_, ok = tracker.Update(0)
	assert.False(t, ok)

	prop, ok = tracker.Update(120.5)
	require.True(t, ok)
	assert.Equal(t, "120.5", prop.Value)
}
