package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Kind
	}{
		{name: "locations list", in: "locations", want: KindList},
		{name: "times list", in: "times", want: KindList},
		{name: "repeating events list", in: "repeating-events", want: KindList},
		{name: "live list", in: "live", want: KindList},
		{name: "about document", in: "about", want: KindDocument},
		{name: "attend document", in: "attend", want: KindDocument},
		{name: "more document", in: "more", want: KindDocument},
		{name: "unknown name is a document", in: "something-new", want: KindDocument},
		{name: "full path normalizes", in: "data/locations.json", want: KindList},
		{name: "bare file name normalizes", in: "live.json", want: KindList},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.in))
		})
	}
}

func TestDefaultFor(t *testing.T) {
	assert.JSONEq(t, `[]`, string(DefaultFor("locations")))
	assert.JSONEq(t, `[]`, string(DefaultFor("data/times.json")))
	assert.JSONEq(t, `{"title":"","sections":[]}`, string(DefaultFor("about")))
	assert.JSONEq(t, `{"title":"","sections":[]}`, string(DefaultFor("never-seen-before")))
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "data/locations.json", PathFor("locations"))
	assert.Equal(t, "data/times.json", PathFor("times.json"))
	assert.Equal(t, "data/live.json", PathFor("data/live.json"))
}

func TestLocationDependents(t *testing.T) {
	deps := LocationDependents()
	assert.ElementsMatch(t, []string{"times", "repeating-events", "live"}, deps)

	// Callers get their own copy.
	deps[0] = "mutated"
	assert.ElementsMatch(t, []string{"times", "repeating-events", "live"}, LocationDependents())
}
