package cache

import (
	"fmt"
	"testing"

	"github.com/vegardlu/homelab-core/internal/homeassistant"
)

func TestSearchEmptyQuery(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: testEntities()})

	for _, q := range []string{"", "   ", "\t"} {
		if got := c.Search(q); got != nil {
			t.Errorf("Search(%q) = %v, want nil", q, got)
		}
	}
}

func TestSearchNoMatch(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: testEntities()})

	if got := c.Search("garage"); len(got) != 0 {
		t.Errorf("Search(garage) = %v, want empty", got)
	}
}

func TestSearchNorwegianSynonymMatchesArea(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: []homeassistant.EnhancedEntityState{
		{EntityID: "light.living_room_ceiling", FriendlyName: "Ceiling Light", AreaID: "living_room", Area: "Living Room", State: "on"},
		{EntityID: "light.kitchen", FriendlyName: "Kitchen Light", AreaID: "kitchen", Area: "Kitchen", State: "off"},
	}})

	got := c.Search("stua")

	if len(got) != 1 {
		t.Fatalf("Search(stua) returned %d hits, want 1", len(got))
	}
	if got[0].Entity.EntityID != "light.living_room_ceiling" {
		t.Errorf("Search(stua) hit = %s, want light.living_room_ceiling", got[0].Entity.EntityID)
	}
}

func TestSearchStuaLysRanking(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: []homeassistant.EnhancedEntityState{
		{EntityID: "light.living_room_ceiling", FriendlyName: "Ceiling Light", AreaID: "living_room", Area: "Living Room", State: "on"},
		{EntityID: "light.kitchen", FriendlyName: "Kitchen Light", AreaID: "kitchen", Area: "Kitchen", State: "off"},
	}})

	got := c.Search("stua lys")

	if len(got) < 2 {
		t.Fatalf("Search(stua lys) returned %d hits, want 2", len(got))
	}
	// Living room light matches the area via the stua expansion plus the
	// domain boost from lys→light; the kitchen light only gets domain hits.
	if got[0].Entity.EntityID != "light.living_room_ceiling" {
		t.Errorf("top hit = %s, want light.living_room_ceiling", got[0].Entity.EntityID)
	}
	if got[1].Entity.EntityID != "light.kitchen" {
		t.Errorf("second hit = %s, want light.kitchen", got[1].Entity.EntityID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("scores not descending: %d then %d", got[0].Score, got[1].Score)
	}
}

func TestSearchExactEntityID(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: testEntities()})

	got := c.Search("light.kitchen")

	if len(got) == 0 {
		t.Fatalf("Search(light.kitchen) returned no hits")
	}
	if got[0].Entity.EntityID != "light.kitchen" {
		t.Errorf("top hit = %s, want light.kitchen", got[0].Entity.EntityID)
	}
	if got[0].Score < scoreExactEntityID {
		t.Errorf("score = %d, want >= %d (exact id bonus)", got[0].Score, scoreExactEntityID)
	}
}

func TestSearchExactFriendlyName(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: testEntities()})

	got := c.Search("Kitchen Light")

	if len(got) == 0 {
		t.Fatalf("Search(Kitchen Light) returned no hits")
	}
	if got[0].Entity.EntityID != "light.kitchen" {
		t.Errorf("top hit = %s, want light.kitchen", got[0].Entity.EntityID)
	}
}

func TestSearchCapsAtFifteen(t *testing.T) {
	var entities []homeassistant.EnhancedEntityState
	for i := 0; i < 20; i++ {
		entities = append(entities, homeassistant.EnhancedEntityState{
			EntityID:     fmt.Sprintf("light.lamp_%02d", i),
			FriendlyName: fmt.Sprintf("Lamp %02d", i),
			State:        "on",
		})
	}
	c := newTestCache(t, &fakeClient{entities: entities})

	got := c.Search("lamp")

	if len(got) != maxSearchResults {
		t.Fatalf("Search(lamp) returned %d hits, want %d", len(got), maxSearchResults)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Score < got[i].Score {
			t.Errorf("scores not descending at index %d: %d < %d", i, got[i-1].Score, got[i].Score)
		}
	}
}

func TestSearchTieBreaksOnEntityID(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: []homeassistant.EnhancedEntityState{
		{EntityID: "light.b_lamp", FriendlyName: "Lamp", State: "on"},
		{EntityID: "light.a_lamp", FriendlyName: "Lamp", State: "on"},
		{EntityID: "light.c_lamp", FriendlyName: "Lamp", State: "on"},
	}})

	got := c.Search("lamp")

	if len(got) != 3 {
		t.Fatalf("Search(lamp) returned %d hits, want 3", len(got))
	}
	wantOrder := []string{"light.a_lamp", "light.b_lamp", "light.c_lamp"}
	for i, want := range wantOrder {
		if got[i].Entity.EntityID != want {
			t.Errorf("hit %d = %s, want %s", i, got[i].Entity.EntityID, want)
		}
	}
}

func TestSearchUnderscoreNormalizedQuery(t *testing.T) {
	c := newTestCache(t, &fakeClient{entities: testEntities()})

	spaced := c.Search("living room")
	underscored := c.Search("living_room")

	if len(spaced) == 0 || len(underscored) == 0 {
		t.Fatalf("both spellings must match, got %d and %d hits", len(spaced), len(underscored))
	}
	if spaced[0].Entity.EntityID != underscored[0].Entity.EntityID {
		t.Errorf("top hits differ: %s vs %s", spaced[0].Entity.EntityID, underscored[0].Entity.EntityID)
	}
}

func TestExpandTerms(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "no synonyms",
			in:   []string{"garage"},
			want: []string{"garage"},
		},
		{
			name: "stua expands and keeps raw term",
			in:   []string{"stua"},
			want: []string{"stua", "living room", "living"},
		},
		{
			name: "multiple tokens",
			in:   []string{"stua", "lys"},
			want: []string{"stua", "living room", "living", "lys", "light", "switch", "dimmer"},
		},
		{
			name: "duplicates removed",
			in:   []string{"lys", "lys"},
			want: []string{"lys", "light", "switch", "dimmer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandTerms(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("expandTerms(%v) = %v, want %v", tt.in, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expandTerms(%v)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
				}
			}
		})
	}
}
