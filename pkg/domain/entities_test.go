package domain

import "testing"

func TestViewIncludes(t *testing.T) {
	all := View{ID: "all"}
	north := View{ID: "north", FilterField: "fHouse", FilterValues: []string{"c1", "c3"}}
	rec := Record{Choices: map[string]string{"fHouse": "c1"}}
	other := Record{Choices: map[string]string{"fHouse": "c2"}}
	none := Record{}

	if !all.Includes(rec) || !all.Includes(none) {
		t.Fatalf("unfiltered view must include every record")
	}
	if !north.Includes(rec) {
		t.Fatalf("expected c1 record in filtered view")
	}
	if north.Includes(other) || north.Includes(none) {
		t.Fatalf("filtered view must exclude non-matching records")
	}
}

func TestSameGroup(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"g1", "g1", true},
		{"g1", "g2", false},
		{"", "", false},
		{"g1", "", false},
		{"", "g1", false},
	}
	for _, c := range cases {
		got := SameGroup(Participant{Group: c.a}, Participant{Group: c.b})
		if got != c.want {
			t.Fatalf("SameGroup(%q,%q)=%v want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestTableLookups(t *testing.T) {
	tbl := testTable()
	if _, ok := tbl.FindField("fGiftee"); !ok {
		t.Fatalf("expected field lookup")
	}
	if _, ok := tbl.FindField("missing"); ok {
		t.Fatalf("unexpected field")
	}
	if _, ok := tbl.FindView("all"); !ok {
		t.Fatalf("expected view lookup")
	}
	house, _ := tbl.FindField("fHouse")
	if c, ok := house.FindChoice("c1"); !ok || c.Name != "North" {
		t.Fatalf("expected choice lookup, got %+v", c)
	}
	if _, ok := house.FindChoice("c9"); ok {
		t.Fatalf("unexpected choice")
	}
}

func TestEdgeIsClear(t *testing.T) {
	if !(Edge{GiverID: "a"}).IsClear() {
		t.Fatalf("edge without recipient clears")
	}
	if (Edge{GiverID: "a", RecipientID: "b"}).IsClear() {
		t.Fatalf("edge with recipient is not a clear")
	}
}
