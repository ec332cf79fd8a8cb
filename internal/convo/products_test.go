package convo

import (
	"testing"

	"salesbot/internal/repo"
)

func sampleCatalog() []repo.Product {
	return []repo.Product{
		{ID: "p1", Name: "Red Shirt", Category: "Apparel", Price: 15, Stock: 10},
		{ID: "p2", Name: "Red Shirt Slim", Category: "Apparel", Price: 18, Stock: 0},
		{ID: "p3", Name: "Blue Mug", Category: "Kitchen", Price: 8, Stock: 5},
	}
}

func TestRankProductsPrefersNameMatches(t *testing.T) {
	ranked := rankProducts(sampleCatalog(), "red shirt")
	if len(ranked) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(ranked))
	}
	if ranked[0].ID != "p1" {
		t.Fatalf("expected in-stock exact name first, got %s", ranked[0].ID)
	}
}

func TestRankProductsInStockFirstOnTie(t *testing.T) {
	products := []repo.Product{
		{ID: "out", Name: "Green Hat", Price: 5, Stock: 0},
		{ID: "in", Name: "Green Hat", Price: 9, Stock: 3},
	}
	ranked := rankProducts(products, "green hat")
	if ranked[0].ID != "in" {
		t.Fatalf("expected in-stock item first, got %s", ranked[0].ID)
	}
}

func TestRankProductsCapsCandidates(t *testing.T) {
	var products []repo.Product
	for i := 0; i < 12; i++ {
		products = append(products, repo.Product{ID: string(rune('a' + i)), Name: "Shirt", Price: float64(i), Stock: 1})
	}
	if got := len(rankProducts(products, "shirt")); got != maxCandidates {
		t.Fatalf("expected %d candidates, got %d", maxCandidates, got)
	}
}

func TestParseQty(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"2 red shirts", 2},
		{"red shirt", 1},
		{"0 shirts", 1},
		{"number 3 please", 3},
	}
	for _, tc := range cases {
		if got := parseQty(tc.text); got != tc.want {
			t.Fatalf("%q: expected %d, got %d", tc.text, tc.want, got)
		}
	}
}

func TestPickCandidateByOrdinal(t *testing.T) {
	candidates := sampleCatalog()
	chosen, ok := pickCandidate(candidates, "2")
	if !ok || chosen.ID != "p2" {
		t.Fatalf("expected second candidate, got %+v ok=%v", chosen, ok)
	}
	if _, ok := pickCandidate(candidates, "9"); ok {
		t.Fatal("out-of-range ordinal must not match")
	}
}

func TestPickCandidateByName(t *testing.T) {
	candidates := sampleCatalog()
	chosen, ok := pickCandidate(candidates, "blue mug")
	if !ok || chosen.ID != "p3" {
		t.Fatalf("expected exact name match, got %+v ok=%v", chosen, ok)
	}

	// "red shirt" matches p1 exactly even though it is a substring of p2.
	chosen, ok = pickCandidate(candidates, "Red Shirt")
	if !ok || chosen.ID != "p1" {
		t.Fatalf("expected exact match preferred, got %+v ok=%v", chosen, ok)
	}

	// "shirt" is a substring of two candidates: ambiguous.
	if _, ok := pickCandidate(candidates, "shirt"); ok {
		t.Fatal("ambiguous substring must not match")
	}
}
