package spatial

import (
	"math/rand"
	"testing"
)

type pt struct {
	id   string
	x, y float64
}

func pos(p pt) (float64, float64) { return p.x, p.y }

func TestNearest(t *testing.T) {
	items := []pt{{"a", 0, 0}, {"b", 10, 0}, {"c", 0, 10}, {"d", 50, 50}}
	idx := Build(items, pos)

	tests := []struct {
		name   string
		x, y   float64
		radius float64
		want   string
		ok     bool
	}{
		{"exact hit", 10, 0, 1, "b", true},
		{"closest of several", 2, 1, 20, "a", true},
		{"outside radius", 30, 30, 5, "", false},
		{"far point", 48, 49, 5, "d", true},
		{"zero radius exact", 0, 10, 0, "c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := idx.Nearest(tt.x, tt.y, tt.radius)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.id != tt.want {
				t.Errorf("got %s, want %s", got.id, tt.want)
			}
		})
	}
}

func TestNearestEmpty(t *testing.T) {
	idx := Build[pt](nil, pos)
	if _, ok := idx.Nearest(0, 0, 100); ok {
		t.Errorf("expected no result from empty index")
	}
	if idx.Len() != 0 {
		t.Errorf("Len = %d", idx.Len())
	}
}

func TestNearestTieBreak(t *testing.T) {
	// Both candidates are 5 away from the origin.
	items := []pt{{"first", 5, 0}, {"second", -5, 0}, {"third", 0, 5}}
	for i := 0; i < 10; i++ {
		got, ok := Build(items, pos).Nearest(0, 0, 10)
		if !ok || got.id != "first" {
			t.Fatalf("run %d: got %v, want first", i, got.id)
		}
	}
	swapped := []pt{items[2], items[1], items[0]}
	got, _ := Build(swapped, pos).Nearest(0, 0, 10)
	if got.id != "third" {
		t.Errorf("got %s, want third for reversed build order", got.id)
	}
}

func TestNearestCoincident(t *testing.T) {
	items := make([]pt, 40)
	for i := range items {
		items[i] = pt{id: string(rune('A' + i%26)), x: 3, y: 3}
	}
	items[0].id = "winner"
	got, ok := Build(items, pos).Nearest(3, 3, 1)
	if !ok || got.id != "winner" {
		t.Errorf("got %v, want winner", got.id)
	}
}

func TestNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	items := make([]pt, 500)
	for i := range items {
		items[i] = pt{x: rng.Float64() * 1000, y: rng.Float64() * 1000}
		items[i].id = string(rune(i))
	}
	idx := Build(items, pos)
	for q := 0; q < 200; q++ {
		x, y := rng.Float64()*1000, rng.Float64()*1000
		best, bestD := -1, 40.0*40.0
		for i, it := range items {
			d := (it.x-x)*(it.x-x) + (it.y-y)*(it.y-y)
			if d < bestD || (d == bestD && best >= 0 && i < best) {
				best, bestD = i, d
			}
		}
		got, ok := idx.Nearest(x, y, 40)
		if (best >= 0) != ok {
			t.Fatalf("query %d: ok = %v, brute force found %d", q, ok, best)
		}
		if ok && got.id != items[best].id {
			t.Fatalf("query %d: got %q, want %q", q, got.id, items[best].id)
		}
	}
}

func TestWithin(t *testing.T) {
	items := []pt{{"a", 0, 0}, {"b", 3, 4}, {"c", 6, 8}}
	got := Build(items, pos).Within(0, 0, 5)
	if len(got) != 2 || got[0].id != "a" || got[1].id != "b" {
		t.Errorf("unexpected within result %v", got)
	}
}

func BenchmarkNearest(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	items := make([]pt, 5000)
	for i := range items {
		items[i] = pt{x: rng.Float64() * 2000, y: rng.Float64() * 2000}
	}
	idx := Build(items, pos)
	b.ReportAllocs()
	for b.Loop() {
		idx.Nearest(rng.Float64()*2000, rng.Float64()*2000, 30)
	}
}
