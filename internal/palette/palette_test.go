// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package palette

import (
	"errors"
	"image/color"
	"testing"
)

func TestBuild_Length(t *testing.T) {
	for _, budget := range []int{1, 2, 100, 200, 4096} {
		p, err := Build(budget)
		if err != nil {
			t.Fatalf("Build(%d): %v", budget, err)
		}
		if p.Len() != budget {
			t.Errorf("Build(%d).Len() = %d, want %d", budget, p.Len(), budget)
		}
	}
}

func TestBuild_InvalidBudget(t *testing.T) {
	for _, budget := range []int{0, -5} {
		if _, err := Build(budget); !errors.Is(err, ErrBudget) {
			t.Errorf("Build(%d) error = %v, want ErrBudget", budget, err)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(200)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(200)
	if err != nil {
		t.Fatal(err)
	}
	ac, bc := a.Colors(), b.Colors()
	for i := range ac {
		if ac[i] != bc[i] {
			t.Fatalf("entry %d differs: %v vs %v", i, ac[i], bc[i])
		}
	}
}

func TestBuild_HueWalk(t *testing.T) {
	p, err := Build(6)
	if err != nil {
		t.Fatal(err)
	}
	want := []color.RGBA{
		{255, 0, 0, 255},   // 0°
		{255, 255, 0, 255}, // 60°
		{0, 255, 0, 255},   // 120°
		{0, 255, 255, 255}, // 180°
		{0, 0, 255, 255},   // 240°
		{255, 0, 255, 255}, // 300°
	}
	got := p.Colors()
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Colors()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestPalette_At(t *testing.T) {
	p, err := Build(100)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		n      int
		wantOK bool
	}{
		{-1, false},
		{0, false},
		{1, true},
		{99, true},
		{100, false},
	}
	for _, tt := range tests {
		c, ok := p.At(tt.n)
		if ok != tt.wantOK {
			t.Errorf("At(%d) ok = %v, want %v", tt.n, ok, tt.wantOK)
		}
		if ok && c.A != 255 {
			t.Errorf("At(%d) alpha = %d, want 255", tt.n, c.A)
		}
	}
}

func TestPalette_ColorsIsCopy(t *testing.T) {
	p, err := Build(3)
	if err != nil {
		t.Fatal(err)
	}
	c := p.Colors()
	c[1] = color.RGBA{}
	if got, _ := p.At(1); got == (color.RGBA{}) {
		t.Error("mutating Colors() result changed the palette")
	}
}

func TestBuild_DoubledBudgetIsFresh(t *testing.T) {
	small, _ := Build(100)
	large, _ := Build(200)
	if large.Len() != 200 {
		t.Fatalf("Len() = %d, want 200", large.Len())
	}
	// Entry 2k of the doubled palette lands on the hue of entry k.
	for k := 1; k < small.Len(); k++ {
		s, _ := small.At(k)
		l, _ := large.At(2 * k)
		if s != l {
			t.Fatalf("large.At(%d) = %v, want small.At(%d) = %v", 2*k, l, k, s)
		}
	}
}

func BenchmarkBuild(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_, _ = Build(1000)
	}
}

func TestCached(t *testing.T) {
	a, err := Cached(321)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Cached(321)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Cached returned different palettes for the same budget")
	}
	if a.Len() != 321 {
		t.Errorf("Len() = %d, want 321", a.Len())
	}
	if CacheStats().Hits == 0 {
		t.Error("second lookup should be a cache hit")
	}
	if _, err := Cached(0); !errors.Is(err, ErrBudget) {
		t.Errorf("Cached(0) error = %v, want ErrBudget", err)
	}
}
