package version

import (
	"testing"
	"time"
)

func TestCreate_RejectsDuplicates(t *testing.T) {
	c := NewCatalog()
	if _, err := c.Create("v1", StatusCurrent, time.Now()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.Create("v1", StatusCurrent, time.Now()); err == nil {
		t.Fatal("expected duplicate version to be rejected")
	}
	if _, err := c.Create("", StatusCurrent, time.Now()); err == nil {
		t.Fatal("expected empty version identifier to be rejected")
	}
}

func TestDeprecate_StampsSunsetDate(t *testing.T) {
	c := NewCatalog()
	c.Create("v1", StatusCurrent, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	sunset := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	if !c.Deprecate("v1", sunset) {
		t.Fatal("deprecate known version should return true")
	}

	v, ok := c.Get("v1")
	if !ok {
		t.Fatal("v1 should exist")
	}
	if v.Status != StatusDeprecated {
		t.Fatalf("status = %s, want deprecated", v.Status)
	}
	if v.SunsetDate == nil || !v.SunsetDate.Equal(sunset) {
		t.Fatalf("sunset date = %v, want %v", v.SunsetDate, sunset)
	}

	// Idempotent: a second deprecation just re-stamps the date.
	later := sunset.AddDate(0, 6, 0)
	if !c.Deprecate("v1", later) {
		t.Fatal("re-deprecating should succeed")
	}
	v, _ = c.Get("v1")
	if !v.SunsetDate.Equal(later) {
		t.Fatalf("sunset date = %v, want %v", v.SunsetDate, later)
	}
}

func TestDeprecate_UnknownVersionMutatesNothing(t *testing.T) {
	c := NewCatalog()
	c.Create("v1", StatusCurrent, time.Now())

	if c.Deprecate("v999", time.Now()) {
		t.Fatal("deprecate unknown version should return false")
	}
	v, _ := c.Get("v1")
	if v.Status != StatusCurrent || v.SunsetDate != nil {
		t.Fatalf("v1 mutated by failed deprecate: %+v", v)
	}
}

func TestAppendChangelog_PreservesInsertionOrder(t *testing.T) {
	c := NewCatalog()
	c.Create("v2", StatusCurrent, time.Now())

	entries := []ChangelogEntry{
		{Type: ChangeAdded, Description: "first"},
		{Type: ChangeFixed, Description: "second"},
		{Type: ChangeRemoved, Description: "third", AffectedEndpoints: []string{"/finance/invoices"}},
	}
	for _, e := range entries {
		if !c.AppendChangelog("v2", e) {
			t.Fatalf("append %q failed", e.Description)
		}
	}
	if c.AppendChangelog("v999", ChangelogEntry{Description: "lost"}) {
		t.Fatal("append to unknown version should return false")
	}

	v, _ := c.Get("v2")
	if len(v.Changelog) != len(entries) {
		t.Fatalf("changelog length = %d, want %d", len(v.Changelog), len(entries))
	}
	for i, e := range entries {
		if v.Changelog[i].Description != e.Description {
			t.Fatalf("entry %d = %q, want %q", i, v.Changelog[i].Description, e.Description)
		}
	}
}

func TestCurrent_MostRecentCurrentWins(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Current(); ok {
		t.Fatal("empty catalog has no current version")
	}

	c.Create("v1", StatusCurrent, time.Now())
	c.Deprecate("v1", time.Now().AddDate(1, 0, 0))
	c.Create("v2", StatusCurrent, time.Now())

	cur, ok := c.Current()
	if !ok || cur.Version != "v2" {
		t.Fatalf("current = %+v, want v2", cur)
	}
}

func TestSeededCatalog(t *testing.T) {
	c := NewSeededCatalog()

	cur, ok := c.Current()
	if !ok || cur.Version != "v1" {
		t.Fatalf("seed should make v1 current, got %+v", cur)
	}
	if len(cur.Changelog) != 3 {
		t.Fatalf("seed changelog length = %d, want 3", len(cur.Changelog))
	}
	if c.Count() != 1 {
		t.Fatalf("seed count = %d, want 1", c.Count())
	}
}

func TestListAll_CreationOrder(t *testing.T) {
	c := NewCatalog()
	for _, v := range []string{"v1", "v2", "v3"} {
		c.Create(v, StatusDeprecated, time.Now())
	}
	all := c.ListAll()
	for i, want := range []string{"v1", "v2", "v3"} {
		if all[i].Version != want {
			t.Fatalf("position %d = %s, want %s", i, all[i].Version, want)
		}
	}
}
