// Copyright 2026 The Bale Authors
// SPDX-License-Identifier: Apache-2.0

package releaseplan

import (
	"strings"
	"testing"
)

func TestOrderingAddRelation(t *testing.T) {
	t.Parallel()

	ordering := NewOrdering()
	if err := ordering.AddRelation("a", "b"); err != nil {
		t.Fatalf("AddRelation(a, b): %v", err)
	}
	if err := ordering.AddRelation("b", "c"); err != nil {
		t.Fatalf("AddRelation(b, c): %v", err)
	}

	if !ordering.Contains("a") || !ordering.Contains("c") {
		t.Error("elements named in relations should be contained")
	}
	if ordering.Contains("z") {
		t.Error("unknown element should not be contained")
	}
}

func TestOrderingRejectsCycles(t *testing.T) {
	t.Parallel()

	ordering := NewOrdering()
	if err := ordering.AddRelation("a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := ordering.AddRelation("b", "c"); err != nil {
		t.Fatal(err)
	}

	// Closing the loop back to a must fail.
	err := ordering.AddRelation("c", "a")
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want mention of cycle", err)
	}

	// Self-relation is rejected outright.
	if err := ordering.AddRelation("a", "a"); err == nil {
		t.Fatal("expected error for self-relation")
	}

	// The failed additions must not have corrupted the graph.
	got := ordering.Sort()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Sort() = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("Sort() = %v, want %v", got, want)
		}
	}
}

func TestOrderingSortIsDeterministic(t *testing.T) {
	t.Parallel()

	// Diamond: release-branch before build and ci, both before tag.
	// build and ci have no relation between them; build was added
	// first, so it sorts first — on every call.
	build := func() *Ordering {
		ordering := NewOrdering()
		for _, pair := range [][2]string{
			{"release-branch", "build"},
			{"release-branch", "ci"},
			{"build", "tag"},
			{"ci", "tag"},
		} {
			if err := ordering.AddRelation(pair[0], pair[1]); err != nil {
				t.Fatal(err)
			}
		}
		return ordering
	}

	want := []string{"release-branch", "build", "ci", "tag"}
	for round := 0; round < 5; round++ {
		got := build().Sort()
		if len(got) != len(want) {
			t.Fatalf("round %d: Sort() = %v, want %v", round, got, want)
		}
		for index := range want {
			if got[index] != want[index] {
				t.Fatalf("round %d: Sort() = %v, want %v", round, got, want)
			}
		}
	}
}

func TestOrderingIsolatedElements(t *testing.T) {
	t.Parallel()

	ordering := NewOrdering()
	ordering.Add("solo")
	ordering.Add("duo")
	ordering.Add("solo") // duplicate, ignored
	if err := ordering.AddRelation("duo", "trio"); err != nil {
		t.Fatal(err)
	}

	got := ordering.Sort()
	want := []string{"solo", "duo", "trio"}
	if len(got) != len(want) {
		t.Fatalf("Sort() = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("Sort() = %v, want %v", got, want)
		}
	}
}

func TestOrderingPosition(t *testing.T) {
	t.Parallel()

	ordering := NewOrdering()
	if err := ordering.AddRelation("first", "second"); err != nil {
		t.Fatal(err)
	}
	if err := ordering.AddRelation("second", "third"); err != nil {
		t.Fatal(err)
	}

	if got := ordering.Position("first"); got != 0 {
		t.Errorf("Position(first) = %d, want 0", got)
	}
	if got := ordering.Position("third"); got != 2 {
		t.Errorf("Position(third) = %d, want 2", got)
	}
	if got := ordering.Position("missing"); got != -1 {
		t.Errorf("Position(missing) = %d, want -1", got)
	}
}

func TestPlanOrder(t *testing.T) {
	t.Parallel()

	plan := &Plan{
		Steps: []Step{
			// Authored out of dependency order on purpose: tag is
			// listed first but depends on everything else.
			{ID: "tag", Name: "Tag", Action: ActionTag, After: []string{"build", "ci"}},
			{ID: "freeze-news", Name: "Freeze changelog", Manual: true},
			{ID: "cut-branch", Name: "Branch", Action: ActionBranch, After: []string{"freeze-news"}},
			{ID: "build", Name: "Build", Run: "make dist", After: []string{"cut-branch"}},
			{ID: "ci", Name: "CI", Action: ActionCIWait, After: []string{"cut-branch"}},
		},
	}

	ordered, err := plan.Order()
	if err != nil {
		t.Fatalf("Order: %v", err)
	}

	got := make([]string, len(ordered))
	for index, step := range ordered {
		got[index] = step.ID
	}
	want := []string{"freeze-news", "cut-branch", "build", "ci", "tag"}
	if len(got) != len(want) {
		t.Fatalf("Order = %v, want %v", got, want)
	}
	for index := range want {
		if got[index] != want[index] {
			t.Fatalf("Order = %v, want %v", got, want)
		}
	}
}

func TestPlanOrderUnknownReference(t *testing.T) {
	t.Parallel()

	plan := &Plan{
		Steps: []Step{
			{ID: "build", Name: "Build", Run: "make dist", After: []string{"phantom"}},
		},
	}
	_, err := plan.Order()
	if err == nil {
		t.Fatal("expected error for unknown after reference")
	}
	if !strings.Contains(err.Error(), `"phantom"`) {
		t.Errorf("error = %v, want mention of phantom", err)
	}
}

func TestPlanOrderCycle(t *testing.T) {
	t.Parallel()

	plan := &Plan{
		Steps: []Step{
			{ID: "a", Name: "A", Run: "true", After: []string{"b"}},
			{ID: "b", Name: "B", Run: "true", After: []string{"a"}},
		},
	}
	_, err := plan.Order()
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error = %v, want mention of cycle", err)
	}
}
