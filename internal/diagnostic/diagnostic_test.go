package diagnostic

import (
	"strings"
	"testing"

	kerrors "github.com/SiyuanSun0736/kernelscript/internal/errors"
	"github.com/SiyuanSun0736/kernelscript/internal/position"
)

func TestBagHasErrorsAndCount(t *testing.T) {
	b := NewBag()
	if b.HasErrors() {
		t.Fatalf("new bag should have no errors")
	}

	b.Add(kerrors.New(position.Position{File: "a.ks", Line: 1, Column: 1}, kerrors.KindTypeMismatch, "bad"))
	if !b.HasErrors() {
		t.Fatalf("expected HasErrors() after Add")
	}
	if b.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", b.Count())
	}
}

func TestBagSortedOrdersByPosition(t *testing.T) {
	b := NewBag()
	later := kerrors.New(position.Position{File: "a.ks", Line: 5, Column: 1, Offset: 50}, kerrors.KindTypeMismatch, "later")
	earlier := kerrors.New(position.Position{File: "a.ks", Line: 1, Column: 1, Offset: 0}, kerrors.KindTypeMismatch, "earlier")

	b.Add(later)
	b.Add(earlier)

	sorted := b.Sorted()
	if len(sorted) != 2 {
		t.Fatalf("len(Sorted()) = %d, want 2", len(sorted))
	}
	if sorted[0] != earlier || sorted[1] != later {
		t.Errorf("Sorted() did not order by position: %v", sorted)
	}
}

func TestBagRenderFormatsEachErrorOnItsOwnLine(t *testing.T) {
	b := NewBag()
	b.Add(kerrors.New(position.Position{File: "a.ks", Line: 1, Column: 1}, kerrors.KindMissingMain, "no main"))
	b.Add(kerrors.New(position.Position{File: "a.ks", Line: 2, Column: 1}, kerrors.KindTypeMismatch, "bad type"))

	rendered := b.Render()
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Render() produced %d lines, want 2:\n%s", len(lines), rendered)
	}
	if !strings.Contains(lines[0], "no main") || !strings.Contains(lines[1], "bad type") {
		t.Errorf("Render() = %q, missing expected messages", rendered)
	}
}

func TestBagRenderEmpty(t *testing.T) {
	b := NewBag()
	if got := b.Render(); got != "" {
		t.Errorf("Render() on empty bag = %q, want empty", got)
	}
}
