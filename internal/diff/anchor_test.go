package diff

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestApplyEdits_MultipleNonOverlapping(t *testing.T) {
	lines := SplitLines("a\nb\nc\nd\n")
	edits := []Edit{
		{Find: []string{"c"}, Content: []string{"C1", "C2"}},
		{Find: []string{"a"}, Content: nil},
	}
	got, err := ApplyEdits(lines, edits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"b", "C1", "C2", "d"}
	if !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyEdits_MultiLineFind(t *testing.T) {
	lines := SplitLines("//@version=5\nindicator(\"x\")\nplot(close)\nplot(open)\n")
	edits := []Edit{{
		Find:    []string{"plot(close)", "plot(open)"},
		Content: []string{"plot(hl2)"},
	}}
	got, err := ApplyEdits(lines, edits)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "//@version=5\nindicator(\"x\")\nplot(hl2)\n"
	if s := JoinLines(got, true); s != want {
		t.Errorf("got:\n%s\nwant:\n%s", s, want)
	}
}

func TestApplyEdits_ErrorNotFound(t *testing.T) {
	lines := SplitLines("line1\nline2\n")
	_, err := ApplyEdits(lines, []Edit{{Find: []string{"nonexistent"}, Content: []string{"x"}}})

	var editErr *EditError
	if !errors.As(err, &editErr) {
		t.Fatalf("expected *EditError, got %T (%v)", err, err)
	}
	if editErr.Index != 0 {
		t.Errorf("Index = %d, want 0", editErr.Index)
	}
	if !strings.Contains(editErr.Reason, "not found") {
		t.Errorf("Reason = %q, want to contain 'not found'", editErr.Reason)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestApplyEdits_ErrorNotUnique(t *testing.T) {
	lines := SplitLines("    pass\ndef mid():\n    pass\n")
	_, err := ApplyEdits(lines, []Edit{{Find: []string{"    pass"}, Content: []string{"    return"}}})

	var editErr *EditError
	if !errors.As(err, &editErr) {
		t.Fatalf("expected *EditError, got %T (%v)", err, err)
	}
	if !strings.Contains(editErr.Reason, "not unique") {
		t.Errorf("Reason = %q, want to contain 'not unique'", editErr.Reason)
	}
	if !strings.Contains(editErr.Reason, "1, 3") {
		t.Errorf("Reason = %q, want to contain line numbers '1, 3'", editErr.Reason)
	}
	if !errors.Is(err, ErrNotUnique) {
		t.Errorf("err = %v, want ErrNotUnique", err)
	}
}

func TestApplyEdits_ErrorOverlap(t *testing.T) {
	lines := SplitLines("a\nb\nc\nd\n")
	edits := []Edit{
		{Find: []string{"b", "c"}, Content: []string{"x"}},
		{Find: []string{"c", "d"}, Content: []string{"y"}},
	}
	_, err := ApplyEdits(lines, edits)

	var editErr *EditError
	if !errors.As(err, &editErr) {
		t.Fatalf("expected *EditError, got %T (%v)", err, err)
	}
	if editErr.Index != 1 {
		t.Errorf("Index = %d, want 1", editErr.Index)
	}
	if !strings.Contains(editErr.Reason, "overlaps edit 1") {
		t.Errorf("Reason = %q, want to contain 'overlaps edit 1'", editErr.Reason)
	}
}

func TestApplyEdits_ErrorEmptyFind(t *testing.T) {
	_, err := ApplyEdits([]string{"a"}, []Edit{{Content: []string{"b"}}})
	var editErr *EditError
	if !errors.As(err, &editErr) {
		t.Fatalf("expected *EditError, got %T (%v)", err, err)
	}
	if editErr.Reason != "empty find text" {
		t.Errorf("Reason = %q", editErr.Reason)
	}
}

func TestApplyEdits_TrailingWhitespaceFallback(t *testing.T) {
	lines := []string{"x  ", "y"}
	got, err := ApplyEdits(lines, []Edit{{Find: []string{"x"}, Content: []string{"z"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"z", "y"}; !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestApplyEdits_Atomic(t *testing.T) {
	lines := SplitLines("a\nb\nc\n")
	orig := slices.Clone(lines)
	edits := []Edit{
		{Find: []string{"a"}, Content: []string{"A"}},
		{Find: []string{"missing"}, Content: []string{"M"}},
	}
	got, err := ApplyEdits(lines, edits)
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Errorf("got %q, want nil on failure", got)
	}
	if !slices.Equal(lines, orig) {
		t.Errorf("input modified: %q", lines)
	}
}

func TestEditError_Message(t *testing.T) {
	err := &EditError{Index: 0, Reason: "find text not found", Find: []string{"a", "b"}}
	want := `edit 1: find text not found (find: "a" ...)`
	if got := err.Error(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	err = &EditError{Index: 2, Reason: "empty find text"}
	if got := err.Error(); got != "edit 3: empty find text" {
		t.Errorf("got %q", got)
	}
}

func TestSplitLines_Roundtrip(t *testing.T) {
	for _, s := range []string{"a\nb\n", "a\nb", "single\n"} {
		trailing := strings.HasSuffix(s, "\n")
		if got := JoinLines(SplitLines(s), trailing); got != s {
			t.Errorf("roundtrip %q = %q", s, got)
		}
	}
}

func TestSplitLines_Empty(t *testing.T) {
	if got := SplitLines(""); got != nil {
		t.Errorf("got %q, want nil", got)
	}
	if got := JoinLines(nil, true); got != "" {
		t.Errorf("JoinLines(nil) = %q, want empty", got)
	}
}

func TestSplitLines_CRLF(t *testing.T) {
	got := SplitLines("a\r\nb\r\n")
	if want := []string{"a", "b"}; !slices.Equal(got, want) {
		t.Errorf("got %q, want %q", got, want)
	}
}
