package position

import "testing"

func TestPositionString(t *testing.T) {
	tests := []struct {
		name string
		pos  Position
		want string
	}{
		{"with file", Position{File: "prog.ks", Line: 3, Column: 5}, "prog.ks:3:5"},
		{"nested path uses base", Position{File: "/a/b/prog.ks", Line: 1, Column: 1}, "prog.ks:1:1"},
		{"no file", Position{Line: 2, Column: 7}, "2:7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pos.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPositionIsValid(t *testing.T) {
	valid := Position{File: "a.ks", Line: 1, Column: 1, Offset: 0}
	if !valid.IsValid() {
		t.Errorf("expected %+v to be valid", valid)
	}
	zero := Position{}
	if zero.IsValid() {
		t.Errorf("expected zero value to be invalid")
	}
}

func TestPositionBefore(t *testing.T) {
	a := Position{File: "a.ks", Offset: 10}
	b := Position{File: "a.ks", Offset: 20}
	if !a.Before(b) {
		t.Errorf("expected a before b")
	}
	if b.Before(a) {
		t.Errorf("expected b not before a")
	}
}

func TestSpanString(t *testing.T) {
	tests := []struct {
		name string
		span Span
		want string
	}{
		{
			"same line",
			Span{Start: Position{File: "a.ks", Line: 2, Column: 1}, End: Position{File: "a.ks", Line: 2, Column: 5}},
			"a.ks:2:1-5",
		},
		{
			"multi line",
			Span{Start: Position{File: "a.ks", Line: 2, Column: 1}, End: Position{File: "a.ks", Line: 4, Column: 2}},
			"a.ks:2:1-4:2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.span.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpanUnion(t *testing.T) {
	a := Span{Start: Position{File: "a.ks", Offset: 5}, End: Position{File: "a.ks", Offset: 10}}
	b := Span{Start: Position{File: "a.ks", Offset: 1}, End: Position{File: "a.ks", Offset: 7}}

	u := a.Union(b)
	if u.Start.Offset != 1 || u.End.Offset != 10 {
		t.Errorf("Union() = %+v, want Start.Offset=1 End.Offset=10", u)
	}
}

func TestSpanUnionDifferentFiles(t *testing.T) {
	a := Span{Start: Position{File: "a.ks", Offset: 0}, End: Position{File: "a.ks", Offset: 5}}
	b := Span{Start: Position{File: "b.ks", Offset: 0}, End: Position{File: "b.ks", Offset: 5}}
	if got := a.Union(b); got != a {
		t.Errorf("Union() across files = %+v, want unchanged %+v", got, a)
	}
}

func TestFileGetLine(t *testing.T) {
	f := NewFile("a.ks", "line one\nline two\nline three")

	if got := f.GetLine(2); got != "line two" {
		t.Errorf("GetLine(2) = %q, want %q", got, "line two")
	}
	if got := f.GetLine(0); got != "" {
		t.Errorf("GetLine(0) = %q, want empty", got)
	}
	if got := f.GetLine(99); got != "" {
		t.Errorf("GetLine(99) = %q, want empty", got)
	}
}

func TestFilePositionAt(t *testing.T) {
	f := NewFile("a.ks", "abc\ndef\nghi")

	got := f.PositionAt(4) // 'd' right after the first newline
	want := Position{File: "a.ks", Line: 2, Column: 1, Offset: 4}
	if got != want {
		t.Errorf("PositionAt(4) = %+v, want %+v", got, want)
	}

	if got := f.PositionAt(-1); got != (Position{}) {
		t.Errorf("PositionAt(-1) = %+v, want zero value", got)
	}
}

func TestMapLine(t *testing.T) {
	m := NewMap()
	m.Add("a.ks", "hello\nworld")

	if got := m.Line(Position{File: "a.ks", Line: 2}); got != "world" {
		t.Errorf("Line() = %q, want %q", got, "world")
	}
	if got := m.Line(Position{File: "missing.ks", Line: 1}); got != "" {
		t.Errorf("Line() for unregistered file = %q, want empty", got)
	}
}
