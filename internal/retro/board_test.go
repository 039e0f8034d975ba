package retro

import "testing"

func TestGroupColumn(t *testing.T) {
	tests := []struct {
		name      string
		requested Column
		members   []Column
		want      Column
	}{
		{name: "shared lane", requested: ColumnStart, members: []Column{ColumnStop, ColumnStop}, want: ColumnStop},
		{name: "spans lanes", requested: ColumnStart, members: []Column{ColumnStart, ColumnContinue}, want: ColumnMixed},
		{name: "explicit mixed", requested: ColumnMixed, members: []Column{ColumnStart, ColumnStart}, want: ColumnMixed},
		{name: "no members", requested: ColumnContinue, members: nil, want: ColumnContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GroupColumn(tt.requested, tt.members); got != tt.want {
				t.Fatalf("GroupColumn() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseColumns(t *testing.T) {
	if _, ok := ParseNoteColumn("mixed"); ok {
		t.Fatal("notes cannot live in the mixed column")
	}
	if c, ok := ParseGroupColumn("mixed"); !ok || c != ColumnMixed {
		t.Fatalf("ParseGroupColumn(mixed) = %q, %v", c, ok)
	}
	if _, ok := ParseGroupColumn("later"); ok {
		t.Fatal("expected unknown column to be rejected")
	}
}

func TestParsePhase(t *testing.T) {
	for _, phase := range Phases {
		if got, ok := ParsePhase(string(phase)); !ok || got != phase {
			t.Fatalf("ParsePhase(%q) = %q, %v", phase, got, ok)
		}
	}
	if _, ok := ParsePhase("retro"); ok {
		t.Fatal("expected unknown phase to be rejected")
	}
}
