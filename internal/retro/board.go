package retro

// Column is a board lane. Notes live in start, stop or continue; only groups
// can be mixed.
type Column string

const (
	ColumnStart    Column = "start"
	ColumnStop     Column = "stop"
	ColumnContinue Column = "continue"
	ColumnMixed    Column = "mixed"
)

// ParseNoteColumn accepts the three lanes a note can sit in.
func ParseNoteColumn(raw string) (Column, bool) {
	switch c := Column(raw); c {
	case ColumnStart, ColumnStop, ColumnContinue:
		return c, true
	}
	return "", false
}

// ParseGroupColumn accepts any note lane plus mixed.
func ParseGroupColumn(raw string) (Column, bool) {
	if Column(raw) == ColumnMixed {
		return ColumnMixed, true
	}
	return ParseNoteColumn(raw)
}

// GroupColumn decides the lane of a new group. An explicit mixed request
// wins; otherwise members sharing one lane keep it and anything else is mixed.
func GroupColumn(requested Column, members []Column) Column {
	if requested == ColumnMixed {
		return ColumnMixed
	}
	if len(members) == 0 {
		return requested
	}
	first := members[0]
	for _, c := range members[1:] {
		if c != first {
			return ColumnMixed
		}
	}
	return first
}

type Phase string

const (
	PhaseWaiting    Phase = "waiting"
	PhaseBrainstorm Phase = "brainstorm"
	PhaseGrouping   Phase = "grouping"
	PhaseVoting     Phase = "voting"
	PhaseActions    Phase = "actions"
	PhaseComplete   Phase = "complete"
)

// Phases lists the board phases in their intended order.
var Phases = []Phase{PhaseWaiting, PhaseBrainstorm, PhaseGrouping, PhaseVoting, PhaseActions, PhaseComplete}

func ParsePhase(raw string) (Phase, bool) {
	for _, p := range Phases {
		if string(p) == raw {
			return p, true
		}
	}
	return "", false
}

type TargetType string

const (
	TargetNote  TargetType = "note"
	TargetGroup TargetType = "group"
)

func ParseTargetType(raw string) (TargetType, bool) {
	switch t := TargetType(raw); t {
	case TargetNote, TargetGroup:
		return t, true
	}
	return "", false
}
