package rbac

type Role string
type Action string

const (
	RoleParticipant Role = "participant"
	RoleFacilitator Role = "facilitator"
)

const (
	ActionViewBoard     Action = "view_board"
	ActionWriteNotes    Action = "write_notes"
	ActionOrganize      Action = "organize"
	ActionVote          Action = "vote"
	ActionCreateAction  Action = "create_action"
	ActionChangePhase   Action = "change_phase"
	ActionExport        Action = "export"
	ActionDeleteSession Action = "delete_session"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleFacilitator:
		return true
	case RoleParticipant:
		return action == ActionViewBoard || action == ActionWriteNotes || action == ActionOrganize || action == ActionVote
	default:
		return false
	}
}

// Normalize maps unknown roles to participant, the least privileged role.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleParticipant, RoleFacilitator:
		return Role(role)
	default:
		return RoleParticipant
	}
}
