package rbac

type Role string
type Action string

const (
	// RoleNone is held by accounts that have not finished role selection.
	RoleNone       Role = ""
	RoleFounder    Role = "founder"
	RoleVC         Role = "vc"
	RoleExchange   Role = "exchange"
	RoleIDO        Role = "ido"
	RoleInfluencer Role = "influencer"
	RoleAgency     Role = "agency"
	RoleAdmin      Role = "admin"
)

const (
	ActionRead           Action = "read"
	ActionVerify         Action = "verify"
	ActionUpload         Action = "upload"
	ActionChat           Action = "chat"
	ActionManageTeam     Action = "manage_team"
	ActionManageProject  Action = "manage_project"
	ActionAnalyzeProject Action = "analyze_project"
	ActionAcceptPitch    Action = "accept_pitch"
	ActionBrowseProjects Action = "browse_projects"
	ActionManageBlog     Action = "manage_blog"
	ActionAdmin          Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleFounder:
		switch action {
		case ActionRead, ActionVerify, ActionUpload, ActionChat, ActionManageTeam, ActionManageProject, ActionAnalyzeProject:
			return true
		}
		return false
	case RoleVC, RoleExchange, RoleIDO, RoleInfluencer, RoleAgency:
		switch action {
		case ActionRead, ActionVerify, ActionUpload, ActionChat, ActionManageTeam, ActionAcceptPitch, ActionBrowseProjects:
			return true
		}
		return false
	case RoleNone:
		return action == ActionRead
	default:
		return false
	}
}

// Normalize maps unknown values to RoleNone.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleFounder, RoleVC, RoleExchange, RoleIDO, RoleInfluencer, RoleAgency, RoleAdmin:
		return Role(role)
	default:
		return RoleNone
	}
}

// Selectable reports whether a user may pick role for themselves during
// onboarding. Admin is granted, never chosen.
func Selectable(role Role) bool {
	switch role {
	case RoleFounder, RoleVC, RoleExchange, RoleIDO, RoleInfluencer, RoleAgency:
		return true
	default:
		return false
	}
}

// IsCounterpart reports whether role sits across the table from founders.
func IsCounterpart(role Role) bool {
	return role != RoleFounder && Selectable(role)
}
