package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "no role read", role: RoleNone, action: ActionRead, allow: true},
		{name: "no role chat", role: RoleNone, action: ActionChat, allow: false},
		{name: "founder manage project", role: RoleFounder, action: ActionManageProject, allow: true},
		{name: "founder accept pitch", role: RoleFounder, action: ActionAcceptPitch, allow: false},
		{name: "vc accept pitch", role: RoleVC, action: ActionAcceptPitch, allow: true},
		{name: "exchange browse", role: RoleExchange, action: ActionBrowseProjects, allow: true},
		{name: "influencer manage project", role: RoleInfluencer, action: ActionManageProject, allow: false},
		{name: "agency blog", role: RoleAgency, action: ActionManageBlog, allow: false},
		{name: "ido team", role: RoleIDO, action: ActionManageTeam, allow: true},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
		{name: "admin blog", role: RoleAdmin, action: ActionManageBlog, allow: true},
		{name: "unknown role", role: Role("root"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalizeAndSelectable(t *testing.T) {
	if Normalize("vc") != RoleVC {
		t.Fatalf("Normalize(vc) = %q", Normalize("vc"))
	}
	if Normalize("superuser") != RoleNone {
		t.Fatalf("Normalize(superuser) = %q, want none", Normalize("superuser"))
	}
	if Selectable(RoleAdmin) {
		t.Fatal("admin must not be self-selectable")
	}
	if !Selectable(RoleFounder) || IsCounterpart(RoleFounder) {
		t.Fatal("founder is selectable but not a counterpart")
	}
	if !IsCounterpart(RoleAgency) {
		t.Fatal("agency is a counterpart role")
	}
}
