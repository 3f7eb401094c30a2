package show

import (
	"testing"

	"github.com/stagekit/showcall/internal/model"
)

func TestCapabilitiesFor(t *testing.T) {
	cases := []struct {
		role model.Role
		want Capabilities
	}{
		{model.RoleStageManager, Capabilities{DriveCues: true, ViewState: true, SendAnnouncements: true, ManageMembership: true}},
		{model.RoleOperator, Capabilities{ViewState: true, SetOwnReadiness: true}},
		{model.RoleDirector, Capabilities{ViewState: true}},
		{model.RoleDirectorPlus, Capabilities{ViewState: true, ManageMembership: true}},
		{model.RoleAdmin, Capabilities{ViewState: true, SendAnnouncements: true, ManageMembership: true}},
		{model.Role("producer"), Capabilities{}},
		{model.Role(""), Capabilities{}},
	}
	for _, tc := range cases {
		if got := CapabilitiesFor(tc.role); got != tc.want {
			t.Errorf("CapabilitiesFor(%q) = %+v, want %+v", tc.role, got, tc.want)
		}
	}
}

func TestRandomCodeShape(t *testing.T) {
	const alphabet = "ABC123"
	for i := 0; i < 100; i++ {
		code, err := randomCode(alphabet, 6)
		if err != nil {
			t.Fatalf("randomCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("len(%q) = %d", code, len(code))
		}
		for _, c := range code {
			found := false
			for _, a := range alphabet {
				if c == a {
					found = true
				}
			}
			if !found {
				t.Fatalf("code %q contains %q outside alphabet", code, c)
			}
		}
	}
}
