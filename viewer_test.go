package rankport

import (
	"strings"
	"testing"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		claim string
		want  Role
		ok    bool
	}{
		{"admin", RoleAdmin, true},
		{"organizer", RoleOrganizer, true},
		{"player", RolePlayer, true},
		{"none", RoleNone, false},
		{"", RoleNone, false},
		{"Admin", RoleNone, false},
	}
	for _, tt := range tests {
		got, err := parseRole(tt.claim)
		if tt.ok && err != nil {
			t.Errorf("parseRole(%q): %v", tt.claim, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("parseRole(%q) succeeded, want error", tt.claim)
		}
		if got != tt.want {
			t.Errorf("parseRole(%q) = %v, want %v", tt.claim, got, tt.want)
		}
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{RoleAdmin, "admin"},
		{RoleOrganizer, "organizer"},
		{RolePlayer, "player"},
		{RoleNone, "none"},
		{Role(99), "none"},
	}
	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("Role(%d).String() = %q, want %q", tt.role, got, tt.want)
		}
	}
}

func TestValidateTenantName(t *testing.T) {
	valid := []string{
		"a1",
		"kayac",
		"valid-tenant",
		"t0123456789",
		"a" + strings.Repeat("b", 61) + "c", // 63文字ちょうど
	}
	for _, name := range valid {
		if err := validateTenantName(name); err != nil {
			t.Errorf("validateTenantName(%q): %v", name, err)
		}
	}

	invalid := []string{
		"",
		"a",  // 最低2文字
		"1a", // 先頭は英小文字
		"-ab",
		"ab-", // 末尾にハイフンは不可
		"UPPER",
		"has_underscore",
		"a" + strings.Repeat("b", 62) + "c", // 64文字は超過
	}
	for _, name := range invalid {
		if err := validateTenantName(name); err == nil {
			t.Errorf("validateTenantName(%q) succeeded, want error", name)
		}
	}
}
