package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                  "/",
		"/metrics":                          "/metrics",
		"/v1/permissions":                   "/v1/permissions",
		"/v1/permissions?grouped=true":      "/v1/permissions",
		"/v1/orgs/org-1/roles":              "/v1/orgs/:org/roles",
		"/v1/orgs/org-1/roles/role-9":       "/v1/orgs/:org/roles/:id",
		"/v1/orgs/org-1/members/u-7/role":   "/v1/orgs/:org/members/:id/role",
		"/v1/orgs/org-1/role-history":       "/v1/orgs/:org/role-history",
		"/v1/orgs/org-1/api-keys/k1/revoke": "/v1/orgs/:org/api-keys/:id/revoke",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
