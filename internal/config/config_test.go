package config

import "testing"

func TestParseRoutes(t *testing.T) {
	routes, err := ParseRoutes([]byte(`[
		{"path": "/photos", "endpoint": "file:///srv/images"},
		{"path": "/remote", "endpoint": "https://images.example.com/assets"},
		{"path": "/archive", "endpoint": "s3://media-bucket/archive"}
	]`))
	if err != nil {
		t.Fatalf("ParseRoutes: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("routes = %d, want 3", len(routes))
	}
	if routes[0].Prefix != "/photos" || routes[0].Endpoint != "file:///srv/images" {
		t.Fatalf("unexpected first route: %+v", routes[0])
	}
}

func TestParseRoutesRejectsIncompleteEntries(t *testing.T) {
	cases := map[string]string{
		"missing path":     `[{"endpoint": "file:///srv"}]`,
		"missing endpoint": `[{"path": "/photos"}]`,
		"not json":         `photos=file:///srv`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRoutes([]byte(raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
