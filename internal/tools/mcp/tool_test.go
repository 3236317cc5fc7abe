package mcp

import (
	"testing"
)

func TestHostAllowedMatchesExactAndSuffix(t *testing.T) {
	allowed := []string{"example.com", "api.internal.test"}
	cases := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"sub.example.com", true},
		{"evilexample.com", false},
		{"api.internal.test", true},
		{"other.test", false},
	}
	for _, c := range cases {
		if got := hostAllowed(c.host, allowed); got != c.want {
			t.Errorf("hostAllowed(%q) = %v, want %v", c.host, got, c.want)
		}
	}
}

func TestParseHTTPURLRejectsNonHTTPScheme(t *testing.T) {
	if _, err := parseHTTPURL("ftp://example.com/x"); err == nil {
		t.Fatal("expected error for non-http(s) scheme")
	}
	if _, err := parseHTTPURL("https://example.com/x"); err != nil {
		t.Fatalf("unexpected error for https url: %v", err)
	}
}

func TestFactoryBuildRejectsDisallowedHost(t *testing.T) {
	f := NewFactory(FactoryOptions{AllowedDomains: []string{"allowed.test"}})
	_, err := f.Build(Entry{Name: "x", URL: "https://notallowed.test/fn", FuncName: "run"})
	if err == nil {
		t.Fatal("expected error for disallowed host")
	}
}

func TestFactoryBuildAcceptsAllowedHost(t *testing.T) {
	f := NewFactory(FactoryOptions{AllowedDomains: []string{"allowed.test"}})
	tool, err := f.Build(Entry{Name: "x", URL: "https://allowed.test/fn", FuncName: "run"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tool.Metadata().Name != "x" {
		t.Fatalf("unexpected tool name: %s", tool.Metadata().Name)
	}
}
