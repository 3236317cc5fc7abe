package ssrf

import (
	"net/http"
	"net/url"
	"testing"
)

func TestCheckRedirectBlocksPrivateHop(t *testing.T) {
	check := CheckRedirect(10)
	req := &http.Request{URL: &url.URL{Scheme: "http", Host: "169.254.169.254"}}

	if err := check(req, nil); err == nil {
		t.Fatal("expected redirect to a link-local address to be blocked")
	}
}

func TestCheckRedirectBlocksLocalhostHop(t *testing.T) {
	check := CheckRedirect(10)
	req := &http.Request{URL: &url.URL{Scheme: "http", Host: "localhost:8080"}}

	if err := check(req, nil); err == nil {
		t.Fatal("expected redirect to localhost to be blocked")
	}
}

func TestCheckRedirectCapsChainLength(t *testing.T) {
	check := CheckRedirect(2)
	req := &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com"}}
	via := []*http.Request{{}, {}}

	if err := check(req, via); err == nil {
		t.Fatal("expected redirect chain beyond the cap to be rejected")
	}
}
