package ssrf

import (
	"fmt"
	"net/http"
)

// CheckRedirect returns an http.Client.CheckRedirect func that caps the
// redirect chain at maxRedirects and re-validates each hop's hostname with
// ValidatePublicHostname. A same-origin allowlist check at request time is
// not enough on its own: a server can 30x to a private or metadata address
// after the first hop passed validation, and http.Client follows redirects
// without re-checking anything by default.
func CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if err := ValidatePublicHostname(req.URL.Hostname()); err != nil {
			return fmt.Errorf("redirect to %s blocked: %w", req.URL.Hostname(), err)
		}
		return nil
	}
}
