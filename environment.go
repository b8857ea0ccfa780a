package edgecache

import "strings"

const (
	devPort          = "3000"
	localAPIOrigin   = "http://localhost:5000"
	productionOrigin = "https://loja.muhlstore.com.br"
)

var privateNetworkPrefixes = []string{"192.168.", "10.0.", "172."}

// Environment classifies the deployment the worker runs in.
// It is computed once at worker construction and passed by reference;
// nothing recomputes it at request time.
type Environment struct {
	IsDevelopment bool
	IsLocalhost   bool
	// APIBaseURL is the origin to target for API and upload requests
	// during development. Empty means "stay same-origin".
	APIBaseURL string
}

// ResolveEnvironment derives the environment from the location the worker
// is reachable at. Development is declared for localhost, private-network
// addresses, the well-known dev port, or plain HTTP. This is pure
// computation with no I/O.
func ResolveEnvironment(hostname, port, scheme string) Environment {
	env := Environment{
		IsLocalhost: hostname == "localhost" || hostname == "127.0.0.1",
	}
	env.IsDevelopment = env.IsLocalhost ||
		hasPrivatePrefix(hostname) ||
		port == devPort ||
		scheme == "http"

	switch {
	case !env.IsDevelopment:
		env.APIBaseURL = productionOrigin
	case env.IsLocalhost:
		env.APIBaseURL = localAPIOrigin
	default:
		// development on a LAN address: relative URLs keep requests
		// same-origin across devices
		env.APIBaseURL = ""
	}
	return env
}

func hasPrivatePrefix(hostname string) bool {
	for _, prefix := range privateNetworkPrefixes {
		if strings.HasPrefix(hostname, prefix) {
			return true
		}
	}
	return false
}
