package edgecache

import "fmt"

// Forward reasons reported in the Cache-Status response header,
// following the RFC 9211 vocabulary.
const (
	// The worker was configured to not handle this request.
	fwdReasonBypass = "bypass"

	// The request method's semantics require the request to be forwarded.
	fwdReasonMethod = "method"

	// The cache did not contain any response that matched the request URI.
	fwdReasonUriMiss = "uri-miss"

	// The cache did not contain any response that could be used to
	// satisfy this request.
	fwdReasonMiss = "miss"

	// The cache contained a response, but it was stale; it may still be
	// served when the origin is unreachable.
	fwdReasonStale = "stale"
)

// CacheStatus renders the Cache-Status header for one handled request.
type CacheStatus struct {
	hit       bool
	fwdReason string
	detail    string
}

func (cs *CacheStatus) Hit() {
	cs.hit = true
	cs.fwdReason = ""
}

func (cs *CacheStatus) Forward(reason string) {
	cs.hit = false
	cs.fwdReason = reason
}

func (cs *CacheStatus) Detail(detail string) {
	cs.detail = detail
}

func (cs *CacheStatus) String() string {
	status := "MuhlStore-Edge; hit"
	if !cs.hit {
		status = fmt.Sprintf("MuhlStore-Edge; fwd=%s", cs.fwdReason)
	}
	if cs.detail != "" {
		status = status + "; detail=" + cs.detail
	}
	return status
}
