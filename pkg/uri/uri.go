// Package uri implements the structured peer/transport addresses used
// throughout the engine: node URIs (scheme "nodepubkey"), agent URIs
// (scheme "agentpubkey"), in-memory transport URIs (scheme "mem") and the
// undefined placeholder (scheme "none").
package uri

import (
	"fmt"
	"net/url"
	"strconv"
)

// Reserved schemes.
const (
	SchemeAgent = "agentpubkey"
	SchemeNode  = "nodepubkey"
	SchemeMem   = "mem"
	SchemeNone  = "none"
)

// AgentQueryKey is the query parameter a node URI carries its agent id
// under, turning a low-level ("full low") URI into a "partial high" one.
const AgentQueryKey = "a"

// Uri is an immutable, structured peer/transport address.
type Uri struct {
	raw *url.URL
}

// ParseUri parses a URI of the shape scheme://host[:port][?a=agent].
func ParseUri(s string) (Uri, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Uri{}, fmt.Errorf("uri: parse %q: %w", s, err)
	}
	return Uri{raw: u}, nil
}

// MustParse panics on invalid input; reserved for constants and tests.
func MustParse(s string) Uri {
	u, err := ParseUri(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Build constructs a Uri from discrete parts.
func Build(scheme, host string, port int) Uri {
	u := &url.URL{Scheme: scheme, Host: host}
	if port > 0 {
		u.Host = fmt.Sprintf("%s:%d", host, port)
	}
	return Uri{raw: u}
}

func (u Uri) clone() *url.URL {
	if u.raw == nil {
		c := &url.URL{}
		return c
	}
	c := *u.raw
	return &c
}

// Scheme returns the URI scheme.
func (u Uri) Scheme() string {
	if u.raw == nil {
		return ""
	}
	return u.raw.Scheme
}

// Host returns the hostname without port.
func (u Uri) Host() string {
	if u.raw == nil {
		return ""
	}
	return u.raw.Hostname()
}

// Port returns the port number and whether one was present.
func (u Uri) Port() (int, bool) {
	if u.raw == nil || u.raw.Port() == "" {
		return 0, false
	}
	p, err := strconv.Atoi(u.raw.Port())
	if err != nil {
		return 0, false
	}
	return p, true
}

// WithPort returns a copy of u with the port replaced.
func (u Uri) WithPort(port int) Uri {
	c := u.clone()
	c.Host = fmt.Sprintf("%s:%d", c.Hostname(), port)
	return Uri{raw: c}
}

// AgentID returns the "?a=" query parameter, if any.
func (u Uri) AgentID() (string, bool) {
	if u.raw == nil {
		return "", false
	}
	v := u.raw.Query()
	if !v.Has(AgentQueryKey) {
		return "", false
	}
	return v.Get(AgentQueryKey), true
}

// SetAgentID returns a copy of u with "?a=agent" set, turning a low-level
// URI into a "partial high" URI.
func (u Uri) SetAgentID(agent string) Uri {
	c := u.clone()
	q := c.Query()
	q.Set(AgentQueryKey, agent)
	c.RawQuery = q.Encode()
	return Uri{raw: c}
}

// ClearAgentID strips the "?a=" query parameter, yielding the low-level
// transport address ("full low" URI).
func (u Uri) ClearAgentID() Uri {
	c := u.clone()
	q := c.Query()
	q.Del(AgentQueryKey)
	c.RawQuery = q.Encode()
	return Uri{raw: c}
}

// IsPartialHigh reports whether this node URI carries an agent query,
// i.e. identifies a specific agent behind a machine address.
func (u Uri) IsPartialHigh() bool {
	_, ok := u.AgentID()
	return u.Scheme() == SchemeNode && ok
}

// String renders the URI in canonical form.
func (u Uri) String() string {
	if u.raw == nil {
		return ""
	}
	return u.raw.String()
}

// Empty reports whether the Uri was never built/parsed.
func (u Uri) Empty() bool {
	return u.raw == nil
}

// Equal compares two URIs by their canonical string form.
func (u Uri) Equal(other Uri) bool {
	return u.String() == other.String()
}

// None returns the "none" scheme placeholder URI.
func None() Uri {
	return Build(SchemeNone, "", 0)
}
