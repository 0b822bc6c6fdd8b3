package auth

import "sync/atomic"

// Credential holds an operator's latest bearer token. Background fetches read
// it on every request, so a token refreshed by a later API call is picked up
// without reopening the workspace.
type Credential struct {
	v atomic.Value
}

func NewCredential(token string) *Credential {
	c := &Credential{}
	c.Set(token)
	return c
}

func (c *Credential) Token() string {
	s, _ := c.v.Load().(string)
	return s
}

func (c *Credential) Set(token string) {
	c.v.Store(token)
}
