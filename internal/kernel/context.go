package kernel

import "sync"

// Context is the explicit shared state of the supervised kernel: the cached
// auth token read by every outbound request and stream connection. It is
// owned by the process-lifetime root and injected into every component that
// needs it; the token is written only by the supervisor on (re)start.
//
// There is a narrow window after a restart where in-flight requests still
// carry the old token and fail with an auth error; the restart flow refreshes
// observers shortly after, which retries with the new token.
type Context struct {
	mu    sync.RWMutex
	token string
}

// NewContext creates an empty supervisor context.
func NewContext() *Context {
	return &Context{}
}

// Token returns the cached auth token. Implements control.TokenSource.
func (c *Context) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// setToken replaces the cached token. Called only by the supervisor after
// (re)deriving the secret from the bootstrap config.
func (c *Context) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}
