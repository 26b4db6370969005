package shipper

// destinationCache memoizes which log groups and streams are known to
// exist, and the last known upload sequence token per stream. Presence of a
// group entry means the group exists; presence of a stream key under it
// means the stream exists, whether or not its token is populated. A nil
// token means "created, never appended, or cleared after a conflict".
//
// The cache lives for the shipper's lifetime and is only ever cleared
// entry-by-entry. It is safe under the shipper's single-threaded call
// pattern only.
type destinationCache struct {
	groups map[string]map[string]*string
}

func newDestinationCache() *destinationCache {
	return &destinationCache{groups: make(map[string]map[string]*string)}
}

func (c *destinationCache) groupKnown(group string) bool {
	_, ok := c.groups[group]
	return ok
}

func (c *destinationCache) markGroup(group string) {
	if _, ok := c.groups[group]; !ok {
		c.groups[group] = make(map[string]*string)
	}
}

func (c *destinationCache) streamKnown(group, stream string) bool {
	streams, ok := c.groups[group]
	if !ok {
		return false
	}
	_, ok = streams[stream]
	return ok
}

// markStream records a stream as existing with its current token, which may
// be nil for a stream that has never been appended to. The group must
// already be marked.
func (c *destinationCache) markStream(group, stream string, token *string) {
	c.groups[group][stream] = token
}

// token returns the cached sequence token for a known stream; nil when the
// stream is unknown or has no token.
func (c *destinationCache) token(group, stream string) *string {
	return c.groups[group][stream]
}

func (c *destinationCache) setToken(group, stream string, token *string) {
	c.groups[group][stream] = token
}

// clearToken forgets the token but keeps the stream marked as existing, so
// the next append refetches nothing and simply omits the token field.
func (c *destinationCache) clearToken(group, stream string) {
	if streams, ok := c.groups[group]; ok {
		if _, ok := streams[stream]; ok {
			streams[stream] = nil
		}
	}
}
