package router

import (
	"sort"
	"sync"
)

// conversations assigns a stable id to every pair of users that has exchanged
// a direct message.
type conversations struct {
	mu     sync.Mutex
	nextID int64
	ids    map[[2]string]int64
	peers  map[string]map[string]struct{}
}

func newConversations() *conversations {
	return &conversations{
		nextID: 1,
		ids:    make(map[[2]string]int64),
		peers:  make(map[string]map[string]struct{}),
	}
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func (c *conversations) id(a, b string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pairKey(a, b)
	if id, ok := c.ids[key]; ok {
		return id
	}
	id := c.nextID
	c.nextID++
	c.ids[key] = id
	c.link(a, b)
	c.link(b, a)
	return id
}

func (c *conversations) link(from, to string) {
	set, ok := c.peers[from]
	if !ok {
		set = make(map[string]struct{})
		c.peers[from] = set
	}
	set[to] = struct{}{}
}

func (c *conversations) partners(userID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.peers[userID]))
	for p := range c.peers[userID] {
		if p != userID {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
