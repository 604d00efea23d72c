package client

import (
	"slices"
	"sync"
	"time"
)

type dedupEntry struct {
	at       time.Time
	endpoint string
	mid      uint16
	reply    bool
}

// dedupCache remembers message IDs recently received from each endpoint.
// Entries are kept in arrival order, so pruning stops at the first entry
// inside the retention window.
type dedupCache struct {
	mutex     sync.Mutex
	entries   []dedupEntry
	retention time.Duration
}

func newDedupCache(retention time.Duration) *dedupCache {
	return &dedupCache{retention: retention}
}

// check prunes expired entries and reports whether (endpoint, mid) was seen
// within the retention window. An unseen pair is recorded. Replies
// (acknowledgements and resets) and other messages are tracked separately.
// Prune, lookup and insert run under one lock.
func (d *dedupCache) check(now time.Time, endpoint string, mid uint16, reply bool) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.pruneLocked(now)
	for _, e := range d.entries {
		if e.mid == mid && e.reply == reply && e.endpoint == endpoint {
			return true
		}
	}
	d.entries = append(d.entries, dedupEntry{at: now, endpoint: endpoint, mid: mid, reply: reply})
	return false
}

// forgetReplies removes the replies recorded for mid, so that a reused
// message ID can be acknowledged again.
func (d *dedupCache) forgetReplies(mid uint16) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.entries = slices.DeleteFunc(d.entries, func(e dedupEntry) bool {
		return e.reply && e.mid == mid
	})
}

func (d *dedupCache) pruneLocked(now time.Time) {
	i := 0
	for ; i < len(d.entries); i++ {
		if now.Sub(d.entries[i].at) <= d.retention {
			break
		}
	}
	if i == 0 {
		return
	}
	n := copy(d.entries, d.entries[i:])
	clear(d.entries[n:])
	d.entries = d.entries[:n]
}

func (d *dedupCache) prune(now time.Time) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.pruneLocked(now)
}

func (d *dedupCache) length() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return len(d.entries)
}
