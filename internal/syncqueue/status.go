package syncqueue

import (
	"time"
)

// Connectivity as shown by UI chrome.
type Connectivity string

const (
	ConnOnline  Connectivity = "online"
	ConnOffline Connectivity = "offline"
	ConnSyncing Connectivity = "syncing"
)

// SyncStatus is the sync health summary published to subscribers.
type SyncStatus struct {
	State    Connectivity `json:"state"`
	Pending  int          `json:"pending"`
	Failed   int          `json:"failed"`
	LastSync time.Time    `json:"lastSync,omitzero"`
}

// Status returns the current sync health.
func (q *Queue) Status() SyncStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.statusLocked()
}

func (q *Queue) statusLocked() SyncStatus {
	st := SyncStatus{State: ConnOffline, LastSync: q.lastSync}

	switch {
	case q.syncing:
		st.State = ConnSyncing
	case q.online:
		st.State = ConnOnline
	}

	for _, item := range q.items {
		if item.Status == StatusFailed {
			st.Failed++
		} else {
			st.Pending++
		}
	}

	return st
}

// LastSync is the time of the most recent confirmed delivery.
func (q *Queue) LastSync() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.lastSync
}

// Online reports the last known reachability of the backend.
func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.online
}

// SetConnectivity records the result of a reachability probe and returns the
// previous value.
func (q *Queue) SetConnectivity(online bool) bool {
	q.mu.Lock()
	prev := q.online
	q.online = online
	q.mu.Unlock()

	if prev != online {
		q.publishStatus()
	}

	return prev
}

func (q *Queue) setOnline(online bool) {
	q.SetConnectivity(online)
}

func (q *Queue) setSyncing(v bool) {
	q.mu.Lock()
	q.syncing = v
	q.mu.Unlock()

	q.publishStatus()
}

// SubscribeStatus registers fn for sync status changes and returns a function
// that removes it. fn runs synchronously on the goroutine that caused the change.
func (q *Queue) SubscribeStatus(fn func(SyncStatus)) func() {
	q.hooksMu.Lock()
	id := q.nextSub
	q.nextSub++
	q.statusSub[id] = fn
	q.hooksMu.Unlock()

	return func() {
		q.hooksMu.Lock()
		delete(q.statusSub, id)
		q.hooksMu.Unlock()
	}
}

func (q *Queue) publishStatus() {
	q.hooksMu.RLock()
	if len(q.statusSub) == 0 {
		q.hooksMu.RUnlock()
		return
	}

	subs := make([]func(SyncStatus), 0, len(q.statusSub))
	for _, fn := range q.statusSub {
		subs = append(subs, fn)
	}
	q.hooksMu.RUnlock()

	st := q.Status()
	for _, fn := range subs {
		fn(st)
	}
}
