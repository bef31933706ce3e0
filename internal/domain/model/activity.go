package model

import (
	"sort"
	"time"
)

// ActivityEntry is one resolved entity in the activity snapshot.
// An empty LastActivity means no activity was ever observed.
type ActivityEntry struct {
	Key          EntityKey `json:"key"`
	LastActivity string    `json:"lastActivity"`
}

// ActivitySnapshot is the persisted aggregate of an entity scan. It replaces the previous snapshot.
type ActivitySnapshot struct {
	FinishedAt time.Time       `json:"finishedAt"`
	Entries    []ActivityEntry `json:"entries"`
	Failed     int             `json:"failed,omitempty"`
}

// SortEntries orders entries by key so the persisted form is reproducible.
func (s *ActivitySnapshot) SortEntries() {
	sort.SliceStable(s.Entries, func(i, j int) bool {
		return s.Entries[i].Key.Less(s.Entries[j].Key)
	})
}

// Lookup returns the entry for key, if present.
func (s *ActivitySnapshot) Lookup(key EntityKey) (ActivityEntry, bool) {
	if s == nil {
		return ActivityEntry{}, false
	}
	for _, e := range s.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return ActivityEntry{}, false
}

// ActivityTimeLayout is the timestamp layout used for lastActivity values.
const ActivityTimeLayout = "2006-01-02 15:04:05"
