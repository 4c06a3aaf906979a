package service

import (
	"sync"
	"time"

	"sitebuilder/internal/domain"
)

// editJournal records the instant of the last local write per
// (sectionKey, field) tuple. The reconciler consults it so a remote echo
// of a just-written value cannot clobber the local edit within the
// suppression window. Settings tuples use an empty section key.
type editJournal struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func newEditJournal(now func() time.Time) *editJournal {
	if now == nil {
		now = time.Now
	}
	return &editJournal{entries: make(map[string]time.Time), now: now}
}

func tupleKey(section domain.SectionKey, field string) string {
	return string(section) + "\x00" + field
}

// note records a local write to the tuple.
func (j *editJournal) note(section domain.SectionKey, field string) {
	j.mu.Lock()
	j.entries[tupleKey(section, field)] = j.now()
	j.mu.Unlock()
}

// recent reports whether the tuple was written locally within window.
func (j *editJournal) recent(section domain.SectionKey, field string, window time.Duration) bool {
	j.mu.Lock()
	t, ok := j.entries[tupleKey(section, field)]
	j.mu.Unlock()
	return ok && j.now().Sub(t) < window
}

// prune drops entries older than window to keep the journal bounded.
func (j *editJournal) prune(window time.Duration) {
	cutoff := j.now().Add(-window)
	j.mu.Lock()
	for k, t := range j.entries {
		if t.Before(cutoff) {
			delete(j.entries, k)
		}
	}
	j.mu.Unlock()
}
