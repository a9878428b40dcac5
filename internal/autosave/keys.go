// Package autosave implements the debounced code-autosave pipeline: the
// Redis write buffer, the key-expiry listener, and the key scheme shared
// between them.
//
// Each (user, problem, language) slot uses two keys: a data key holding the
// latest code with no TTL, and a debounce sentinel whose expiry triggers
// the flush. The data key is always written first so a crash between the
// two writes leaves no pending flush.
package autosave

import (
	"fmt"
	"regexp"
	"strconv"
)

// Slot identifies one autosave buffer: the code a user is editing for one
// problem in one language.
type Slot struct {
	UserID    int
	ProblemID int
	Language  string
}

// DataKey is the Redis key holding the latest code for the slot.
func DataKey(prefix string, s Slot) string {
	return fmt.Sprintf("%s:data:user:%d:problem:%d:lang:%s", prefix, s.UserID, s.ProblemID, s.Language)
}

// DebounceKey is the TTL sentinel whose expiry triggers the flush.
func DebounceKey(prefix string, s Slot) string {
	return fmt.Sprintf("%s:debounce:user:%d:problem:%d:lang:%s", prefix, s.UserID, s.ProblemID, s.Language)
}

// Language names may contain '+' (C++) and '#', so anything up to the next
// colon is accepted.
var debouncePattern = regexp.MustCompile(`^(.+):debounce:user:(\d+):problem:(\d+):lang:([^:]+)$`)

// ParseDebounceKey extracts the slot from an expired debounce key. Returns
// false for keys outside the autosave scheme — the expiry channel carries
// every expired key in the database, not just ours.
func ParseDebounceKey(prefix, key string) (Slot, bool) {
	m := debouncePattern.FindStringSubmatch(key)
	if m == nil || m[1] != prefix {
		return Slot{}, false
	}
	uid, err := strconv.Atoi(m[2])
	if err != nil {
		return Slot{}, false
	}
	pid, err := strconv.Atoi(m[3])
	if err != nil {
		return Slot{}, false
	}
	return Slot{UserID: uid, ProblemID: pid, Language: m[4]}, true
}
