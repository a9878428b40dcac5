package autosave

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyScheme(t *testing.T) {
	slot := Slot{UserID: 7, ProblemID: 42, Language: "Python3"}

	assert.Equal(t, "oj:code:data:user:7:problem:42:lang:Python3", DataKey("oj:code", slot))
	assert.Equal(t, "oj:code:debounce:user:7:problem:42:lang:Python3", DebounceKey("oj:code", slot))
}

func TestParseDebounceKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want Slot
		ok   bool
	}{
		{
			name: "valid",
			key:  "oj:code:debounce:user:7:problem:42:lang:Python3",
			want: Slot{UserID: 7, ProblemID: 42, Language: "Python3"},
			ok:   true,
		},
		{
			name: "language with plus signs",
			key:  "oj:code:debounce:user:1:problem:2:lang:C++",
			want: Slot{UserID: 1, ProblemID: 2, Language: "C++"},
			ok:   true,
		},
		{
			name: "data key is not a debounce key",
			key:  "oj:code:data:user:7:problem:42:lang:Python3",
			ok:   false,
		},
		{
			name: "foreign prefix",
			key:  "other:debounce:user:7:problem:42:lang:Python3",
			ok:   false,
		},
		{
			name: "non-numeric user",
			key:  "oj:code:debounce:user:abc:problem:42:lang:Python3",
			ok:   false,
		},
		{
			name: "unrelated expired key",
			key:  "some:random:key",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseDebounceKey("oj:code", tt.key)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestKeyRoundTrip(t *testing.T) {
	slot := Slot{UserID: 123, ProblemID: 456, Language: "Golang"}
	key := DebounceKey("prefix", slot)

	got, ok := ParseDebounceKey("prefix", key)
	assert.True(t, ok)
	assert.Equal(t, slot, got)
}
