package fault

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"tagged", New(Auth, "op", "bad token"), Auth},
		{"wrapped by fmt", fmt.Errorf("outer: %w", New(NoMatchFound, "op", "missing")), NoMatchFound},
		{"plain error", errors.New("boom"), Internal},
		{"deadline", context.DeadlineExceeded, Communication},
		{"wrap forces communication on deadline", Wrap(MalformedInput, "op", context.DeadlineExceeded, "scan"), Communication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorString(t *testing.T) {
	err := Wrap(Communication, "profiles.Get", errors.New("connection refused"), "profile source unreachable")
	assert.Equal(t, "profiles.Get: profile source unreachable: connection refused", err.Error())
	assert.Equal(t, "profile source unreachable", Message(err))
	assert.True(t, Is(err, Communication))
	assert.False(t, Is(nil, Communication))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(Auth, "op", nil, "ignored"))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "auth", Auth.String())
	assert.Equal(t, "no_match_found", NoMatchFound.String())
	assert.Equal(t, "internal", Kind(99).String())
}
