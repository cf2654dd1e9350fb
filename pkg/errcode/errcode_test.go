package errcode

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	wrapped := ErrTransientIO.Wrap(errors.New("connection refused"))
	assert.True(t, Is(wrapped, ErrTransientIO))
	assert.False(t, Is(wrapped, ErrConflict))

	outer := fmt.Errorf("send: %w", ErrBlocked)
	assert.True(t, Is(outer, ErrBlocked))
	assert.False(t, Is(errors.New("plain"), ErrBlocked))
}

func TestClassOf(t *testing.T) {
	cases := []struct {
		err  error
		want Class
	}{
		{ErrUnauthorized, ClassUnauthorized},
		{ErrTokenMissing, ClassUnauthorized},
		{ErrNotParticipant, ClassForbidden},
		{ErrBlocked, ClassForbidden},
		{ErrMessageNotFound, ClassNotFound},
		{ErrEditWindowExpired, ClassConflict},
		{ErrAlreadyParticipant, ClassConflict},
		{ErrTransientIO.Wrap(errors.New("timeout")), ClassTransientIO},
		{ErrPublishTimeout, ClassPublishTimeout},
		{errors.New("plain"), ClassNone},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ClassOf(c.err), c.err.Error())
	}
}
