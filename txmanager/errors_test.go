package txmanager

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"msgtx/tranid"
)

func TestErrorKinds(t *testing.T) {
	id := tranid.Generate()
	cause := errors.New("disk on fire")
	err := newError(KindRollback, "prepare", id, cause, "transaction rolled back")

	assert.ErrorIs(t, err, ErrRollback)
	assert.NotErrorIs(t, err, ErrSevere)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsRollback(err))
	assert.Equal(t, KindRollback, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Contains(t, err.Error(), id.String())
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestSevereSurvivesWrapping(t *testing.T) {
	assert.Nil(t, Severe(nil))

	pmErr := Severe(errors.New("log device gone"))
	wrapped := newError(KindTransaction, "commit", tranid.PersistentTranID{}, fmt.Errorf("commitInternal: %w", pmErr), "")

	assert.True(t, IsSevere(wrapped))
	assert.Equal(t, KindTransaction, KindOf(wrapped))
	assert.False(t, IsSevere(errors.New("plain")))
}

func TestSentinelsDoNotMatchEachOther(t *testing.T) {
	assert.NotErrorIs(t, ErrProtocol, ErrIllegalState)
	assert.ErrorIs(t, &Error{Kind: KindXidUnknown, Op: "commit"}, ErrXidUnknown)
	assert.Equal(t, Kind(0), KindOf(errors.New("plain")))
}
