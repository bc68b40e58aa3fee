package commandbus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func nopLogger() *zap.Logger { return zap.NewNop() }

func TestKindOf(t *testing.T) {
	storeErr := errors.New("store down")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), KindUnknown},
		{"not found sentinel", ErrAggregateNotFound, KindAggregateNotFound},
		{"not found typed and wrapped", fmt.Errorf("load: %w", &AggregateNotFoundError{AggregateID: "a"}), KindAggregateNotFound},
		{"business", NewBusinessError(errors.New("no funds")), KindBusiness},
		{"wrapped business", fmt.Errorf("handler: %w", NewBusinessError(errors.New("no funds"))), KindBusiness},
		{"state corrupted", &AggregateStateCorruptedError{Message: "retry"}, KindStateCorrupted},
		{"commit", &CommitError{Cause: storeErr}, KindCommit},
		{"blacklisted wins over its cause", &AggregateBlacklistedError{Cause: &CommitError{Cause: storeErr}}, KindBlacklisted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "aggregate a not found", (&AggregateNotFoundError{AggregateID: "a"}).Error())
	assert.Equal(t, "aggregate a: retry", (&AggregateStateCorruptedError{AggregateID: "a", Message: "retry"}).Error())
	assert.Equal(t, "blacklisted: boom",
		(&AggregateBlacklistedError{Message: "blacklisted", Cause: errors.New("boom")}).Error())
	assert.Nil(t, NewBusinessError(nil))
}

func TestRollbackPolicies(t *testing.T) {
	business := NewBusinessError(errors.New("rejected"))
	unexpected := errors.New("bug")

	assert.False(t, RollbackOnAnyError.RollBackOn(nil))
	assert.True(t, RollbackOnAnyError.RollBackOn(business))
	assert.True(t, RollbackOnAnyError.RollBackOn(unexpected))

	assert.False(t, RollbackOnUnexpected.RollBackOn(business))
	assert.True(t, RollbackOnUnexpected.RollBackOn(unexpected))
	assert.True(t, RollbackOnUnexpected.RollBackOn(ErrAggregateNotFound))

	onlyNotFound := RollbackOnKinds(KindAggregateNotFound)
	assert.True(t, onlyNotFound.RollBackOn(ErrAggregateNotFound))
	assert.False(t, onlyNotFound.RollBackOn(unexpected))
}

func TestPolicyByName(t *testing.T) {
	for _, name := range []string{"", "unexpected", "any"} {
		policy, err := PolicyByName(name)
		assert.NoError(t, err, name)
		assert.NotNil(t, policy, name)
	}

	_, err := PolicyByName("sometimes")
	assert.ErrorContains(t, err, "unknown rollback policy")
}
