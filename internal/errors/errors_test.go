package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewf(t *testing.T) {
	err := Newf(CodeConfigInvalid, "cut %d has no field", 2)
	assert.Equal(t, "cut 2 has no field", err.Error())
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.NotErrorIs(t, err, ErrInvalidSchema)
}

func TestWrapKeepsInnermostCode(t *testing.T) {
	err := Wrapf(TimeAlignment("3 of 3 outside"), "dataset %s", "grb")
	assert.Equal(t, CodeTimeAlignment, GetCode(err))
	assert.Equal(t, "dataset grb: 3 of 3 outside", err.Error())

	plain := Wrap(fmt.Errorf("disk full"), "write")
	assert.Equal(t, CodeInternalError, GetCode(plain))
}

func TestIsAppError(t *testing.T) {
	assert.True(t, IsAppError(InvalidSchema("bad row")))
	assert.True(t, IsAppError(fmt.Errorf("outer: %w", ConfigInvalid("x"))))
	assert.False(t, IsAppError(stderrors.New("plain")))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestIncompleteNamesStage(t *testing.T) {
	err := Incomplete("dataset", context.DeadlineExceeded)
	assert.Equal(t, "dataset interrupted: context deadline exceeded", err.Error())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
