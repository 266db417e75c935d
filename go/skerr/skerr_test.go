package skerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBase = errors.New("base")

func TestWrap_NilStaysNil(t *testing.T) {
	assert.NoError(t, Wrap(nil))
	assert.NoError(t, Wrapf(nil, "ignored %d", 1))
}

func TestWrapf_PrefixesMessageAndKeepsCause(t *testing.T) {
	err := Wrapf(Wrap(errBase), "loading %s", "x")
	require.Error(t, err)
	assert.Equal(t, "loading x: base", err.Error())
	assert.True(t, errors.Is(err, errBase))
	assert.Equal(t, errBase, Unwrap(err))
}

func TestWrap_DoesNotStackTwice(t *testing.T) {
	once := Wrap(errBase)
	assert.Equal(t, once, Wrap(once))
	assert.NotEmpty(t, StackTrace(once))
}

func TestFmt_HasStack(t *testing.T) {
	err := Fmt("bad revno %d", 0)
	assert.Equal(t, "bad revno 0", err.Error())
	assert.NotEmpty(t, StackTrace(err))
	assert.Empty(t, StackTrace(errBase))
}
