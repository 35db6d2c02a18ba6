package rrc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/cellorg/internal/broker"
	"github.com/tenzoki/cellorg/internal/cerr"
	"github.com/tenzoki/cellorg/internal/rrc"
)

func newDevBroker(t *testing.T) *broker.DevBroker {
	t.Helper()
	b := broker.NewDevBroker()
	require.NoError(t, b.Connect(context.Background()))
	return b
}

func TestSessionManagerAllocatesDistinctReplyTopics(t *testing.T) {
	m := rrc.NewSessionManager(newDevBroker(t), "reply/%s", 0)

	id1, err := m.CreateSession()
	require.NoError(t, err)
	id2, err := m.CreateSession()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = m.Session(id1)
	require.NoError(t, err)
	_, err = m.Session(id2)
	require.NoError(t, err)
}

func TestSessionManagerEnforcesMaxSessions(t *testing.T) {
	m := rrc.NewSessionManager(newDevBroker(t), "reply/%s", 2)

	_, err := m.CreateSession()
	require.NoError(t, err)
	_, err = m.CreateSession()
	require.NoError(t, err)

	_, err = m.CreateSession()
	assert.ErrorIs(t, err, cerr.ErrSessionLimitReached)
}

func TestSessionLookupOfUnknownIDFails(t *testing.T) {
	m := rrc.NewSessionManager(newDevBroker(t), "reply/%s", 0)
	_, err := m.Session("nonexistent")
	assert.ErrorIs(t, err, cerr.ErrSessionNotFound)
}

func TestCloseSessionFreesItsSlot(t *testing.T) {
	m := rrc.NewSessionManager(newDevBroker(t), "reply/%s", 1)

	id, err := m.CreateSession()
	require.NoError(t, err)

	require.NoError(t, m.CloseSession(id))

	_, err = m.Session(id)
	assert.ErrorIs(t, err, cerr.ErrSessionNotFound)

	_, err = m.CreateSession()
	assert.NoError(t, err)
}

func TestCloseAllTearsDownEverySession(t *testing.T) {
	m := rrc.NewSessionManager(newDevBroker(t), "reply/%s", 0)

	id1, err := m.CreateSession()
	require.NoError(t, err)
	id2, err := m.CreateSession()
	require.NoError(t, err)

	m.CloseAll()

	_, err = m.Session(id1)
	assert.ErrorIs(t, err, cerr.ErrSessionNotFound)
	_, err = m.Session(id2)
	assert.ErrorIs(t, err, cerr.ErrSessionNotFound)
}
