package services

import (
	"context"
	"testing"

	"github.com/AnshRaj112/palchat-backend/internal/models"
	"github.com/AnshRaj112/palchat-backend/pkg/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two people meet, become friends and talk, each on their own device.
func TestScenarioAliceAndBob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	principals := NewMemoryPrincipals()

	alicePrincipal, err := principals.GetOrCreateAnonymousPrincipal(ctx, "alice-phone")
	require.NoError(t, err)
	bobPrincipal, err := principals.GetOrCreateAnonymousPrincipal(ctx, "bob-phone")
	require.NoError(t, err)

	alice, err := e.directory.Register(ctx, "alice", "pw-alice")
	require.NoError(t, err)
	_, err = e.sessions.Start(ctx, alicePrincipal.ID, alice)
	require.NoError(t, err)

	bob, err := e.directory.Register(ctx, "bob", "pw-bob")
	require.NoError(t, err)
	_, err = e.sessions.Start(ctx, bobPrincipal.ID, bob)
	require.NoError(t, err)

	found, err := e.directory.Search(ctx, "alice", bob.ID)
	require.NoError(t, err)
	require.Len(t, found, 1)

	req, err := e.requests.Send(ctx, bob, found[0].ID)
	require.NoError(t, err)

	incoming, err := e.requests.ListIncoming(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	assert.Equal(t, "bob", incoming[0].FromName)

	_, err = e.requests.Respond(ctx, req.ID, alice.ID, models.ActionAccept)
	require.NoError(t, err)

	chats, err := e.friendships.ListForUser(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	channelID := chats[0].ID
	assert.Equal(t, "alice", chats[0].Peer.Username)
	assert.Equal(t, models.AcceptedPreview, chats[0].LastMessage)

	rec := newRecorder[[]models.Message]()
	sub, err := e.channel.SubscribeAs(ctx, channelID, alice.ID, rec.fn)
	require.NoError(t, err)
	defer sub.Close()

	_, err = e.channel.Append(ctx, channelID, bob.ID, "hi alice")
	require.NoError(t, err)
	_, err = e.channel.Append(ctx, channelID, alice.ID, "hey bob")
	require.NoError(t, err)

	got := rec.waitFor(t, func(m []models.Message) bool { return len(m) == 2 })
	assert.Equal(t, []string{"hi alice", "hey bob"}, texts(got))
	assert.Equal(t, bob.ID, got[0].SenderID)

	chats, err = e.friendships.ListForUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "hey bob", chats[0].LastMessage)

	// Bob logs out and comes back with a wrong password first.
	require.NoError(t, e.sessions.End(ctx, bobPrincipal.ID))
	_, err = e.sessions.Resume(ctx, bobPrincipal.ID)
	assert.ErrorIs(t, err, apperr.ErrNoIdentity)

	_, err = e.directory.Login(ctx, "bob", "pw-alice")
	assert.ErrorIs(t, err, apperr.ErrBadPassword)
	_, ok := e.sessions.Current(bobPrincipal.ID)
	assert.False(t, ok)

	bob, err = e.directory.Login(ctx, "bob", "pw-bob")
	require.NoError(t, err)
	sess, err := e.sessions.Start(ctx, bobPrincipal.ID, bob)
	require.NoError(t, err)

	msgs, err := e.channel.Recent(ctx, channelID, sess.UserID(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi alice", "hey bob"}, texts(msgs))

	// Alice's session was never touched.
	aliceSess, ok := e.sessions.Current(alicePrincipal.ID)
	require.True(t, ok)
	assert.Equal(t, alice.ID, aliceSess.UserID())
}
