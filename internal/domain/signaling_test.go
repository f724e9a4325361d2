package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelNameRoundTrip(t *testing.T) {
	chatID := uuid.New()

	for _, ct := range []CallType{CallTypeAudio, CallTypeVideo, CallTypeGroupAudio, CallTypeGroupVideo} {
		channel := ChannelName(ct, chatID)

		kind, id, parsed, err := ParseChannel(channel)
		require.NoError(t, err, "channel %q", channel)
		assert.Equal(t, ChannelKindCall, kind)
		assert.Equal(t, chatID, id)
		assert.Equal(t, ct, parsed)
	}
}

func TestParsePersonalChannel(t *testing.T) {
	userID := uuid.New()

	kind, id, _, err := ParseChannel(PersonalChannel(userID))
	require.NoError(t, err)
	assert.Equal(t, ChannelKindPersonal, kind)
	assert.Equal(t, userID, id)
}

func TestParseChannelRejectsGarbage(t *testing.T) {
	for _, channel := range []string{
		"",
		"user:",
		"user:not-a-uuid",
		"video-call-",
		"video-call-banana",
		"telepathy-call-" + uuid.NewString(),
	} {
		_, _, _, err := ParseChannel(channel)
		assert.Error(t, err, "channel %q", channel)
	}
}

func TestAddressedTo(t *testing.T) {
	sender := uuid.New()
	target := uuid.New()
	bystander := uuid.New()

	broadcast := &SignalingEnvelope{From: sender}
	assert.False(t, broadcast.AddressedTo(sender), "sender must not apply its own broadcast")
	assert.True(t, broadcast.AddressedTo(target))
	assert.True(t, broadcast.AddressedTo(bystander))

	targeted := &SignalingEnvelope{From: sender, To: &target}
	assert.True(t, targeted.AddressedTo(target))
	assert.False(t, targeted.AddressedTo(bystander))
	assert.False(t, targeted.AddressedTo(sender))
}

func TestCallTypeValidation(t *testing.T) {
	assert.True(t, CallTypeAudio.Valid())
	assert.True(t, CallTypeGroupVideo.Valid())
	assert.False(t, CallType("teleport").Valid())

	assert.False(t, CallTypeVideo.IsGroup())
	assert.True(t, CallTypeGroupAudio.IsGroup())
}
