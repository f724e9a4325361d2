package call

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wavelink-backend/internal/domain"
)

func TestConstraintsForCallType(t *testing.T) {
	assert.Equal(t, Constraints{Audio: true}, ConstraintsFor(domain.CallTypeAudio))
	assert.Equal(t, Constraints{Audio: true}, ConstraintsFor(domain.CallTypeGroupAudio))
	assert.Equal(t, Constraints{Audio: true, Video: true}, ConstraintsFor(domain.CallTypeVideo))
	assert.Equal(t, Constraints{Audio: true, Video: true}, ConstraintsFor(domain.CallTypeGroupVideo))
}

func TestAcquireFallsBackToAudioOnly(t *testing.T) {
	provider := &countingProvider{
		failWith: func(c Constraints) bool { return c.Video },
	}

	stream, got, err := AcquireWithFallback(context.Background(), provider, Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	defer stream.Close()

	assert.Equal(t, Constraints{Audio: true}, got, "video failure degrades to audio-only")
	assert.False(t, stream.HasVideo())
	assert.True(t, stream.AudioEnabled())
}

func TestAcquireFailsWhenNothingLeft(t *testing.T) {
	provider := &countingProvider{
		failWith: func(c Constraints) bool { return true },
	}

	_, _, err := AcquireWithFallback(context.Background(), provider, Constraints{Audio: true, Video: true})
	require.Error(t, err)
}

func TestStreamMuteFlipsEnabledFlag(t *testing.T) {
	stream, err := TrackProvider{}.Acquire(context.Background(), Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	defer stream.Close()

	assert.True(t, stream.AudioEnabled())
	assert.True(t, stream.VideoEnabled())

	stream.SetAudioEnabled(false)
	assert.False(t, stream.AudioEnabled())
	assert.True(t, stream.VideoEnabled(), "muting audio leaves video alone")

	stream.SetAudioEnabled(true)
	assert.True(t, stream.AudioEnabled())
}

func TestStreamReleaseRunsOnce(t *testing.T) {
	provider := &countingProvider{}
	stream, err := provider.Acquire(context.Background(), Constraints{Audio: true})
	require.NoError(t, err)

	stream.Close()
	stream.Close()

	_, released := provider.counts()
	assert.Equal(t, 1, released)
}
