package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel_TableName(t *testing.T) {
	c := Channel{}
	assert.Equal(t, "channels", c.TableName())
}

func TestChannel_Validate(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		wantErr error
	}{
		{
			name:    "valid channel",
			channel: Channel{Name: "Retro Toons", Slug: "retro-toons", SegmentDuration: 6},
			wantErr: nil,
		},
		{
			name:    "missing name",
			channel: Channel{Slug: "retro-toons", SegmentDuration: 6},
			wantErr: ErrNameRequired,
		},
		{
			name:    "missing slug",
			channel: Channel{Name: "Retro Toons", SegmentDuration: 6},
			wantErr: ErrSlugRequired,
		},
		{
			name:    "invalid slug characters",
			channel: Channel{Name: "Retro Toons", Slug: "Invalid Slug!", SegmentDuration: 6},
			wantErr: ErrInvalidSlug,
		},
		{
			name:    "uppercase slug",
			channel: Channel{Name: "Retro Toons", Slug: "Retro", SegmentDuration: 6},
			wantErr: ErrInvalidSlug,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.channel.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChannel_Validate_SegmentDuration(t *testing.T) {
	c := Channel{Name: "c", Slug: "c", SegmentDuration: 0}
	err := c.Validate()
	var vErr ErrValidation
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "segment_duration", vErr.Field)

	c.SegmentDuration = 31
	require.Error(t, c.Validate())

	c.SegmentDuration = 30
	require.NoError(t, c.Validate())
}

func TestChannel_StateMachine_LegalEdges(t *testing.T) {
	tests := []struct {
		from ChannelState
		to   ChannelState
	}{
		{ChannelStateIdle, ChannelStateStarting},
		{ChannelStateStarting, ChannelStateStreaming},
		{ChannelStateStarting, ChannelStateError},
		{ChannelStateStarting, ChannelStateIdle},
		{ChannelStateStreaming, ChannelStateStopping},
		{ChannelStateStreaming, ChannelStateError},
		{ChannelStateStopping, ChannelStateIdle},
		{ChannelStateStopping, ChannelStateError},
		{ChannelStateError, ChannelStateIdle},
		{ChannelStateError, ChannelStateStarting},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			c := Channel{State: tt.from}
			require.True(t, c.CanTransitionTo(tt.to))
			require.NoError(t, c.TransitionTo(tt.to))
			assert.Equal(t, tt.to, c.State)
		})
	}
}

func TestChannel_StateMachine_IllegalEdges(t *testing.T) {
	tests := []struct {
		from ChannelState
		to   ChannelState
	}{
		{ChannelStateIdle, ChannelStateStreaming},
		{ChannelStateIdle, ChannelStateStopping},
		{ChannelStateIdle, ChannelStateIdle},
		{ChannelStateStreaming, ChannelStateStarting},
		{ChannelStateStreaming, ChannelStateIdle},
		{ChannelStateStopping, ChannelStateStreaming},
		{ChannelStateStopping, ChannelStateStarting},
		{ChannelStateError, ChannelStateStreaming},
		{ChannelStateError, ChannelStateStopping},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			c := Channel{State: tt.from}
			err := c.TransitionTo(tt.to)
			assert.ErrorIs(t, err, ErrInvalidStateTransition)
			assert.Equal(t, tt.from, c.State, "illegal edge must not mutate state")
		})
	}
}

func TestChannel_TransitionToStreaming_SetsStartedAt(t *testing.T) {
	c := Channel{State: ChannelStateStarting}
	require.Nil(t, c.StartedAt)
	require.NoError(t, c.TransitionTo(ChannelStateStreaming))
	require.NotNil(t, c.StartedAt)
}

func TestChannel_SetError(t *testing.T) {
	c := Channel{State: ChannelStateStreaming}
	c.SetError("encoder exploded")
	assert.Equal(t, ChannelStateError, c.State)
	assert.Equal(t, "encoder exploded", c.LastError)

	// From idle there is no edge to error; message is still recorded.
	c = Channel{State: ChannelStateIdle}
	c.SetError("boom")
	assert.Equal(t, ChannelStateIdle, c.State)
	assert.Equal(t, "boom", c.LastError)
}

func TestChannel_ViewerCount_ClampedAtZero(t *testing.T) {
	c := Channel{}
	c.IncrementViewerCount()
	c.IncrementViewerCount()
	assert.Equal(t, 2, c.ViewerCount)

	for i := 0; i < 10; i++ {
		c.DecrementViewerCount()
	}
	assert.Equal(t, 0, c.ViewerCount)
}

func TestChannel_BumpersEnabled_DefaultsTrue(t *testing.T) {
	c := Channel{}
	assert.True(t, c.BumpersEnabled())

	c.IncludeBumpers = BoolPtr(false)
	assert.False(t, c.BumpersEnabled())
}

func TestChannel_JSONRoundTrip(t *testing.T) {
	orig := Channel{
		BaseModel:          BaseModel{ID: NewULID()},
		Name:               "Night Owl",
		Slug:               "night-owl",
		VideoBitrate:       4500,
		AudioBitrate:       192,
		Resolution:         "1280x720",
		FPS:                30,
		SegmentDuration:    6,
		UseDynamicPlaylist: true,
		IncludeBumpers:     BoolPtr(true),
		CurrentIndex:       3,
		ViewerCount:        2,
		State:              ChannelStateStreaming,
		LastError:          "",
	}

	data, err := json.Marshal(&orig)
	require.NoError(t, err)

	var got Channel
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, orig.ID, got.ID)
	assert.Equal(t, orig.Name, got.Name)
	assert.Equal(t, orig.Slug, got.Slug)
	assert.Equal(t, orig.State, got.State)
	assert.Equal(t, orig.CurrentIndex, got.CurrentIndex)
	assert.Equal(t, orig.ViewerCount, got.ViewerCount)
	assert.Equal(t, orig.UseDynamicPlaylist, got.UseDynamicPlaylist)
	assert.Equal(t, orig.Resolution, got.Resolution)
}
