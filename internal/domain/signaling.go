package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CallType identifies the kind of call a signaling message belongs to.
type CallType string

const (
	CallTypeAudio      CallType = "audio"
	CallTypeVideo      CallType = "video"
	CallTypeGroupAudio CallType = "group-audio"
	CallTypeGroupVideo CallType = "group-video"
)

// Valid reports whether ct is one of the four recognized call types.
func (ct CallType) Valid() bool {
	switch ct {
	case CallTypeAudio, CallTypeVideo, CallTypeGroupAudio, CallTypeGroupVideo:
		return true
	}
	return false
}

// IsGroup reports whether the call type is a group (mesh) call.
func (ct CallType) IsGroup() bool {
	return ct == CallTypeGroupAudio || ct == CallTypeGroupVideo
}

// ChannelPrefix returns the broadcast channel prefix for the call type.
func (ct CallType) ChannelPrefix() string {
	switch ct {
	case CallTypeAudio:
		return "audio-call"
	case CallTypeVideo:
		return "video-call"
	case CallTypeGroupAudio:
		return "group-audio-call"
	case CallTypeGroupVideo:
		return "group-video-call"
	}
	return ""
}

// ChannelName derives the broadcast channel for a call type and chat/room ID.
// The name is deterministic so both sides of a call land on the same channel.
func ChannelName(ct CallType, chatID uuid.UUID) string {
	return fmt.Sprintf("%s-%s", ct.ChannelPrefix(), chatID)
}

// PersonalChannel returns the per-user notification channel name.
func PersonalChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// Channel kinds as returned by ParseChannel.
const (
	ChannelKindPersonal = "personal"
	ChannelKindCall     = "call"
)

// ParseChannel classifies a broadcast channel name and extracts the embedded
// ID: the user ID for personal channels, the chat/room ID for call channels.
func ParseChannel(channel string) (kind string, id uuid.UUID, ct CallType, err error) {
	if rest, ok := strings.CutPrefix(channel, "user:"); ok {
		id, err = uuid.Parse(rest)
		if err != nil {
			return "", uuid.Nil, "", fmt.Errorf("malformed personal channel %q", channel)
		}
		return ChannelKindPersonal, id, "", nil
	}

	for _, candidate := range []CallType{CallTypeAudio, CallTypeVideo, CallTypeGroupAudio, CallTypeGroupVideo} {
		prefix := candidate.ChannelPrefix() + "-"
		rest, ok := strings.CutPrefix(channel, prefix)
		if !ok {
			continue
		}
		id, err = uuid.Parse(rest)
		if err != nil {
			return "", uuid.Nil, "", fmt.Errorf("malformed call channel %q", channel)
		}
		return ChannelKindCall, id, candidate, nil
	}

	return "", uuid.Nil, "", fmt.Errorf("unknown channel %q", channel)
}

// SignalEvent is the fixed broadcast event name all signaling payloads ride on.
const SignalEvent = "signaling"

// Signal message types. The set is closed; the relay rejects anything else.
const (
	SignalTypeOffer      = "offer"
	SignalTypeAnswer     = "answer"
	SignalTypeICE        = "ice-candidate"
	SignalTypeUserJoined = "user-joined"
	SignalTypeUserLeft   = "user-left"
	SignalTypeEndCall    = "end-call"
)

// Notification event types delivered on personal channels.
const (
	NotifyIncomingCall      = "incoming-call"
	NotifyIncomingGroupCall = "incoming-group-call"
	NotifyCallDeclined      = "call-declined"
	NotifyCallCancelled     = "call-cancelled"
)

// SignalMessage is the typed payload carried inside a SignalingEnvelope.
// Exactly the fields relevant to Type are populated:
//
//	offer, answer   -> SDP
//	ice-candidate   -> Candidate, SDPMid, SDPMLineIndex
//	user-joined     -> DisplayName (optional)
//	user-left, end-call -> no extra fields
type SignalMessage struct {
	Type          string  `json:"type"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
	DisplayName   string  `json:"display_name,omitempty"`
}

// KnownSignalType reports whether t belongs to the closed signal type set.
func KnownSignalType(t string) bool {
	switch t {
	case SignalTypeOffer, SignalTypeAnswer, SignalTypeICE,
		SignalTypeUserJoined, SignalTypeUserLeft, SignalTypeEndCall:
		return true
	}
	return false
}

// SignalingEnvelope is the wire entity published on a broadcast channel.
// From is overwritten by the relay with the authenticated caller identity,
// so consumers may trust it only after delivery through the relay.
// A nil To means the message is addressed to every subscriber.
type SignalingEnvelope struct {
	From      uuid.UUID     `json:"from"`
	To        *uuid.UUID    `json:"to,omitempty"`
	Message   SignalMessage `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// AddressedTo reports whether the envelope should be applied by userID.
// Broadcast envelopes (nil To) apply to everyone but the sender.
func (e *SignalingEnvelope) AddressedTo(userID uuid.UUID) bool {
	if e.From == userID {
		return false
	}
	if e.To == nil {
		return true
	}
	return *e.To == userID
}

// CallNotification is the payload delivered on a personal channel to ring a
// callee or to propagate decline/cancel before any call session exists.
type CallNotification struct {
	Event      string    `json:"event"`
	CallID     uuid.UUID `json:"call_id"`
	ChatID     uuid.UUID `json:"chat_id"`
	CallerID   uuid.UUID `json:"caller_id"`
	CallerName string    `json:"caller_name,omitempty"`
	CallType   CallType  `json:"call_type"`
	Timestamp  time.Time `json:"timestamp"`
}
