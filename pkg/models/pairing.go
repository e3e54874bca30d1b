package models

import "time"

// AllowedPeer is a channel peer (e.g. a Telegram user id) cleared to
// address agents directly, independent of any channel-level allowlist.
type AllowedPeer struct {
	PeerID     string    `json:"peer_id"`
	PeerName   string    `json:"peer_name,omitempty"`
	ApprovedAt time.Time `json:"approved_at"`
	ApprovedBy string    `json:"approved_by,omitempty"`
}

// PairingRequest is an outstanding pairing code waiting to be approved
// or to expire, binding one peer to the chat it paired from.
type PairingRequest struct {
	Code      string    `json:"code"`
	PeerID    string    `json:"peer_id"`
	PeerName  string    `json:"peer_name,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RouteBindingType classifies what a RouteBinding's TargetID names.
type RouteBindingType string

const (
	RouteBindingPeer    RouteBindingType = "peer"
	RouteBindingGroup   RouteBindingType = "group"
	RouteBindingDefault RouteBindingType = "default"
)

// RouteBinding pins inbound messages matching BindingType+TargetID to a
// specific agent. Default bindings use TargetID "*" and the lowest
// resolution priority, so a peer- or group-specific binding always
// wins when both exist.
type RouteBinding struct {
	ID          string           `json:"id"`
	BindingType RouteBindingType `json:"binding_type"`
	TargetID    string           `json:"target_id"`
	AgentID     string           `json:"agent_id"`
	CreatedAt   time.Time        `json:"created_at"`
	Priority    int              `json:"priority"`
}
