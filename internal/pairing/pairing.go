// Package pairing persists allowed channel peers, pairing-code
// requests, and multi-dimension route bindings — the allowlist and
// agent-routing layer that sits alongside C11's in-memory conversation
// tracking.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agentcore/nexuscore/internal/store"
	"github.com/agentcore/nexuscore/pkg/models"
)

const (
	tablePeers          = "pairing_allowed_peers"
	tableRequests       = "pairing_requests"
	tableRequestsByPeer = "pairing_requests_by_peer"
	tableBindings       = "pairing_route_bindings"
	tableBindingsByKey  = "pairing_route_bindings_by_key"
)

// ErrNotFound is returned when a lookup finds nothing for the given key.
var ErrNotFound = errors.New("pairing: not found")

// Store is the persisted peer/pairing/routing layer, backed by Store.
type Store struct {
	st *store.Store
}

// New builds a Store over st.
func New(st *store.Store) *Store {
	return &Store{st: st}
}

func (s *Store) peers() *store.Table[models.AllowedPeer] {
	return store.NewTable[models.AllowedPeer](s.st, tablePeers)
}

func (s *Store) requests() *store.Table[models.PairingRequest] {
	return store.NewTable[models.PairingRequest](s.st, tableRequests)
}

func (s *Store) requestsByPeer() *store.Table[string] {
	return store.NewTable[string](s.st, tableRequestsByPeer)
}

func (s *Store) bindings() *store.Table[models.RouteBinding] {
	return store.NewTable[models.RouteBinding](s.st, tableBindings)
}

func (s *Store) bindingsByKey() *store.Table[string] {
	return store.NewTable[string](s.st, tableBindingsByKey)
}

// RouteKey formats the index key a route binding resolves by, e.g.
// RouteKey(models.RouteBindingPeer, "12345") == "peer:12345".
func RouteKey(bindingType models.RouteBindingType, targetID string) string {
	return string(bindingType) + ":" + targetID
}

// --- Allowed peers ---

// AddPeer adds or replaces an allowed peer.
func (s *Store) AddPeer(ctx context.Context, peer models.AllowedPeer) error {
	if err := s.peers().Put(ctx, peer.PeerID, peer); err != nil {
		return fmt.Errorf("pairing: add peer %s: %w", peer.PeerID, err)
	}
	return nil
}

// RemovePeer removes peerID, reporting whether it was present.
func (s *Store) RemovePeer(ctx context.Context, peerID string) (bool, error) {
	if _, err := s.peers().Get(ctx, peerID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pairing: remove peer %s: %w", peerID, err)
	}
	if err := s.peers().Delete(ctx, peerID); err != nil {
		return false, fmt.Errorf("pairing: remove peer %s: %w", peerID, err)
	}
	return true, nil
}

// IsPeerAllowed reports whether peerID has an allowed-peer entry.
func (s *Store) IsPeerAllowed(ctx context.Context, peerID string) (bool, error) {
	_, err := s.peers().Get(ctx, peerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pairing: check peer %s: %w", peerID, err)
	}
	return true, nil
}

// GetPeer returns the allowed-peer record for peerID.
func (s *Store) GetPeer(ctx context.Context, peerID string) (models.AllowedPeer, error) {
	peer, err := s.peers().Get(ctx, peerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.AllowedPeer{}, ErrNotFound
		}
		return models.AllowedPeer{}, fmt.Errorf("pairing: get peer %s: %w", peerID, err)
	}
	return peer, nil
}

// ListPeers returns every allowed peer, in key order.
func (s *Store) ListPeers(ctx context.Context) ([]models.AllowedPeer, error) {
	entries, err := s.peers().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("pairing: list peers: %w", err)
	}
	out := make([]models.AllowedPeer, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}

// --- Pairing requests ---

// CreatePairingRequest stores req and indexes it by peer id, so a
// pending request can be looked up either by its code or by the peer
// that initiated it.
func (s *Store) CreatePairingRequest(ctx context.Context, req models.PairingRequest) error {
	if err := s.requests().Put(ctx, req.Code, req); err != nil {
		return fmt.Errorf("pairing: create request %s: %w", req.Code, err)
	}
	if err := s.requestsByPeer().Put(ctx, req.PeerID, req.Code); err != nil {
		return fmt.Errorf("pairing: index request %s: %w", req.Code, err)
	}
	return nil
}

// GetPairingRequest returns the pending request for code.
func (s *Store) GetPairingRequest(ctx context.Context, code string) (models.PairingRequest, error) {
	req, err := s.requests().Get(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PairingRequest{}, ErrNotFound
		}
		return models.PairingRequest{}, fmt.Errorf("pairing: get request %s: %w", code, err)
	}
	return req, nil
}

// GetPairingRequestByPeer returns the pending request peerID last
// created, via the peer index.
func (s *Store) GetPairingRequestByPeer(ctx context.Context, peerID string) (models.PairingRequest, error) {
	code, err := s.requestsByPeer().Get(ctx, peerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PairingRequest{}, ErrNotFound
		}
		return models.PairingRequest{}, fmt.Errorf("pairing: get request by peer %s: %w", peerID, err)
	}
	return s.GetPairingRequest(ctx, code)
}

// DeletePairingRequest removes code and its peer index entry. Deleting
// an absent code is not an error.
func (s *Store) DeletePairingRequest(ctx context.Context, code string) error {
	req, err := s.requests().Get(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("pairing: delete request %s: %w", code, err)
	}
	if err := s.requests().Delete(ctx, code); err != nil {
		return fmt.Errorf("pairing: delete request %s: %w", code, err)
	}
	if err := s.requestsByPeer().Delete(ctx, req.PeerID); err != nil {
		return fmt.Errorf("pairing: delete request index %s: %w", code, err)
	}
	return nil
}

// ListPairingRequests returns every pending request, in code order.
func (s *Store) ListPairingRequests(ctx context.Context) ([]models.PairingRequest, error) {
	entries, err := s.requests().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("pairing: list requests: %w", err)
	}
	out := make([]models.PairingRequest, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}

// CleanupExpiredRequests deletes every pairing request whose ExpiresAt
// is at or before now, returning the number removed.
func (s *Store) CleanupExpiredRequests(ctx context.Context, now time.Time) (int, error) {
	entries, err := s.requests().ScanPrefix(ctx, "", 0)
	if err != nil {
		return 0, fmt.Errorf("pairing: cleanup requests: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if !e.Value.ExpiresAt.After(now) {
			if err := s.DeletePairingRequest(ctx, e.Key); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// --- Route bindings ---

// AddRouteBinding stores binding and indexes it by its
// (binding type, target) key so ResolveRouteByKey can find it.
func (s *Store) AddRouteBinding(ctx context.Context, binding models.RouteBinding) error {
	if err := s.bindings().Put(ctx, binding.ID, binding); err != nil {
		return fmt.Errorf("pairing: add route binding %s: %w", binding.ID, err)
	}
	key := RouteKey(binding.BindingType, binding.TargetID)
	if err := s.bindingsByKey().Put(ctx, key, binding.ID); err != nil {
		return fmt.Errorf("pairing: index route binding %s: %w", binding.ID, err)
	}
	return nil
}

// RemoveRouteBinding removes id and its index entry, reporting whether
// it was present.
func (s *Store) RemoveRouteBinding(ctx context.Context, id string) (bool, error) {
	binding, err := s.bindings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pairing: remove route binding %s: %w", id, err)
	}
	if err := s.bindings().Delete(ctx, id); err != nil {
		return false, fmt.Errorf("pairing: remove route binding %s: %w", id, err)
	}
	key := RouteKey(binding.BindingType, binding.TargetID)
	if err := s.bindingsByKey().Delete(ctx, key); err != nil {
		return false, fmt.Errorf("pairing: remove route binding index %s: %w", id, err)
	}
	return true, nil
}

// GetRouteBinding returns the binding stored under id.
func (s *Store) GetRouteBinding(ctx context.Context, id string) (models.RouteBinding, error) {
	binding, err := s.bindings().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.RouteBinding{}, ErrNotFound
		}
		return models.RouteBinding{}, fmt.Errorf("pairing: get route binding %s: %w", id, err)
	}
	return binding, nil
}

// ResolveRouteByKey looks up the binding registered for key (see
// RouteKey), e.g. "peer:12345", "group:group-1", or "default:*".
func (s *Store) ResolveRouteByKey(ctx context.Context, key string) (models.RouteBinding, error) {
	id, err := s.bindingsByKey().Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.RouteBinding{}, ErrNotFound
		}
		return models.RouteBinding{}, fmt.Errorf("pairing: resolve route %s: %w", key, err)
	}
	return s.GetRouteBinding(ctx, id)
}

// ListRouteBindings returns every route binding, in id order.
func (s *Store) ListRouteBindings(ctx context.Context) ([]models.RouteBinding, error) {
	entries, err := s.bindings().ScanPrefix(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("pairing: list route bindings: %w", err)
	}
	out := make([]models.RouteBinding, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Value)
	}
	return out, nil
}
