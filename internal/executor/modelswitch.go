package executor

import "sync"

// ModelSwitch is a mutable holder for the active provider/model of one
// in-flight Run, set by the switch_model tool. Run re-reads it at the
// top of every loop iteration, so a switch mid-conversation changes
// which model answers the very next turn.
type ModelSwitch struct {
	mu           sync.Mutex
	set          bool
	provider     Provider
	providerName string
	model        string
}

// NewModelSwitch returns an unset switch: Run keeps using its
// originally passed provider/model until Set is first called.
func NewModelSwitch() *ModelSwitch {
	return &ModelSwitch{}
}

// Current returns the active provider/model, and false if Set has never
// been called.
func (s *ModelSwitch) Current() (Provider, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.provider, s.model, s.set
}

// Set installs a new active provider/model/providerName, returning the
// previous provider name and model (empty strings if this is the first
// call).
func (s *ModelSwitch) Set(provider Provider, providerName, model string) (prevProviderName, prevModel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevProviderName, prevModel = s.providerName, s.model
	s.provider, s.providerName, s.model, s.set = provider, providerName, model, true
	return prevProviderName, prevModel
}
