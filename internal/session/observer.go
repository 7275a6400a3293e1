package session

import "pkt.systems/vmplane/internal/authstore"

// Observer receives session notifications. Methods are called without
// internal locks held and must not block for long.
type Observer interface {
	// TokensChanged is called whenever a new bundle is installed.
	TokensChanged(bundle authstore.Bundle)
	// AuthExpired is called once per expiry transition.
	AuthExpired()
	// StateChanged is called when the authenticated flag flips.
	StateChanged(authenticated bool)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) TokensChanged(authstore.Bundle) {}
func (NopObserver) AuthExpired()                   {}
func (NopObserver) StateChanged(bool)              {}

// ObserverFuncs adapts optional functions to Observer.
type ObserverFuncs struct {
	OnTokensChanged func(authstore.Bundle)
	OnAuthExpired   func()
	OnStateChanged  func(bool)
}

func (o ObserverFuncs) TokensChanged(b authstore.Bundle) {
	if o.OnTokensChanged != nil {
		o.OnTokensChanged(b)
	}
}

func (o ObserverFuncs) AuthExpired() {
	if o.OnAuthExpired != nil {
		o.OnAuthExpired()
	}
}

func (o ObserverFuncs) StateChanged(authenticated bool) {
	if o.OnStateChanged != nil {
		o.OnStateChanged(authenticated)
	}
}
