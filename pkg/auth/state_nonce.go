package auth

import (
	"fmt"

	"github.com/hashicorp/go-secure-stdlib/nonceutil"
)

// stateNonceService issues the single-use state parameter bound to an
// authorization request and redeems it on the redirect. A replayed or
// foreign state fails redemption.
type stateNonceService struct {
	svc nonceutil.NonceService
}

func newStateNonceService() (*stateNonceService, error) {
	svc := nonceutil.NewNonceService()
	if err := svc.Initialize(); err != nil {
		return nil, fmt.Errorf("could not initialize nonce service: %w", err)
	}
	return &stateNonceService{svc: svc}, nil
}

func (s *stateNonceService) Issue() (string, error) {
	state, _, err := s.svc.Get()
	if err != nil {
		return "", err
	}
	return state, nil
}

func (s *stateNonceService) Redeem(state string) error {
	if !s.svc.Redeem(state) {
		return fmt.Errorf("state %q unknown or already redeemed", state)
	}
	return nil
}
