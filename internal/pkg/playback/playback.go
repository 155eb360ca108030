// Package playback hands out signed media URLs to users who may watch.
package playback

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/internal/pkg/catalog"
	"github.com/ManuelReschke/ReelPass/internal/pkg/entitlements"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNoAsset      = errors.New("no playable asset")
	ErrDisabled     = errors.New("playback signing is not configured")
)

// DeniedError carries the access decision that blocked playback.
type DeniedError struct {
	Decision entitlements.Decision
}

func (e *DeniedError) Error() string        { return ErrAccessDenied.Error() + ": " + string(e.Decision.Reason) }
func (e *DeniedError) Is(target error) bool { return target == ErrAccessDenied }

// Grant is a signed URL together with its expiry.
type Grant struct {
	URL       string                `json:"url"`
	ExpiresAt time.Time             `json:"expires_at"`
	Decision  entitlements.Decision `json:"decision"`
}

type Service struct {
	access *entitlements.AccessResolver
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewService returns a playback service. signer may be nil, in which case
// URL fails with ErrDisabled after the access check.
func NewService(access *entitlements.AccessResolver, signer Signer, ttl time.Duration) *Service {
	return &Service{access: access, signer: signer, ttl: ttl, now: time.Now}
}

// URL checks access first and only then signs the asset.
func (s *Service) URL(ctx context.Context, user *models.User, target catalog.Target) (*Grant, error) {
	decision, unit, err := s.access.CanAccess(ctx, user, target)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &DeniedError{Decision: decision}
	}
	key := unit.AssetKey()
	if key == "" {
		return nil, ErrNoAsset
	}
	if s.signer == nil {
		return nil, ErrDisabled
	}

	expires := s.now().Add(s.ttl)
	u, err := s.signer.Sign(ctx, key, s.ttl)
	if err != nil {
		return nil, err
	}
	return &Grant{URL: u, ExpiresAt: expires, Decision: decision}, nil
}
