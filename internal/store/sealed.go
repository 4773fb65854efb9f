package store

import (
	"context"
	"fmt"

	"github.com/starlingpost/starlingpost/internal/domain/social"
	"github.com/starlingpost/starlingpost/internal/security/secretbox"
)

// Sealed envuelve un AccountRepository cifrando access/refresh token. El AAD es
// la clave de la cuenta, así un token copiado a otra fila no descifra.
type Sealed struct {
	inner AccountRepository
	box   *secretbox.Box
}

// NewSealed crea el wrapper. box nil deja los tokens en claro (solo memory/tests).
func NewSealed(inner AccountRepository, box *secretbox.Box) AccountRepository {
	if box == nil {
		return inner
	}
	return &Sealed{inner: inner, box: box}
}

func (s *Sealed) seal(acc *social.LinkedAccount) (*social.LinkedAccount, error) {
	cp := *acc
	aad := acc.Key().String()
	var err error
	if cp.AccessToken, err = s.box.Seal(acc.AccessToken, aad); err != nil {
		return nil, fmt.Errorf("store: seal access token: %w", err)
	}
	if cp.RefreshToken, err = s.box.Seal(acc.RefreshToken, aad); err != nil {
		return nil, fmt.Errorf("store: seal refresh token: %w", err)
	}
	return &cp, nil
}

func (s *Sealed) open(acc *social.LinkedAccount) error {
	aad := acc.Key().String()
	var err error
	if acc.AccessToken, err = s.box.Open(acc.AccessToken, aad); err != nil {
		return fmt.Errorf("store: open access token for %s: %w", acc.Key(), err)
	}
	if acc.RefreshToken, err = s.box.Open(acc.RefreshToken, aad); err != nil {
		return fmt.Errorf("store: open refresh token for %s: %w", acc.Key(), err)
	}
	return nil
}

func (s *Sealed) Get(ctx context.Context, key social.AccountKey) (*social.LinkedAccount, error) {
	acc, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.open(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func (s *Sealed) Put(ctx context.Context, acc *social.LinkedAccount) error {
	sealed, err := s.seal(acc)
	if err != nil {
		return err
	}
	if err := s.inner.Put(ctx, sealed); err != nil {
		return err
	}
	acc.CreatedAt, acc.UpdatedAt = sealed.CreatedAt, sealed.UpdatedAt
	return nil
}

func (s *Sealed) Delete(ctx context.Context, key social.AccountKey) error {
	return s.inner.Delete(ctx, key)
}

func (s *Sealed) ListByUser(ctx context.Context, userID string) ([]social.LinkedAccount, error) {
	list, err := s.inner.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if err := s.open(&list[i]); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *Sealed) MarkNeedsRelink(ctx context.Context, key social.AccountKey) error {
	return s.inner.MarkNeedsRelink(ctx, key)
}
