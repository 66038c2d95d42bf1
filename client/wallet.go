package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Wallet ties the client to a store for one member. Every successful
// mutation is followed by a full refresh; the server response body is
// never merged into the store directly.
type Wallet struct {
	client   *Client
	store    *Store
	memberID uuid.UUID

	mu       sync.Mutex
	inFlight map[uuid.UUID]bool
}

func NewWallet(client *Client, store *Store, memberID uuid.UUID) *Wallet {
	if store == nil {
		store = NewStore()
	}
	return &Wallet{
		client:   client,
		store:    store,
		memberID: memberID,
		inFlight: map[uuid.UUID]bool{},
	}
}

// Store exposes the backing store for snapshots.
func (w *Wallet) Store() *Store {
	return w.store
}

// Refresh fetches the member's cards and replaces the store contents.
func (w *Wallet) Refresh(ctx context.Context) error {
	cards, err := w.client.Cards(ctx, w.memberID)
	if err != nil {
		return err
	}
	w.store.Replace(cards)
	return nil
}

// Lock locks the card, then refreshes.
func (w *Wallet) Lock(ctx context.Context, cardID uuid.UUID) error {
	return w.mutateCard(ctx, cardID, func(ctx context.Context) error {
		_, err := w.client.SetLock(ctx, cardID, true)
		return err
	})
}

// Unlock unlocks the card, then refreshes.
func (w *Wallet) Unlock(ctx context.Context, cardID uuid.UUID) error {
	return w.mutateCard(ctx, cardID, func(ctx context.Context) error {
		_, err := w.client.SetLock(ctx, cardID, false)
		return err
	})
}

// SetMain promotes the card to the member's main card, then refreshes.
func (w *Wallet) SetMain(ctx context.Context, cardID uuid.UUID) error {
	return w.mutateCard(ctx, cardID, func(ctx context.Context) error {
		return w.client.SetMain(ctx, cardID, w.memberID)
	})
}

// TopUp adds balance, then refreshes.
func (w *Wallet) TopUp(ctx context.Context, cardID uuid.UUID, amount int64) error {
	return w.mutateCard(ctx, cardID, func(ctx context.Context) error {
		_, err := w.client.TopUp(ctx, cardID, amount)
		return err
	})
}

// Use redeems fare by QR payload, then refreshes. The transient result is
// returned for a confirmation view; the store is the source of truth.
func (w *Wallet) Use(ctx context.Context, params UseParams) (*UseResult, error) {
	result, err := w.client.Use(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := w.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// VerifyCode links a physical card to the member, then refreshes.
func (w *Wallet) VerifyCode(ctx context.Context, hash, code string) error {
	_, err := w.client.VerifyCode(ctx, hash, code, w.memberID)
	if err != nil {
		return err
	}
	return w.Refresh(ctx)
}

// Purchase mints a virtual card from the catalog, then refreshes.
func (w *Wallet) Purchase(ctx context.Context, groupID uuid.UUID) error {
	_, err := w.client.Purchase(ctx, groupID, w.memberID)
	if err != nil {
		return err
	}
	return w.Refresh(ctx)
}

// mutateCard serializes mutations per card: a second mutation on a busy
// card fails fast with ErrCardBusy instead of queueing.
func (w *Wallet) mutateCard(ctx context.Context, cardID uuid.UUID, fn func(ctx context.Context) error) error {
	if !w.acquire(cardID) {
		return ErrCardBusy
	}
	defer w.release(cardID)

	if err := fn(ctx); err != nil {
		return err
	}
	return w.Refresh(ctx)
}

func (w *Wallet) acquire(cardID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[cardID] {
		return false
	}
	w.inFlight[cardID] = true
	return true
}

func (w *Wallet) release(cardID uuid.UUID) {
	w.mu.Lock()
	delete(w.inFlight, cardID)
	w.mu.Unlock()
}
