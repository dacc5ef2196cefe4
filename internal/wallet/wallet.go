// Package wallet provides the caller-side payment collaborator: a funded
// session wallet with exact balance accounting and the Signer contract the
// payment gateway uses to turn challenges into proofs.
package wallet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sidecarlabs/agora/pkg/models"
)

var (
	// ErrSessionClosed indicates a purchase against a closed session.
	ErrSessionClosed = errors.New("session wallet closed")
	// ErrInsufficientBalance indicates a purchase exceeding the remaining
	// session balance.
	ErrInsufficientBalance = errors.New("insufficient session balance")
)

// PurchaseRecord is the append-only log entry for one spend from the
// session wallet.
type PurchaseRecord struct {
	// ServiceID is the service that was paid.
	ServiceID string `json:"service_id"`
	// Amount is the amount transferred.
	Amount models.Money `json:"amount"`
	// SettlementRef is the settlement reference issued for the transfer.
	SettlementRef string `json:"settlement_ref"`
	// At is when the purchase executed.
	At time.Time `json:"at"`
}

// SessionWallet is a short-lived wallet funded once at orchestration start.
// Every purchase is checked against the remaining balance and appended to
// the purchase log; closing the session refunds the remainder.
type SessionWallet struct {
	// SessionID identifies the session this wallet funds.
	sessionID string
	// address is the payer address quoted in proofs.
	address string

	mu             sync.Mutex
	initialBalance models.Money
	funded         models.Money
	balance        models.Money
	active         bool
	lastActivity   time.Time
	purchases      []PurchaseRecord
	seq            int64
}

// NewSessionWallet creates an active wallet funded with initialFunding.
func NewSessionWallet(sessionID, address string, initialFunding models.Money) *SessionWallet {
	return &SessionWallet{
		sessionID:      sessionID,
		address:        address,
		initialBalance: initialFunding,
		funded:         initialFunding,
		balance:        initialFunding,
		active:         true,
		lastActivity:   time.Now().UTC(),
	}
}

// SessionID returns the session this wallet belongs to.
func (w *SessionWallet) SessionID() string {
	return w.sessionID
}

// Address returns the payer address.
func (w *SessionWallet) Address() string {
	return w.address
}

// Balance returns the current remaining balance.
func (w *SessionWallet) Balance() models.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// InitialBalance returns the funding amount the session started with.
func (w *SessionWallet) InitialBalance() models.Money {
	return w.initialBalance
}

// Funded returns the total funding the session has received, top-ups
// included.
func (w *SessionWallet) Funded() models.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.funded
}

// Spent returns the total amount purchased so far.
func (w *SessionWallet) Spent() models.Money {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.funded.Sub(w.balance)
}

// Fund adds amount to the session balance. Funding a closed session fails
// with ErrSessionClosed.
func (w *SessionWallet) Fund(amount models.Money) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return fmt.Errorf("%w: session %s", ErrSessionClosed, w.sessionID)
	}
	w.balance = w.balance.Add(amount)
	w.funded = w.funded.Add(amount)
	w.lastActivity = time.Now().UTC()
	return nil
}

// Purchase transfers amount to a service provider, debiting the session
// balance. It fails with ErrSessionClosed on an inactive wallet and
// ErrInsufficientBalance when the balance cannot cover the amount.
// Returns the settlement reference for the transfer.
func (w *SessionWallet) Purchase(serviceID string, amount models.Money) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return "", fmt.Errorf("%w: session %s", ErrSessionClosed, w.sessionID)
	}
	if w.balance.LessThan(amount) {
		return "", fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, w.balance, amount)
	}

	w.balance = w.balance.Sub(amount)
	w.lastActivity = time.Now().UTC()
	w.seq++

	ref := fmt.Sprintf("%s-%d", w.sessionID, w.seq)
	w.purchases = append(w.purchases, PurchaseRecord{
		ServiceID:     serviceID,
		Amount:        amount,
		SettlementRef: ref,
		At:            w.lastActivity,
	})
	return ref, nil
}

// Close deactivates the wallet and returns the refunded remainder.
// Closing an already-closed wallet is an error.
func (w *SessionWallet) Close() (models.Money, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return models.Money{}, fmt.Errorf("%w: session %s", ErrSessionClosed, w.sessionID)
	}
	w.active = false
	refund := w.balance
	w.balance = models.NewMoney(0, w.balance.Currency)
	return refund, nil
}

// Active reports whether the session wallet can still spend.
func (w *SessionWallet) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Purchases returns a copy of the append-only purchase log.
func (w *SessionWallet) Purchases() []PurchaseRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]PurchaseRecord, len(w.purchases))
	copy(out, w.purchases)
	return out
}
