package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sidecarlabs/agora/pkg/models"
)

var (
	// ErrApprovalRequired indicates a challenge above the approval
	// threshold that no approver accepted in time.
	ErrApprovalRequired = errors.New("payment requires approval")
	// ErrSignTimeout indicates signing did not complete before its deadline.
	ErrSignTimeout = errors.New("signing timed out")
)

// Signer turns a payment challenge into a payment proof. Implementations
// may be slow (human/policy approval, remote settlement), so Sign takes a
// context and must honor its deadline.
type Signer interface {
	Sign(ctx context.Context, challenge *models.PaymentChallenge) (*models.PaymentProof, error)
}

// Approver decides whether an above-threshold payment may proceed. The
// decision may itself be asynchronous and slow.
type Approver interface {
	Approve(ctx context.Context, challenge *models.PaymentChallenge) (bool, error)
}

// SessionSigner signs challenges against a session wallet. Payments above
// ApprovalThreshold are routed through the Approver first; with no
// approver configured they are rejected outright.
type SessionSigner struct {
	wallet *SessionWallet
	// ApprovalThreshold triggers the approval flow when a challenge
	// amount meets or exceeds it. Zero micros disables the threshold.
	ApprovalThreshold models.Money
	// Approver handles above-threshold challenges. May be nil.
	Approver Approver
	// SignTimeout bounds one signing operation end to end.
	SignTimeout time.Duration
}

// NewSessionSigner creates a signer drawing on the given session wallet.
func NewSessionSigner(w *SessionWallet) *SessionSigner {
	return &SessionSigner{
		wallet:      w,
		SignTimeout: 30 * time.Second,
	}
}

// Sign settles the challenge from the session wallet and returns the
// resulting proof. The proof amount always equals the challenge amount.
func (s *SessionSigner) Sign(ctx context.Context, challenge *models.PaymentChallenge) (*models.PaymentProof, error) {
	if s.SignTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.SignTimeout)
		defer cancel()
	}

	if challenge.Expired(time.Now()) {
		return nil, fmt.Errorf("challenge %s expired at %s", challenge.Token, challenge.ExpiresAt)
	}

	if !s.ApprovalThreshold.IsZero() && !challenge.Amount.LessThan(s.ApprovalThreshold) {
		if s.Approver == nil {
			return nil, fmt.Errorf("%w: %s meets threshold %s and no approver is configured",
				ErrApprovalRequired, challenge.Amount, s.ApprovalThreshold)
		}
		ok, err := s.approve(ctx, challenge)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: approver declined %s", ErrApprovalRequired, challenge.Amount)
		}
	}

	ref, err := s.wallet.Purchase(challenge.Recipient, challenge.Amount)
	if err != nil {
		return nil, err
	}

	return &models.PaymentProof{
		ChallengeToken: challenge.Token,
		SettlementRef:  ref,
		Payer:          s.wallet.Address(),
		AmountPaid:     challenge.Amount,
		PaidAt:         time.Now().UTC(),
	}, nil
}

// approve runs the approver under the signing context so a stalled human
// decision surfaces as ErrSignTimeout rather than hanging the call.
func (s *SessionSigner) approve(ctx context.Context, challenge *models.PaymentChallenge) (bool, error) {
	type decision struct {
		ok  bool
		err error
	}
	ch := make(chan decision, 1)
	go func() {
		ok, err := s.Approver.Approve(ctx, challenge)
		ch <- decision{ok, err}
	}()

	select {
	case d := <-ch:
		return d.ok, d.err
	case <-ctx.Done():
		return false, fmt.Errorf("%w: approval pending for %s", ErrSignTimeout, challenge.Amount)
	}
}

// Verify SessionSigner implements Signer at compile time.
var _ Signer = (*SessionSigner)(nil)
