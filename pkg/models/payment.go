package models

import "time"

// PaymentChallenge is the structured body a service returns with an HTTP 402
// response. It is single-use: consumed by exactly one successful proof
// submission or discarded at expiry.
type PaymentChallenge struct {
	// Amount is the price demanded for this call.
	Amount Money `json:"amount"`
	// Recipient is the address the payment must reach.
	Recipient string `json:"recipient"`
	// Network identifies the settlement network or chain.
	Network string `json:"network"`
	// Token is the single-use challenge nonce. It doubles as the
	// idempotency key for proof submission.
	Token string `json:"challengeToken"`
	// ExpiresAt is when the challenge stops being honored.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the challenge has passed its expiry at now.
func (c *PaymentChallenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// PaymentProof is the caller-constructed evidence that a challenge was paid.
// AmountPaid must be at least the challenge amount.
type PaymentProof struct {
	// ChallengeToken references the challenge this proof settles.
	ChallengeToken string `json:"challengeToken"`
	// SettlementRef is the transaction or settlement reference.
	SettlementRef string `json:"settlementRef"`
	// Payer is the paying wallet address.
	Payer string `json:"payer"`
	// AmountPaid is the amount actually transferred.
	AmountPaid Money `json:"amountPaid"`
	// PaidAt is when the payment settled.
	PaidAt time.Time `json:"paidAt"`
}

// Covers reports whether the proof satisfies the challenge amount.
func (p *PaymentProof) Covers(c *PaymentChallenge) bool {
	return p.ChallengeToken == c.Token && !p.AmountPaid.LessThan(c.Amount)
}

// PaymentReceipt is echoed back by a service alongside the business result
// once a valid proof was attached to the retried request.
type PaymentReceipt struct {
	ChallengeToken string `json:"challengeToken"`
	SettlementRef  string `json:"settlementRef"`
	Amount         Money  `json:"amount"`
}
