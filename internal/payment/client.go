// Package payment implements the caller side of the pay-to-call protocol:
// request, 402 challenge, proof submission, and result, with every outcome
// mapped to a typed error the executor and ledger can act on.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/sidecarlabs/agora/internal/wallet"
	"github.com/sidecarlabs/agora/pkg/models"
)

// ProofHeader carries the JSON-encoded payment proof on the retried request.
const ProofHeader = "X-Payment-Proof"

// DefaultCallTimeout bounds one invoke round trip, challenge included.
const DefaultCallTimeout = 30 * time.Second

var (
	// ErrPaymentRejected indicates the service refused the submitted proof
	// (bad amount, expired challenge, wrong recipient).
	ErrPaymentRejected = errors.New("payment rejected")
	// ErrPaymentTimeout indicates no response arrived before the deadline.
	ErrPaymentTimeout = errors.New("payment timed out")
	// ErrPaidButFailed indicates payment settled and the business call then
	// failed. The payment is sunk, never silently retried; the proof is
	// retained for dispute or credit.
	ErrPaidButFailed = errors.New("paid but business call failed")
	// ErrChallengeExpired indicates the challenge lapsed before a proof
	// could be produced.
	ErrChallengeExpired = errors.New("payment challenge expired")
)

// PaidButFailedError carries the retained proof alongside the business
// failure so the ledger can account for the sunk payment.
type PaidButFailedError struct {
	Proof      *models.PaymentProof
	StatusCode int
	Body       string
}

func (e *PaidButFailedError) Error() string {
	return fmt.Sprintf("paid but business call failed: status %d", e.StatusCode)
}

// Unwrap lets errors.Is(err, ErrPaidButFailed) match.
func (e *PaidButFailedError) Unwrap() error {
	return ErrPaidButFailed
}

// CallState is the per-call protocol state.
type CallState string

const (
	// StateIdle is the initial state before the request is sent.
	StateIdle CallState = "idle"
	// StateRequested indicates the first request is in flight.
	StateRequested CallState = "requested"
	// StateChallengeReceived indicates a 402 challenge was parsed.
	StateChallengeReceived CallState = "challenge_received"
	// StateProofSubmitted indicates the retried request carries a proof.
	StateProofSubmitted CallState = "proof_submitted"
	// StateSettled indicates the business result arrived after payment.
	StateSettled CallState = "settled"
	// StateRejected indicates the proof was refused.
	StateRejected CallState = "rejected"
	// StateExpired indicates the challenge lapsed unconsumed.
	StateExpired CallState = "expired"
)

// Result is the outcome of one invoke, retained in full for the ledger.
type Result struct {
	// Body is the business response on success, or on PaidButFailed the
	// error body for diagnostics.
	Body []byte
	// Receipt is the payment receipt echoed by the service, if any.
	Receipt *models.PaymentReceipt
	// Proof is the proof submitted for this call. Present whenever a
	// payment settled, including PaidButFailed outcomes.
	Proof *models.PaymentProof
	// Paid reports whether money moved during this call.
	Paid bool
	// State is the terminal protocol state.
	State CallState
	// Duration is the wall time of the whole exchange.
	Duration time.Duration
}

// Client executes the pay-to-call protocol against marketplace services.
type Client struct {
	http   *resty.Client
	signer wallet.Signer
	// CallTimeout bounds one invoke end to end. Zero means
	// DefaultCallTimeout.
	CallTimeout time.Duration
}

// NewClient creates a payment gateway client using signer to settle
// challenges.
func NewClient(signer wallet.Signer) *Client {
	httpClient := resty.New().
		SetRetryCount(0). // retries are the executor's job, never the gateway's
		SetHeader("Content-Type", "application/json")
	return &Client{
		http:        httpClient,
		signer:      signer,
		CallTimeout: DefaultCallTimeout,
	}
}

// businessResponse is the service response shape: business output plus an
// echoed receipt once a valid proof was attached.
type businessResponse struct {
	Result  json.RawMessage        `json:"result"`
	Receipt *models.PaymentReceipt `json:"receipt,omitempty"`
}

// Invoke sends payload to the service's business endpoint and walks the
// payment protocol as needed. Exactly one challenge is honored per invoke:
// a second 402 after proof submission is a rejection, never a second
// payment.
func (c *Client) Invoke(ctx context.Context, service *models.ServiceDescriptor, payload []byte) (*Result, error) {
	timeout := c.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := &Result{State: StateIdle}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	res.State = StateRequested
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(json.RawMessage(payload)).
		Post(service.Endpoint)
	if err != nil {
		return res, c.wrapTransport(err)
	}

	// Free call: some services answer without demanding payment.
	if resp.StatusCode() != http.StatusPaymentRequired {
		return c.finishBusiness(res, resp, nil)
	}

	var challenge models.PaymentChallenge
	if err := json.Unmarshal(resp.Body(), &challenge); err != nil {
		return res, fmt.Errorf("parse payment challenge: %w", err)
	}
	res.State = StateChallengeReceived

	if challenge.Expired(time.Now()) {
		res.State = StateExpired
		return res, fmt.Errorf("%w: token %s", ErrChallengeExpired, challenge.Token)
	}

	// A provider gets at most its advertised price. A challenge above the
	// listed amount, or in another currency, is refused before any money
	// moves; otherwise actual spend could outrun the executor's budget gate.
	if challenge.Amount.Currency != service.Price.Currency || service.Price.LessThan(challenge.Amount) {
		res.State = StateRejected
		return res, fmt.Errorf("%w: challenge demands %s, advertised price is %s",
			ErrPaymentRejected, challenge.Amount, service.Price)
	}

	// The signer may be slow (approval flows); it runs under the call
	// context and carries its own timeout.
	proof, err := c.signer.Sign(ctx, &challenge)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, wallet.ErrSignTimeout) {
			return res, fmt.Errorf("%w: signing: %v", ErrPaymentTimeout, err)
		}
		return res, fmt.Errorf("sign challenge %s: %w", challenge.Token, err)
	}

	proofJSON, err := json.Marshal(proof)
	if err != nil {
		return res, fmt.Errorf("encode payment proof: %w", err)
	}

	res.State = StateProofSubmitted
	res.Proof = proof
	res.Paid = true

	resp, err = c.http.R().
		SetContext(ctx).
		SetHeader(ProofHeader, string(proofJSON)).
		SetBody(json.RawMessage(payload)).
		Post(service.Endpoint)
	if err != nil {
		// Money is gone, response never arrived. Surface as a timeout
		// with the proof retained; never re-pay.
		res.State = StateRejected
		return res, fmt.Errorf("%w: after proof submission: %v", ErrPaymentTimeout, err)
	}

	return c.finishBusiness(res, resp, proof)
}

// finishBusiness maps the post-challenge (or free-call) response to a
// terminal state.
func (c *Client) finishBusiness(res *Result, resp *resty.Response, proof *models.PaymentProof) (*Result, error) {
	switch {
	case resp.StatusCode() >= 200 && resp.StatusCode() < 300:
		var br businessResponse
		if err := json.Unmarshal(resp.Body(), &br); err == nil && br.Result != nil {
			res.Body = br.Result
			res.Receipt = br.Receipt
		} else {
			res.Body = resp.Body()
		}
		res.State = StateSettled
		return res, nil

	case resp.StatusCode() == http.StatusPaymentRequired, resp.StatusCode() == http.StatusUnauthorized, resp.StatusCode() == http.StatusForbidden:
		res.State = StateRejected
		if proof == nil {
			return res, fmt.Errorf("%w: status %d", ErrPaymentRejected, resp.StatusCode())
		}
		return res, fmt.Errorf("%w: proof %s refused with status %d",
			ErrPaymentRejected, proof.SettlementRef, resp.StatusCode())

	default:
		// Business failure. If we paid, the payment itself settled; the
		// money is sunk and the proof stays in the result for the ledger.
		if proof != nil {
			res.State = StateSettled
			return res, &PaidButFailedError{
				Proof:      proof,
				StatusCode: resp.StatusCode(),
				Body:       string(resp.Body()),
			}
		}
		res.State = StateRejected
		return res, fmt.Errorf("service error: status %d", resp.StatusCode())
	}
}

func (c *Client) wrapTransport(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrPaymentTimeout, err)
	}
	return fmt.Errorf("call service: %w", err)
}
