package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sidecarlabs/agora/internal/wallet"
	"github.com/sidecarlabs/agora/pkg/models"
)

func usdc(micros int64) models.Money {
	return models.NewMoney(micros, "USDC")
}

func newTestSigner(fundingMicros int64) (*wallet.SessionWallet, wallet.Signer) {
	w := wallet.NewSessionWallet("sess-test", "payer-addr", usdc(fundingMicros))
	return w, wallet.NewSessionSigner(w)
}

func serviceAt(url string) *models.ServiceDescriptor {
	return &models.ServiceDescriptor{
		ID:           "svc",
		Name:         "svc",
		Capabilities: []string{"x"},
		Price:        usdc(30_000),
		Endpoint:     url,
	}
}

// paidService is an httptest handler speaking the 402 protocol: it demands
// payment on the first request and verifies the proof on the retry.
func paidService(t *testing.T, amountMicros int64, challenges *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proofHdr := r.Header.Get(ProofHeader)
		if proofHdr == "" {
			atomic.AddInt32(challenges, 1)
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(models.PaymentChallenge{
				Amount:    usdc(amountMicros),
				Recipient: "svc-provider",
				Network:   "testnet",
				Token:     "chal-123",
				ExpiresAt: time.Now().Add(time.Minute),
			})
			return
		}

		var proof models.PaymentProof
		if err := json.Unmarshal([]byte(proofHdr), &proof); err != nil {
			t.Errorf("bad proof header: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if proof.ChallengeToken != "chal-123" || proof.AmountPaid.Micros < amountMicros {
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]string{"summary": "done"},
			"receipt": models.PaymentReceipt{
				ChallengeToken: proof.ChallengeToken,
				SettlementRef:  proof.SettlementRef,
				Amount:         proof.AmountPaid,
			},
		})
	}
}

func TestInvokeHappyPath(t *testing.T) {
	var challenges int32
	srv := httptest.NewServer(paidService(t, 30_000, &challenges))
	defer srv.Close()

	w, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	res, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if res.State != StateSettled {
		t.Errorf("state = %s, want settled", res.State)
	}
	if !res.Paid || res.Proof == nil {
		t.Error("expected a settled payment with proof")
	}
	if res.Receipt == nil || res.Receipt.ChallengeToken != "chal-123" {
		t.Errorf("missing or wrong receipt: %+v", res.Receipt)
	}
	if challenges != 1 {
		t.Errorf("service issued %d challenges, want 1", challenges)
	}
	if w.Balance().Micros != 970_000 {
		t.Errorf("wallet balance = %d, want 970000", w.Balance().Micros)
	}

	var out map[string]string
	if err := json.Unmarshal(res.Body, &out); err != nil || out["summary"] != "done" {
		t.Errorf("business body lost: %s", res.Body)
	}
}

func TestInvokeFreeCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"result": "gratis"})
	}))
	defer srv.Close()

	w, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	res, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if res.Paid {
		t.Error("free call marked as paid")
	}
	if w.Balance().Micros != 1_000_000 {
		t.Error("free call debited wallet")
	}
}

func TestInvokePaymentRejected(t *testing.T) {
	// Service demands more on verification than it quoted, then refuses.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ProofHeader) == "" {
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(models.PaymentChallenge{
				Amount:    usdc(30_000),
				Recipient: "svc",
				Token:     "chal-9",
				ExpiresAt: time.Now().Add(time.Minute),
			})
			return
		}
		w.WriteHeader(http.StatusPaymentRequired) // proof refused
	}))
	defer srv.Close()

	_, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	res, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("expected ErrPaymentRejected, got %v", err)
	}
	if res.State != StateRejected {
		t.Errorf("state = %s, want rejected", res.State)
	}
	// The sunk payment stays visible for dispute handling.
	if !res.Paid || res.Proof == nil {
		t.Error("rejected call lost its proof")
	}
}

func TestInvokeRejectsOverpricedChallenge(t *testing.T) {
	// Service advertises 0.03 but challenges for 0.10. The call must be
	// refused before any money moves.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ProofHeader) != "" {
			t.Error("overpriced challenge was paid")
		}
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(models.PaymentChallenge{
			Amount:    usdc(100_000),
			Recipient: "svc",
			Token:     "chal-greedy",
			ExpiresAt: time.Now().Add(time.Minute),
		})
	}))
	defer srv.Close()

	w, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	res, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("expected ErrPaymentRejected, got %v", err)
	}
	if res.State != StateRejected {
		t.Errorf("state = %s, want rejected", res.State)
	}
	if res.Paid {
		t.Error("overpriced challenge marked as paid")
	}
	if w.Balance().Micros != 1_000_000 {
		t.Errorf("balance = %d, wallet was debited for a refused challenge", w.Balance().Micros)
	}
}

func TestInvokeRejectsForeignCurrencyChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(models.PaymentChallenge{
			Amount:    models.NewMoney(10_000, "EURC"),
			Recipient: "svc",
			Token:     "chal-eurc",
			ExpiresAt: time.Now().Add(time.Minute),
		})
	}))
	defer srv.Close()

	w, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	_, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, ErrPaymentRejected) {
		t.Fatalf("expected ErrPaymentRejected, got %v", err)
	}
	if w.Balance().Micros != 1_000_000 {
		t.Error("foreign-currency challenge debited wallet")
	}
}

func TestInvokePaidButFailed(t *testing.T) {
	var challenges int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(ProofHeader) == "" {
			atomic.AddInt32(&challenges, 1)
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(models.PaymentChallenge{
				Amount:    usdc(30_000),
				Recipient: "svc",
				Token:     "chal-5",
				ExpiresAt: time.Now().Add(time.Minute),
			})
			return
		}
		// Payment fine, business logic broken.
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"model exploded"}`))
	}))
	defer srv.Close()

	w, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	res, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, ErrPaidButFailed) {
		t.Fatalf("expected ErrPaidButFailed, got %v", err)
	}

	var pbf *PaidButFailedError
	if !errors.As(err, &pbf) {
		t.Fatal("error not a PaidButFailedError")
	}
	if pbf.Proof == nil || pbf.Proof.ChallengeToken != "chal-5" {
		t.Error("PaidButFailed lost its proof")
	}
	if res.Proof == nil {
		t.Error("result lost its proof")
	}
	// Exactly one challenge, exactly one payment: no silent second payment.
	if challenges != 1 {
		t.Errorf("%d challenges issued, want 1", challenges)
	}
	if w.Balance().Micros != 970_000 {
		t.Errorf("balance = %d: exactly one payment should have settled", w.Balance().Micros)
	}
}

func TestInvokeExpiredChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		json.NewEncoder(w).Encode(models.PaymentChallenge{
			Amount:    usdc(30_000),
			Recipient: "svc",
			Token:     "chal-old",
			ExpiresAt: time.Now().Add(-time.Minute),
		})
	}))
	defer srv.Close()

	w, signer := newTestSigner(1_000_000)
	client := NewClient(signer)

	res, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if res.State != StateExpired {
		t.Errorf("state = %s, want expired", res.State)
	}
	if w.Balance().Micros != 1_000_000 {
		t.Error("expired challenge still debited wallet")
	}
}

func TestInvokeTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	_, signer := newTestSigner(1_000_000)
	client := NewClient(signer)
	client.CallTimeout = 50 * time.Millisecond

	_, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, ErrPaymentTimeout) {
		t.Fatalf("expected ErrPaymentTimeout, got %v", err)
	}
}

func TestInvokeInsufficientFunds(t *testing.T) {
	var challenges int32
	srv := httptest.NewServer(paidService(t, 30_000, &challenges))
	defer srv.Close()

	_, signer := newTestSigner(10_000) // cannot cover 0.03
	client := NewClient(signer)

	_, err := client.Invoke(context.Background(), serviceAt(srv.URL), []byte(`{}`))
	if !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}
