package workflow

import (
	"sync"
	"testing"
)

func TestValidateNotification_RequiredFields(t *testing.T) {
	cases := []struct {
		name    string
		payload MobileMoneyNotification
	}{
		{"missing transaction id", MobileMoneyNotification{PhoneNumber: "0712345678", ShortCode: "600100", Amount: 500}},
		{"missing phone", MobileMoneyNotification{TransactionId: "QA12345", ShortCode: "600100", Amount: 500}},
		{"missing short code", MobileMoneyNotification{TransactionId: "QA12345", PhoneNumber: "0712345678", Amount: 500}},
		{"malformed amount", MobileMoneyNotification{TransactionId: "QA12345", PhoneNumber: "0712345678", ShortCode: "600100", Amount: "not money"}},
		{"garbage amount with leading digits", MobileMoneyNotification{TransactionId: "QA12345", PhoneNumber: "0712345678", ShortCode: "600100", Amount: "7up"}},
		{"zero amount", MobileMoneyNotification{TransactionId: "QA12345", PhoneNumber: "0712345678", ShortCode: "600100", Amount: 0}},
		{"negative amount", MobileMoneyNotification{TransactionId: "QA12345", PhoneNumber: "0712345678", ShortCode: "600100", Amount: -100}},
	}
	for _, tc := range cases {
		if _, err := validateNotification(&tc.payload); err == nil {
			t.Fatalf("%s: expected a validation error", tc.name)
		}
	}
}

func TestValidateNotification_AcceptsFormattedAmount(t *testing.T) {
	payload := MobileMoneyNotification{
		TransactionId: "QA12345",
		PhoneNumber:   "0712345678",
		ShortCode:     "600100",
		Amount:        "KES 2,500.50",
	}
	amount, err := validateNotification(&payload)
	if err != nil {
		t.Fatalf("validateNotification error: %v", err)
	}
	if amount.String() != "2500.5" {
		t.Fatalf("expected 2500.5, got %s", amount.String())
	}
}

// NOTE: These tests are intentionally DB-free. They validate the intended
// reconciliation semantics:
// - at-least-once webhook delivery is safe via durable idempotency
// - per-owner serialization prevents racey interleavings inside the apply step
//
// Full DB integration tests need MySQL; see reconciliation_regression_test.go.

type fakeReconciler struct {
	muByOwner map[int]*sync.Mutex
	mu        sync.Mutex
	seen      map[string]bool
	applied   int
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{
		muByOwner: map[int]*sync.Mutex{},
		seen:      map[string]bool{},
	}
}

func (r *fakeReconciler) process(ownerId int, transactionId string, apply func()) {
	// Serialize per owner (AcquireOwnerPostingLock).
	r.mu.Lock()
	om := r.muByOwner[ownerId]
	if om == nil {
		om = &sync.Mutex{}
		r.muByOwner[ownerId] = om
	}
	r.mu.Unlock()

	om.Lock()
	defer om.Unlock()

	// Deduplicate (IdempotencyKey on the transaction id).
	r.mu.Lock()
	if r.seen[transactionId] {
		r.mu.Unlock()
		return
	}
	r.seen[transactionId] = true
	r.applied++
	r.mu.Unlock()

	apply()
}

func TestReconciliation_DuplicateDeliveryAppliesOnce(t *testing.T) {
	r := newFakeReconciler()

	var wg sync.WaitGroup
	var balanceMu sync.Mutex
	balance := 0

	// The gateway retries the same notification five times concurrently.
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.process(7, "QA12345", func() {
				balanceMu.Lock()
				balance += 3000
				balanceMu.Unlock()
			})
		}()
	}
	wg.Wait()

	if r.applied != 1 {
		t.Fatalf("expected exactly one application, got %d", r.applied)
	}
	if balance != 3000 {
		t.Fatalf("expected balance 3000, got %d", balance)
	}
}

func TestReconciliation_ConcurrentPaymentsSerializePerOwner(t *testing.T) {
	r := newFakeReconciler()

	var wg sync.WaitGroup
	total := 0
	inCritical := false

	for i := 0; i < 50; i++ {
		txnId := string(rune('A'+i%26)) + string(rune('0'+i/26))
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.process(7, id, func() {
				// Unsynchronized on purpose: the per-owner lock is what
				// keeps this section single-threaded.
				if inCritical {
					t.Error("two payments inside the owner's critical section")
				}
				inCritical = true
				total += 100
				inCritical = false
			})
		}(txnId)
	}
	wg.Wait()

	if total != 50*100 {
		t.Fatalf("expected total %d, got %d", 50*100, total)
	}
}

func TestReconciliation_DistinctOwnersDoNotBlockEachOther(t *testing.T) {
	r := newFakeReconciler()

	var wg sync.WaitGroup
	for owner := 1; owner <= 4; owner++ {
		for i := 0; i < 10; i++ {
			txnId := "T" + string(rune('0'+owner)) + "-" + string(rune('a'+i))
			wg.Add(1)
			go func(ownerId int, id string) {
				defer wg.Done()
				r.process(ownerId, id, func() {})
			}(owner, txnId)
		}
	}
	wg.Wait()

	if r.applied != 40 {
		t.Fatalf("expected 40 applications, got %d", r.applied)
	}
}
