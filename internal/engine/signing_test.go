package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"

	"go.uber.org/zap"
)

// sendContract moves a freshly created draft into pending.
func sendContract(t *testing.T, eng *Engine, contractID uint) {
	t.Helper()
	if _, err := eng.SendForSigning(testActor, contractID); err != nil {
		t.Fatalf("send for signing: %v", err)
	}
}

func TestTwoPartySigningFlow(t *testing.T) {
	eng, db, notes, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	bob := addTestParty(t, eng, contract.ID, "bob", "+35799000002")
	sendContract(t, eng, contract.ID)

	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusPending {
		t.Fatalf("status after send = %s, want pending", got.Status)
	}

	signViaCode(t, eng, sms, contract.ID, alice)
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusPartiallySigned {
		t.Fatalf("status after first signature = %s, want partially_signed", got.Status)
	}

	signViaCode(t, eng, sms, contract.ID, bob)
	got := reloadContract(t, db, contract.ID)
	// No start date, so the contract activates as soon as it is signed.
	if got.Status != model.StatusActive {
		t.Fatalf("status after last signature = %s, want active", got.Status)
	}
	if got.SignedAt == nil {
		t.Fatal("signed_at not stamped")
	}

	if n := notes.countKind(notifier.KindPartySigned); n != 2 {
		t.Errorf("party-signed notifications = %d, want 2", n)
	}

	var parties []model.ContractParty
	db.Where("contract_id = ?", contract.ID).Find(&parties)
	for _, p := range parties {
		if !p.IsSigned || p.SignedAt == nil {
			t.Errorf("party %s is_signed cache not updated", p.Name)
		}
	}
}

func TestFutureStartDateStaysSigned(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	start := time.Now().Add(72 * time.Hour)
	contract := createTestContract(t, eng, CreateContractInput{StartDate: &start})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	signViaCode(t, eng, sms, contract.ID, alice)
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusSigned {
		t.Fatalf("status = %s, want signed until start date arrives", got.Status)
	}
}

func TestOptionalWitnessDoesNotBlockCompletion(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	if _, err := eng.AddParty(testActor, contract.ID, PartyInput{
		Type: model.PartyWitness, Name: "walter", Phone: "+35799000009",
	}); err != nil {
		t.Fatalf("add witness: %v", err)
	}
	sendContract(t, eng, contract.ID)

	signViaCode(t, eng, sms, contract.ID, alice)
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusActive {
		t.Fatalf("status = %s, want active with witness unsigned", got.Status)
	}
}

func TestVerifyExpiredCodeFailsEvenWhenMatching(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	if err := eng.RequestCode(contract.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	code := sms.lastCode(alice.Phone)

	// Age the code past its TTL.
	past := time.Now().Add(-time.Minute)
	if err := db.Model(&model.ContractSignature{}).
		Where("contract_id = ? AND party_id = ?", contract.ID, alice.ID).
		Update("code_expires_at", past).Error; err != nil {
		t.Fatal(err)
	}

	err := eng.VerifyCode(contract.ID, alice.ID, code, SignatureEvidence{})
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("err = %v, want ErrCodeExpired", err)
	}
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusPending {
		t.Fatalf("status = %s after expired code, want pending", got.Status)
	}
}

func TestVerifyMismatchBudget(t *testing.T) {
	eng, _, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	if err := eng.RequestCode(contract.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	code := sms.lastCode(alice.Phone)
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		if err := eng.VerifyCode(contract.ID, alice.ID, wrong, SignatureEvidence{}); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: err = %v, want ErrCodeMismatch", i+1, err)
		}
	}
	if err := eng.VerifyCode(contract.ID, alice.ID, wrong, SignatureEvidence{}); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("final attempt: err = %v, want ErrTooManyAttempts", err)
	}

	// The code is invalidated; even the right one no longer works.
	if err := eng.VerifyCode(contract.ID, alice.ID, code, SignatureEvidence{}); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("after invalidation: err = %v, want ErrCodeExpired", err)
	}

	// A fresh code resets the budget and signs normally.
	signViaCode(t, eng, sms, contract.ID, alice)
}

func TestRequestCodeRateLimited(t *testing.T) {
	db := newTestDB(t)
	sms := newFakeSMS()
	eng := New(db, &fakeNotifier{}, sms, Options{MaxCodeSendsPerHour: 2}, zap.NewNop())

	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	for i := 0; i < 2; i++ {
		if err := eng.RequestCode(contract.ID, alice.ID); err != nil {
			t.Fatalf("request #%d: %v", i+1, err)
		}
	}
	if err := eng.RequestCode(contract.ID, alice.ID); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}

	// A window that started over an hour ago resets the counter.
	old := time.Now().Add(-2 * time.Hour)
	if err := db.Model(&model.ContractSignature{}).
		Where("contract_id = ? AND party_id = ?", contract.ID, alice.ID).
		Update("code_window_start", old).Error; err != nil {
		t.Fatal(err)
	}
	if err := eng.RequestCode(contract.ID, alice.ID); err != nil {
		t.Fatalf("request after window reset: %v", err)
	}
}

func TestRequestCodeConcurrentRequestsHonorBudget(t *testing.T) {
	db := newTestDB(t)
	sms := newFakeSMS()
	eng := New(db, &fakeNotifier{}, sms, Options{MaxCodeSendsPerHour: 2}, zap.NewNop())

	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	const n = 5
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sent    int
		limited int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := eng.RequestCode(contract.ID, alice.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sent++
			case errors.Is(err, ErrRateLimited):
				limited++
			default:
				t.Errorf("request code: %v", err)
			}
		}()
	}
	wg.Wait()

	if sent != 2 || limited != 3 {
		t.Fatalf("sent = %d, limited = %d, want 2 and 3", sent, limited)
	}

	var sig model.ContractSignature
	if err := db.Where("contract_id = ? AND party_id = ?", contract.ID, alice.ID).First(&sig).Error; err != nil {
		t.Fatal(err)
	}
	if sig.CodeSendCount != 2 {
		t.Fatalf("code_send_count = %d, want 2", sig.CodeSendCount)
	}
}

func TestRequestCodeDeliveryFailureKeepsCode(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	sms.fail = true
	if err := eng.RequestCode(contract.ID, alice.ID); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}

	// The issued code survives the gateway failure and still verifies.
	var sig model.ContractSignature
	if err := db.Where("contract_id = ? AND party_id = ?", contract.ID, alice.ID).First(&sig).Error; err != nil {
		t.Fatal(err)
	}
	if sig.VerificationCode == "" {
		t.Fatal("code discarded on delivery failure")
	}
	if err := eng.VerifyCode(contract.ID, alice.ID, sig.VerificationCode, SignatureEvidence{}); err != nil {
		t.Fatalf("verify kept code: %v", err)
	}
}

func TestSignedPartyCannotSignAgain(t *testing.T) {
	eng, _, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	addTestParty(t, eng, contract.ID, "bob", "+35799000002")
	sendContract(t, eng, contract.ID)

	signViaCode(t, eng, sms, contract.ID, alice)

	if err := eng.RequestCode(contract.ID, alice.ID); !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("request after signing: err = %v, want ErrAlreadySigned", err)
	}
	if err := eng.VerifyCode(contract.ID, alice.ID, "123456", SignatureEvidence{}); !errors.Is(err, ErrAlreadySigned) {
		t.Fatalf("verify after signing: err = %v, want ErrAlreadySigned", err)
	}
}

func TestVerifyRejectedOnClosedContract(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	sendContract(t, eng, contract.ID)

	if err := eng.RequestCode(contract.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	code := sms.lastCode(alice.Phone)

	// The contract dies while the code is still valid.
	if _, err := eng.Cancel(testActor, contract.ID, "deal off"); err != nil {
		t.Fatal(err)
	}

	if err := eng.VerifyCode(contract.ID, alice.ID, code, SignatureEvidence{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	var sig model.ContractSignature
	if err := db.Where("contract_id = ? AND party_id = ?", contract.ID, alice.ID).First(&sig).Error; err != nil {
		t.Fatal(err)
	}
	if sig.CodeVerified {
		t.Fatal("signature verified on a cancelled contract")
	}
	var party model.ContractParty
	if err := db.First(&party, alice.ID).Error; err != nil {
		t.Fatal(err)
	}
	if party.IsSigned {
		t.Fatal("party marked signed on a cancelled contract")
	}
}

func TestHandwrittenSignatureFlow(t *testing.T) {
	eng, db, _, _ := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{SigningMethod: model.MethodHandwritten})
	alice := addTestParty(t, eng, contract.ID, "alice", "")
	sendContract(t, eng, contract.ID)

	err := eng.RecordHandwritten(contract.ID, alice.ID, SignatureEvidence{
		EvidenceRef: "uploads/sig-alice.png",
		IPAddress:   "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("record handwritten: %v", err)
	}

	var sig model.ContractSignature
	if err := db.Where("contract_id = ? AND party_id = ?", contract.ID, alice.ID).First(&sig).Error; err != nil {
		t.Fatal(err)
	}
	if !sig.CodeVerified || sig.SignedAt == nil {
		t.Fatal("signature not recorded")
	}
	if sig.EvidenceRef != "uploads/sig-alice.png" {
		t.Errorf("evidence_ref = %q", sig.EvidenceRef)
	}
	if sig.Method != model.MethodHandwritten {
		t.Errorf("method = %s, want handwritten", sig.Method)
	}
	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}
}

func TestConcurrentFinalSignaturesCompleteOnce(t *testing.T) {
	eng, db, _, sms := newTestEngine(t)
	contract := createTestContract(t, eng, CreateContractInput{})
	alice := addTestParty(t, eng, contract.ID, "alice", "+35799000001")
	bob := addTestParty(t, eng, contract.ID, "bob", "+35799000002")
	sendContract(t, eng, contract.ID)

	if err := eng.RequestCode(contract.ID, alice.ID); err != nil {
		t.Fatal(err)
	}
	if err := eng.RequestCode(contract.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	codes := map[uint]string{
		alice.ID: sms.lastCode(alice.Phone),
		bob.ID:   sms.lastCode(bob.Phone),
	}

	var wg sync.WaitGroup
	for _, p := range []*model.ContractParty{alice, bob} {
		wg.Add(1)
		go func(partyID uint) {
			defer wg.Done()
			if err := eng.VerifyCode(contract.ID, partyID, codes[partyID], SignatureEvidence{}); err != nil {
				t.Errorf("verify party %d: %v", partyID, err)
			}
		}(p.ID)
	}
	wg.Wait()

	if got := reloadContract(t, db, contract.ID); got.Status != model.StatusActive {
		t.Fatalf("status = %s, want active", got.Status)
	}

	// Exactly one pass through partially_signed -> signed.
	for _, to := range []model.ContractStatus{model.StatusPartiallySigned, model.StatusSigned} {
		var count int64
		db.Model(&model.ContractTransition{}).
			Where("contract_id = ? AND to_status = ?", contract.ID, to).
			Count(&count)
		if count != 1 {
			t.Errorf("transitions to %s = %d, want exactly 1", to, count)
		}
	}
}
