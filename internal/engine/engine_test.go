package engine

import (
	"fmt"
	"sync"
	"testing"

	"contract-service/internal/model"
	"contract-service/pkg/notifier"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database. A single connection
// serializes writers the way row locks do in Postgres.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

type sentNotification struct {
	Recipient string
	Kind      notifier.TemplateKind
	Payload   map[string]interface{}
}

// fakeNotifier records sends for assertions.
type fakeNotifier struct {
	mu    sync.Mutex
	sends []sentNotification
}

func (f *fakeNotifier) Send(recipient string, kind notifier.TemplateKind, payload map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentNotification{Recipient: recipient, Kind: kind, Payload: payload})
	return nil
}

func (f *fakeNotifier) countKind(kind notifier.TemplateKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sends {
		if s.Kind == kind {
			n++
		}
	}
	return n
}

// fakeSMS captures the last code sent per phone number.
type fakeSMS struct {
	mu    sync.Mutex
	codes map[string]string
	fail  bool
}

func newFakeSMS() *fakeSMS {
	return &fakeSMS{codes: make(map[string]string)}
}

func (f *fakeSMS) SendCode(phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("gateway unavailable")
	}
	f.codes[phone] = code
	return nil
}

func (f *fakeSMS) lastCode(phone string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.codes[phone]
}

func newTestEngine(t *testing.T) (*Engine, *gorm.DB, *fakeNotifier, *fakeSMS) {
	t.Helper()
	db := newTestDB(t)
	n := &fakeNotifier{}
	sms := newFakeSMS()
	eng := New(db, n, sms, Options{}, zap.NewNop())
	return eng, db, n, sms
}

// testActor is the default acting user for engine tests.
var testActor = Actor{UserID: 7, CompanyID: 1}

// createTestContract creates a draft contract with sensible defaults.
func createTestContract(t *testing.T, eng *Engine, in CreateContractInput) *model.Contract {
	t.Helper()
	if in.Title == "" {
		in.Title = "Service agreement"
	}
	if in.ContractTypeID == 0 {
		in.ContractTypeID = 1
	}
	if in.OwnerEmail == "" {
		in.OwnerEmail = "owner@example.com"
	}
	contract, err := eng.CreateContract(testActor, in)
	if err != nil {
		t.Fatalf("create contract: %v", err)
	}
	return contract
}

// addTestParty attaches a party with a phone so the SMS flow works.
func addTestParty(t *testing.T, eng *Engine, contractID uint, name, phone string) *model.ContractParty {
	t.Helper()
	party, err := eng.AddParty(testActor, contractID, PartyInput{
		Name:  name,
		Phone: phone,
		Email: name + "@example.com",
	})
	if err != nil {
		t.Fatalf("add party %s: %v", name, err)
	}
	return party
}

// signViaCode runs the request-code/verify-code round trip for one party.
func signViaCode(t *testing.T, eng *Engine, sms *fakeSMS, contractID uint, party *model.ContractParty) {
	t.Helper()
	if err := eng.RequestCode(contractID, party.ID); err != nil {
		t.Fatalf("request code for party %d: %v", party.ID, err)
	}
	code := sms.lastCode(party.Phone)
	if code == "" {
		t.Fatalf("no code captured for %s", party.Phone)
	}
	if err := eng.VerifyCode(contractID, party.ID, code, SignatureEvidence{IPAddress: "10.0.0.1"}); err != nil {
		t.Fatalf("verify code for party %d: %v", party.ID, err)
	}
}

func reloadContract(t *testing.T, db *gorm.DB, id uint) *model.Contract {
	t.Helper()
	var c model.Contract
	if err := db.First(&c, id).Error; err != nil {
		t.Fatalf("reload contract %d: %v", id, err)
	}
	return &c
}
