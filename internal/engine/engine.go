package engine

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"contract-service/pkg/notifier"
	"contract-service/pkg/smsgateway"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options tunes the signing protocol. Zero values fall back to defaults.
type Options struct {
	// CodeTTL is how long a verification code stays valid.
	CodeTTL time.Duration
	// SessionTTL is the signing-session deadline set when a contract is
	// sent for signing.
	SessionTTL time.Duration
	// MaxCodeSendsPerHour caps code requests per party (fixed window).
	MaxCodeSendsPerHour int
	// MaxVerifyAttempts is the number of consecutive mismatches after
	// which the current code is invalidated.
	MaxVerifyAttempts int
}

// DefaultOptions are the production defaults.
func DefaultOptions() Options {
	return Options{
		CodeTTL:             10 * time.Minute,
		SessionTTL:          30 * 24 * time.Hour,
		MaxCodeSendsPerHour: 5,
		MaxVerifyAttempts:   3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.CodeTTL <= 0 {
		o.CodeTTL = def.CodeTTL
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = def.SessionTTL
	}
	if o.MaxCodeSendsPerHour <= 0 {
		o.MaxCodeSendsPerHour = def.MaxCodeSendsPerHour
	}
	if o.MaxVerifyAttempts <= 0 {
		o.MaxVerifyAttempts = def.MaxVerifyAttempts
	}
	return o
}

// Engine is the contract lifecycle and signing engine. It owns the numbering
// allocator, the status state machine, the per-party signing protocol and the
// approval workflow; handlers and the scheduler call into it.
type Engine struct {
	db        *gorm.DB
	allocator *Allocator
	notifier  notifier.Notifier
	sms       smsgateway.Gateway
	opts      Options
	log       *zap.Logger

	// Per-contract mutexes serialize the signature completion check and the
	// code-request window so two concurrent calls cannot both observe "not
	// yet complete" or both pass the send limit. Entries are never evicted,
	// so the map grows with the set of contracts touched during the process
	// lifetime (a few dozen bytes each).
	mu            sync.Mutex
	contractLocks map[uint]*sync.Mutex
}

// New wires an engine over db with the given collaborators.
func New(db *gorm.DB, n notifier.Notifier, sms smsgateway.Gateway, opts Options, log *zap.Logger) *Engine {
	return &Engine{
		db:            db,
		allocator:     NewAllocator(db),
		notifier:      n,
		sms:           sms,
		opts:          opts.withDefaults(),
		log:           log,
		contractLocks: make(map[uint]*sync.Mutex),
	}
}

// lockContract acquires the contract-scoped mutex and returns the unlock.
func (e *Engine) lockContract(contractID uint) func() {
	e.mu.Lock()
	l, ok := e.contractLocks[contractID]
	if !ok {
		l = &sync.Mutex{}
		e.contractLocks[contractID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// generateNumericCode returns a random code of n decimal digits.
func generateNumericCode(n int) string {
	code := make([]byte, n)
	for i := range code {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		code[i] = byte('0' + v.Int64())
	}
	return string(code)
}
