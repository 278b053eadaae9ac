package smsgateway

import (
	"go.uber.org/zap"
)

// Gateway sends a one-time verification code to a phone number. Delivery is
// fire-and-forget: a failure is surfaced to the caller as a recoverable error
// and never mutates signing state.
type Gateway interface {
	SendCode(phone, code string) error
}

// LogGateway logs codes instead of sending them. Default wiring for
// development; production swaps in a provider-backed implementation.
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway returns a Gateway that logs every code send.
func NewLogGateway(log *zap.Logger) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) SendCode(phone, code string) error {
	g.log.Info("verification code sent",
		zap.String("phone", phone),
		zap.String("code", code),
	)
	return nil
}
