package notifier

import (
	"go.uber.org/zap"
)

// TemplateKind names an outbound notification template. Rendering and
// delivery live outside this service; the engine only selects the kind and
// supplies the payload.
type TemplateKind string

const (
	KindContractExpiring  TemplateKind = "contract_expiring"
	KindSignatureReminder TemplateKind = "signature_reminder"
	KindPartySigned       TemplateKind = "party_signed"
	KindApprovalRequested TemplateKind = "approval_requested"
)

// Notifier delivers a templated notification to a recipient address
// (email or phone, depending on the template).
type Notifier interface {
	Send(recipient string, kind TemplateKind, payload map[string]interface{}) error
}

// LogNotifier writes notifications to the service log instead of delivering
// them. It is the default wiring; production deployments swap in a real
// transport behind the same interface.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier returns a Notifier that logs every send.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(recipient string, kind TemplateKind, payload map[string]interface{}) error {
	n.log.Info("notification sent",
		zap.String("recipient", recipient),
		zap.String("template", string(kind)),
		zap.Any("payload", payload),
	)
	return nil
}
