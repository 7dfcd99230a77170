package service

import (
	"context"
	"fmt"
	"strings"

	"nauvus-backend/internal/logger"
	"nauvus-backend/internal/metrics"
)

type alerter struct {
	email    EmailService
	opsEmail string
}

// NewAlerter logs and counts every alert. When both email and opsEmail are set
// the alert is also mailed to operations.
func NewAlerter(email EmailService, opsEmail string) Alerter {
	return &alerter{email: email, opsEmail: opsEmail}
}

func (a *alerter) Alert(ctx context.Context, kind AlertKind, err error, attrs ...any) {
	args := append([]any{"kind", kind, "error", err}, attrs...)
	logger.ErrorContext(ctx, "Operator alert", args...)
	metrics.IncAlert(string(kind))

	if a.email == nil || a.opsEmail == "" {
		return
	}
	subject := fmt.Sprintf("[nauvus] %s", kind)
	if serr := a.email.SendAlert(ctx, a.opsEmail, subject, alertBody(err, attrs)); serr != nil {
		logger.Warn("Failed to email operator alert", "kind", kind, "error", serr)
	}
}

func alertBody(err error, attrs []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v\n\n", err)
	for i := 0; i+1 < len(attrs); i += 2 {
		fmt.Fprintf(&b, "%v: %v\n", attrs[i], attrs[i+1])
	}
	return b.String()
}
