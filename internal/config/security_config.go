// config/security_config.go
package config

type SecurityLevel int

const (
	SecurityPublic   SecurityLevel = iota // No authentication (signature-verified webhooks, probes)
	SecurityCarrier                       // Carrier access token required
	SecurityOperator                      // Operator access token required
)

// EndpointSecurityConfig maps named HTTP routes to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Public
	"StripeWebhook":    SecurityPublic,
	"Healthz":          SecurityPublic,
	"Metrics":          SecurityPublic,
	"DownloadDocument": SecurityPublic, // presigned mock storage links

	// Carrier
	"GetPaymentTypes":   SecurityCarrier,
	"GetPaymentDetails": SecurityCarrier,
	"AcceptPayment":     SecurityCarrier,
	"DeliverLoad":       SecurityCarrier,
	"GetBalance":        SecurityCarrier,
	"ExportSettlements": SecurityCarrier,

	// Operator
	"ReconcilePayouts": SecurityOperator,
	"RegisterBroker":   SecurityOperator,
	"RegisterCarrier":  SecurityOperator,
	"PublishInvoice":   SecurityOperator,
}

// GetSecurityLevel returns the security level for a given route name
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown routes
	return SecurityOperator
}
