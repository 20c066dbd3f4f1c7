package constants

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"

	HeaderAuthorization = "Authorization"
	HeaderXRequestID    = "X-Request-ID"
	HeaderStripeSig     = "Stripe-Signature"

	ContentTypeJSON = "application/json"

	ContextKeyRequestID = "request_id"
	ContextKeyAdminSub  = "admin_subject"

	TableTenants       = "tenants"
	TableSubscriptions = "subscriptions"
	TablePayments      = "payments"
)
