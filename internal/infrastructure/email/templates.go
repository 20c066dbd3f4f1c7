package email

import (
	"text/template"

	"github.com/bookwise-inc/bookwise/internal/domain/subscription"
)

type emailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustTemplate(kind subscription.NotificationKind, subject, body string) emailTemplate {
	return emailTemplate{
		subject: template.Must(template.New(string(kind) + ".subject").Parse(subject)),
		body:    template.Must(template.New(string(kind) + ".body").Parse(body)),
	}
}

// Bodies are Markdown. They are sent as the plain-text part and rendered for
// the HTML part.
var templates = map[subscription.NotificationKind]emailTemplate{
	subscription.NotifyRenewalReminder: mustTemplate(subscription.NotifyRenewalReminder,
		`Your {{.Plan}} plan renews in {{.DaysLeft}} day{{if ne .DaysLeft 1}}s{{end}}`,
		`Hi {{.TenantName}},

Your **{{.Plan}}** subscription renews on **{{.DueDate}}** for **{{.Amount}}**.
{{if .CheckoutURL}}
You can pay now: [complete your payment]({{.CheckoutURL}})
{{end}}
Thanks for booking with Bookwise.
`),

	subscription.NotifyPaymentRetry: mustTemplate(subscription.NotifyPaymentRetry,
		`Action needed: payment for your {{.Plan}} plan`,
		`Hi {{.TenantName}},

We still have not received the **{{.Amount}}** payment for your **{{.Plan}}** plan, due on {{.DueDate}}.
{{if .CheckoutURL}}
Please [complete your payment]({{.CheckoutURL}}) to keep your account active.
{{end}}`),

	subscription.NotifyPaymentFailed: mustTemplate(subscription.NotifyPaymentFailed,
		`Payment for your {{.Plan}} plan is overdue`,
		`Hi {{.TenantName}},

The payment for your **{{.Plan}}** plan due on {{.DueDate}} was not received.
We will try again over the next few days and send you a payment link each time.
`),

	subscription.NotifyGraceStarted: mustTemplate(subscription.NotifyGraceStarted,
		`Your {{.Plan}} plan is in its grace period`,
		`Hi {{.TenantName}},

All payment attempts for your **{{.Plan}}** plan have failed. Your account keeps working for now,
but it will be moved to the free plan if payment is not received soon.
`),

	subscription.NotifySuspended: mustTemplate(subscription.NotifySuspended,
		`Your {{.Plan}} plan has been suspended`,
		`Hi {{.TenantName}},

We did not receive payment for your **{{.Plan}}** plan, so your account now has free plan limits.
{{if .Reason}}
Reason: {{.Reason}}
{{end}}
Your data is safe. Paying the open invoice restores the plan immediately.
`),

	subscription.NotifyReactivated: mustTemplate(subscription.NotifyReactivated,
		`Welcome back: your {{.Plan}} plan is active again`,
		`Hi {{.TenantName}},

Payment received. Your **{{.Plan}}** plan is active again and your booking limits are restored.
Next renewal: **{{.DueDate}}**.
`),

	subscription.NotifyPaymentReceived: mustTemplate(subscription.NotifyPaymentReceived,
		`Payment received for your {{.Plan}} plan`,
		`Hi {{.TenantName}},

We received your payment of **{{.Amount}}**. Next renewal: **{{.DueDate}}**.
`),
}
