package notify

import (
	"bytes"
	"errors"
	"text/template"
)

// Default templates per event kind.
const (
	DefaultOrderCreatedTemplate = `[Order Created]
Order: {{.ParentOrderID}}
Sub-order: {{.SubOrderID}}
Vendor: {{.VendorID}}
Total: {{.Total}}
Payment: {{.PaymentType}}{{ if .Milestones }}
Milestones: {{.Milestones}}{{ end }}`

	DefaultMilestoneVerifiedTemplate = `[Milestone Verified]
Milestone: {{.MilestoneID}}
Sub-order: {{.SubOrderID}}
Released: {{.Amount}} to {{.RecipientType}} {{.RecipientID}}`

	DefaultRefundIssuedTemplate = `[Refund Issued]
Sub-order: {{.SubOrderID}}
Amount: {{.Amount}}{{ if .Reason }}
Reason: {{.Reason}}{{ end }}`
)

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to fallback when
// tpl is empty.
func NewTemplate(name, tpl, fallback string) (*Template, error) {
	if tpl == "" {
		tpl = fallback
	}
	parsed, err := template.New(name).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data any) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("notify template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Templates holds one template per event kind.
type Templates struct {
	OrderCreated      *Template
	MilestoneVerified *Template
	RefundIssued      *Template
}

// DefaultTemplates parses the built-in templates.
func DefaultTemplates() (Templates, error) {
	return ParseTemplates("", "", "")
}

// ParseTemplates parses overrides; empty strings keep the defaults.
func ParseTemplates(orderCreated, milestoneVerified, refundIssued string) (Templates, error) {
	var (
		out Templates
		err error
	)
	if out.OrderCreated, err = NewTemplate("order-created", orderCreated, DefaultOrderCreatedTemplate); err != nil {
		return Templates{}, err
	}
	if out.MilestoneVerified, err = NewTemplate("milestone-verified", milestoneVerified, DefaultMilestoneVerifiedTemplate); err != nil {
		return Templates{}, err
	}
	if out.RefundIssued, err = NewTemplate("refund-issued", refundIssued, DefaultRefundIssuedTemplate); err != nil {
		return Templates{}, err
	}
	return out, nil
}
