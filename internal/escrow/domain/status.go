package escrow

// Status is the lifecycle state of an escrow account.
type Status string

const (
	StatusCreated        Status = "created"
	StatusFunded         Status = "funded"
	StatusPartialRelease Status = "partial_release"
	StatusCompleted      Status = "completed"
	StatusDisputed       Status = "disputed"
	StatusRefunded       Status = "refunded"
)

// ParseStatus validates a stored status.
func ParseStatus(value string) (Status, bool) {
	switch Status(value) {
	case StatusCreated, StatusFunded, StatusPartialRelease, StatusCompleted, StatusDisputed, StatusRefunded:
		return Status(value), true
	default:
		return "", false
	}
}

// Closed reports whether the account holds nothing and accepts no more money.
func (s Status) Closed() bool {
	return s == StatusCompleted || s == StatusRefunded
}

// Funded reports whether money has reached the account.
func (s Status) Funded() bool {
	switch s {
	case StatusFunded, StatusPartialRelease, StatusCompleted, StatusDisputed:
		return true
	default:
		return false
	}
}

// RecipientType identifies who receives a release.
type RecipientType string

const (
	RecipientVendor    RecipientType = "vendor"
	RecipientInstaller RecipientType = "installer"
)

// Recipient is the payee of a release.
type Recipient struct {
	Type RecipientType `json:"type"`
	ID   string        `json:"id"`
}

// Valid reports whether the recipient can be paid.
func (r Recipient) Valid() bool {
	return r.ID != "" && (r.Type == RecipientVendor || r.Type == RecipientInstaller)
}
