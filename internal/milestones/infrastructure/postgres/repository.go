package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
	"marketplace-settlement/internal/storage/pgtx"
)

const (
	defaultMilestonesTable = "milestones"
	defaultPaymentsTable   = "milestone_payments"
)

// Repository persists milestones and milestone payments.
type Repository struct {
	db              *sql.DB
	milestonesTable string
	paymentsTable   string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithMilestonesTable overrides the milestones table.
func WithMilestonesTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.milestonesTable = table
		}
	}
}

// WithPaymentsTable overrides the payments table.
func WithPaymentsTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.paymentsTable = table
		}
	}
}

// NewRepository constructs a repository with defaults.
func NewRepository(db *sql.DB, opts ...RepositoryOption) *Repository {
	repo := &Repository{
		db:              db,
		milestonesTable: defaultMilestonesTable,
		paymentsTable:   defaultPaymentsTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// CreateSchedule inserts every milestone of an account in one transaction.
// The (escrow_account_id, sequence) unique key rejects a second schedule.
func (r *Repository) CreateSchedule(ctx context.Context, schedule []milestones.Milestone) error {
	if r == nil || r.db == nil {
		return errors.New("milestones repo: nil db")
	}
	if len(schedule) == 0 {
		return milestones.ErrEmptyPlan
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, escrow_account_id, sub_order_id, sequence, name, percentage, amount,
	status, due_at, installer_id, version, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,1,$11,$11)`, r.milestonesTable)

	err := pgtx.Run(ctx, r.db, func(tx *sql.Tx) error {
		for _, m := range schedule {
			_, err := tx.ExecContext(ctx, query,
				m.ID, m.AccountID, m.SubOrderID, m.Sequence, m.Name, m.Percentage, m.Amount,
				string(m.Status), nullTime(m.DueAt), m.InstallerID, m.CreatedAt.UTC())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if pgtx.IsUniqueViolation(err) {
		return fmt.Errorf("milestones repo: account %s: %w", schedule[0].AccountID, milestones.ErrAlreadyScheduled)
	}
	return err
}

const milestoneColumns = `id, escrow_account_id, sub_order_id, sequence, name, percentage, amount,
	status, due_at, installer_id, verified_at, version, created_at, updated_at`

// Get loads a milestone.
func (r *Repository) Get(ctx context.Context, id string) (*milestones.Milestone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("milestones repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 LIMIT 1`, milestoneColumns, r.milestonesTable)
	m, err := scanMilestone(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByAccount returns the milestones of an account by sequence.
func (r *Repository) ListByAccount(ctx context.Context, accountID string) ([]milestones.Milestone, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("milestones repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE escrow_account_id = $1 ORDER BY sequence ASC`, milestoneColumns, r.milestonesTable)
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []milestones.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

// Update saves status changes under an optimistic version check.
func (r *Repository) Update(ctx context.Context, m *milestones.Milestone) error {
	if r == nil || r.db == nil {
		return errors.New("milestones repo: nil db")
	}
	if m == nil {
		return errors.New("milestones repo: nil milestone")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	verified_at = $3,
	version = version + 1,
	updated_at = $4
WHERE id = $1 AND version = $5`, r.milestonesTable)
	result, err := r.db.ExecContext(ctx, query, m.ID, string(m.Status), nullTime(m.VerifiedAt), m.UpdatedAt.UTC(), m.Version)
	if err != nil {
		return pgtx.Classify(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("milestones repo: milestone %s: %w: %w", m.ID, milestones.ErrVersionConflict, kernel.ErrResourceContention)
	}
	m.Version++
	return nil
}

// CreatePayment records a disbursement.
func (r *Repository) CreatePayment(ctx context.Context, payment milestones.Payment) error {
	if r == nil || r.db == nil {
		return errors.New("milestones repo: nil db")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, milestone_id, recipient_type, recipient_id, amount, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)`, r.paymentsTable)
	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.MilestoneID, payment.RecipientType, payment.RecipientID,
		payment.Amount, string(payment.Status), payment.CreatedAt.UTC())
	return err
}

// ListPayments returns the payments of a milestone.
func (r *Repository) ListPayments(ctx context.Context, milestoneID string) ([]milestones.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("milestones repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, milestone_id, recipient_type, recipient_id, amount, status, created_at
FROM %s
WHERE milestone_id = $1
ORDER BY created_at ASC`, r.paymentsTable)
	rows, err := r.db.QueryContext(ctx, query, milestoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []milestones.Payment
	for rows.Next() {
		var p milestones.Payment
		var status string
		if err := rows.Scan(&p.ID, &p.MilestoneID, &p.RecipientType, &p.RecipientID, &p.Amount, &status, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Status = milestones.PaymentStatus(status)
		result = append(result, p)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMilestone(row rowScanner) (milestones.Milestone, error) {
	var (
		m               milestones.Milestone
		status          string
		due, verifiedAt sql.NullTime
	)
	if err := row.Scan(&m.ID, &m.AccountID, &m.SubOrderID, &m.Sequence, &m.Name, &m.Percentage, &m.Amount,
		&status, &due, &m.InstallerID, &verifiedAt, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return milestones.Milestone{}, err
	}
	parsed, ok := milestones.ParseStatus(status)
	if !ok {
		return milestones.Milestone{}, fmt.Errorf("milestones repo: unknown status %q", status)
	}
	m.Status = parsed
	if due.Valid {
		t := due.Time.UTC()
		m.DueAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time.UTC()
		m.VerifiedAt = &t
	}
	return m, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
