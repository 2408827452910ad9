package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phu-boop/Freelance-Marketplace-sub002/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const contractColumns = `
	id, client_id, employee_id, jurisdiction, recurring_amount::text,
	eor_fee_percentage::text, pay_cycle, status, next_payroll_at, created_at`

func scanContract(row pgx.Row) (*domain.EORContract, error) {
	var (
		c           domain.EORContract
		amount, pct string
	)
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.EmployeeID,
		&c.Jurisdiction,
		&amount,
		&pct,
		&c.PayCycle,
		&c.Status,
		&c.NextPayrollAt,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := parseDecimals([]*decimal.Decimal{&c.RecurringAmount, &c.EORFeePercentage}, amount, pct); err != nil {
		return nil, err
	}
	return &c, nil
}

func (q *queries) InsertContract(ctx context.Context, c *domain.EORContract) error {
	query := `
		INSERT INTO eor_contracts (
			id, client_id, employee_id, jurisdiction, recurring_amount,
			eor_fee_percentage, pay_cycle, status, next_payroll_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err := q.db.QueryRow(ctx, query,
		c.ID,
		c.ClientID,
		c.EmployeeID,
		c.Jurisdiction,
		c.RecurringAmount.String(),
		c.EORFeePercentage.String(),
		c.PayCycle,
		c.Status,
		c.NextPayrollAt,
	).Scan(&c.CreatedAt)
	return mapUnique(err)
}

func (q *queries) GetContract(ctx context.Context, id string) (*domain.EORContract, error) {
	c, err := scanContract(q.db.QueryRow(ctx, `SELECT `+contractColumns+` FROM eor_contracts WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return c, nil
}

func (q *queries) ListDueContracts(ctx context.Context, now time.Time) ([]*domain.EORContract, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+contractColumns+` FROM eor_contracts
		WHERE status = 'ACTIVE' AND next_payroll_at <= $1
		ORDER BY next_payroll_at, id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.EORContract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *queries) AdvanceContract(ctx context.Context, id string, next time.Time) error {
	tag, err := q.db.Exec(ctx, `UPDATE eor_contracts SET next_payroll_at = $2 WHERE id = $1`, id, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (q *queries) ListActiveBenefits(ctx context.Context, employeeID string) ([]*domain.BenefitEnrollment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, employee_id, plan_name, monthly_cost::text, active
		FROM benefit_enrollments
		WHERE employee_id = $1 AND active = true
		ORDER BY id
	`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.BenefitEnrollment
	for rows.Next() {
		var (
			b    domain.BenefitEnrollment
			cost string
		)
		if err := rows.Scan(&b.ID, &b.EmployeeID, &b.PlanName, &cost, &b.Active); err != nil {
			return nil, err
		}
		if b.MonthlyCost, err = parseDecimal(cost); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (q *queries) InsertBenefit(ctx context.Context, b *domain.BenefitEnrollment) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO benefit_enrollments (id, employee_id, plan_name, monthly_cost, active)
		VALUES ($1, $2, $3, $4, $5)
	`, b.ID, b.EmployeeID, b.PlanName, b.MonthlyCost.String(), b.Active)
	return mapUnique(err)
}

func (q *queries) GetTaxSetting(ctx context.Context, jurisdiction string) (*domain.TaxSetting, error) {
	var (
		s    domain.TaxSetting
		rate string
	)
	err := q.db.QueryRow(ctx,
		`SELECT jurisdiction, rate::text FROM tax_settings WHERE jurisdiction = $1`, jurisdiction,
	).Scan(&s.Jurisdiction, &rate)
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	if s.Rate, err = parseDecimal(rate); err != nil {
		return nil, err
	}
	return &s, nil
}

func (q *queries) UpsertTaxSetting(ctx context.Context, s *domain.TaxSetting) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO tax_settings (jurisdiction, rate) VALUES ($1, $2)
		ON CONFLICT (jurisdiction) DO UPDATE SET rate = EXCLUDED.rate
	`, s.Jurisdiction, s.Rate.String())
	return err
}

func scanPayrollRecord(row pgx.Row) (*domain.PayrollRecord, error) {
	var (
		r         domain.PayrollRecord
		breakdown []byte
	)
	err := row.Scan(&r.ID, &r.ContractID, &r.Period, &breakdown, &r.Status, &r.ReferenceID, &r.InvoiceID, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breakdown, &r.Breakdown); err != nil {
		return nil, fmt.Errorf("decode payroll breakdown: %w", err)
	}
	return &r, nil
}

func (q *queries) GetPayrollRecord(ctx context.Context, contractID, period string) (*domain.PayrollRecord, error) {
	r, err := scanPayrollRecord(q.db.QueryRow(ctx, `
		SELECT id, contract_id, period, breakdown, status, reference_id, invoice_id, created_at
		FROM payroll_records WHERE contract_id = $1 AND period = $2
	`, contractID, period))
	if err != nil {
		return nil, mapNotFound(err, domain.ErrNotFound)
	}
	return r, nil
}

func (q *queries) InsertPayrollRecord(ctx context.Context, r *domain.PayrollRecord) error {
	breakdown, err := json.Marshal(r.Breakdown)
	if err != nil {
		return err
	}
	err = q.db.QueryRow(ctx, `
		INSERT INTO payroll_records (id, contract_id, period, breakdown, status, reference_id, invoice_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, r.ID, r.ContractID, r.Period, breakdown, r.Status, r.ReferenceID, r.InvoiceID).Scan(&r.CreatedAt)
	return mapUnique(err)
}

func (q *queries) ListPayrollRecords(ctx context.Context, contractID string) ([]*domain.PayrollRecord, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, contract_id, period, breakdown, status, reference_id, invoice_id, created_at
		FROM payroll_records WHERE contract_id = $1 ORDER BY period DESC
	`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.PayrollRecord
	for rows.Next() {
		r, err := scanPayrollRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
