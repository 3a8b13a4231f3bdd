package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

const feeRecordColumns = `id, admission_number, student_name, class, section, total_fees, amount_paid, fee_amount,
	payment_date, payment_mode, receipt_number, status, contact_email, created_at, updated_at`

type feeRecordRow struct {
	ID              string      `db:"id"`
	AdmissionNumber string      `db:"admission_number"`
	StudentName     string      `db:"student_name"`
	Class           string      `db:"class"`
	Section         string      `db:"section"`
	TotalFees       float64     `db:"total_fees"`
	AmountPaid      float64     `db:"amount_paid"`
	FeeAmount       float64     `db:"fee_amount"`
	PaymentDate     null.Time   `db:"payment_date"`
	PaymentMode     string      `db:"payment_mode"`
	ReceiptNumber   string      `db:"receipt_number"`
	Status          string      `db:"status"`
	ContactEmail    null.String `db:"contact_email"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

type feeRepository struct {
	db *sqlx.DB
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *sqlx.DB) fee.Repository {
	return &feeRepository{db: db}
}

func toRow(rec fee.FeeRecord) feeRecordRow {
	return feeRecordRow{
		ID:              rec.ID,
		AdmissionNumber: rec.AdmissionNumber,
		StudentName:     rec.StudentName,
		Class:           rec.Class,
		Section:         rec.Section,
		TotalFees:       rec.TotalFees,
		AmountPaid:      rec.AmountPaid,
		FeeAmount:       rec.FeeAmount,
		PaymentDate:     null.NewTime(rec.PaymentDate.UTC(), !rec.PaymentDate.IsZero()),
		PaymentMode:     rec.PaymentMode,
		ReceiptNumber:   rec.ReceiptNumber,
		Status:          string(rec.Status),
		ContactEmail:    null.NewString(rec.ContactEmail, rec.ContactEmail != ""),
		CreatedAt:       rec.CreatedAt.UTC(),
		UpdatedAt:       rec.UpdatedAt.UTC(),
	}
}

func fromRow(row feeRecordRow) fee.FeeRecord {
	rec := fee.FeeRecord{
		ID:              row.ID,
		AdmissionNumber: row.AdmissionNumber,
		StudentName:     row.StudentName,
		Class:           row.Class,
		Section:         row.Section,
		TotalFees:       row.TotalFees,
		AmountPaid:      row.AmountPaid,
		FeeAmount:       row.FeeAmount,
		PaymentMode:     row.PaymentMode,
		ReceiptNumber:   row.ReceiptNumber,
		Status:          fee.Status(row.Status),
		ContactEmail:    row.ContactEmail.String,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.PaymentDate.Valid {
		rec.PaymentDate = fee.TruncateDate(row.PaymentDate.Time)
	}
	return rec
}

// trapNoRowsErr maps psql "no rows" err to fee.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return fee.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *feeRepository) CreateFeeRecord(ctx context.Context, rec fee.FeeRecord) (fee.FeeRecord, error) {
	rec.ID = uuid.New().String()
	q := `INSERT INTO fee_records (` + feeRecordColumns + `) VALUES (
		:id, :admission_number, :student_name, :class, :section, :total_fees, :amount_paid, :fee_amount,
		:payment_date, :payment_mode, :receipt_number, :status, :contact_email, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, toRow(rec)); err != nil {
		return fee.FeeRecord{}, errors.Wrap(err, "inserting fee record")
	}
	return rec, nil
}

func (repo *feeRepository) GetFeeRecord(ctx context.Context, id string) (fee.FeeRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return fee.FeeRecord{}, fee.ErrNotFound
	}
	var row feeRecordRow
	q := `SELECT ` + feeRecordColumns + ` FROM fee_records WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return fee.FeeRecord{}, trapNoRowsErr(err, "finding fee record")
	}
	return fromRow(row), nil
}

// whereClause builds the "WHERE ..." part of a listing query, with "?" bind vars.
func whereClause(filter fee.QueryFilter) (string, []interface{}, error) {
	var (
		conds []string
		args  []interface{}
	)

	// records with AdmissionNumber, StudentName or ReceiptNumber matching the search keyword
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		conds = append(conds, "(admission_number ILIKE ? OR student_name ILIKE ? OR receipt_number ILIKE ?)")
		args = append(args, val, val, val)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		cond, inArgs, err := sqlx.In("status IN (?)", statuses)
		if err != nil {
			return "", nil, errors.Wrap(err, "expanding statuses")
		}
		conds = append(conds, cond)
		args = append(args, inArgs...)
	}
	if filter.Class != "" {
		conds = append(conds, "LOWER(class) = LOWER(?)")
		args = append(args, filter.Class)
	}
	if filter.Section != "" {
		conds = append(conds, "LOWER(section) = LOWER(?)")
		args = append(args, filter.Section)
	}
	if !filter.PaidFrom.IsZero() {
		conds = append(conds, "payment_date >= ?")
		args = append(args, filter.PaidFrom.UTC())
	}
	if !filter.PaidTo.IsZero() {
		conds = append(conds, "payment_date <= ?")
		args = append(args, filter.PaidTo.UTC())
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func orderClause(ordering []core.DBOrdering) string {
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if _, ok := fee.OrderingFields[ord.Field]; ok { // never interpolate unknown columns
			orderList = append(orderList, ord.String())
		}
	}
	orderList = append(orderList, "id ASC")
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func (repo *feeRepository) QueryFeeRecords(
	ctx context.Context,
	filter fee.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]fee.FeeRecord, int, error) {
	where, args, err := whereClause(filter)
	if err != nil {
		return nil, 0, err
	}

	var count int
	if err = repo.db.GetContext(ctx, &count, repo.db.Rebind("SELECT COUNT(*) FROM fee_records"+where), args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting fee records")
	}

	q := "SELECT " + feeRecordColumns + " FROM fee_records" + where + orderClause(ordering)
	if !page.IsZero() {
		q += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit(), page.Offset())
	}

	var rows []feeRecordRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying fee records")
	}

	recs := make([]fee.FeeRecord, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, fromRow(row))
	}
	return recs, count, nil
}

func (repo *feeRepository) UpdateFeeRecord(
	ctx context.Context,
	id string,
	fn func(fee.FeeRecord) (fee.FeeRecord, error),
) (_ fee.FeeRecord, err error) {
	if _, err = uuid.Parse(id); err != nil {
		return fee.FeeRecord{}, fee.ErrNotFound
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return fee.FeeRecord{}, errors.Wrap(err, "starting transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var row feeRecordRow
	q := `SELECT ` + feeRecordColumns + ` FROM fee_records WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &row, q, id); err != nil {
		return fee.FeeRecord{}, trapNoRowsErr(err, "locking fee record")
	}

	stored := fromRow(row)
	rec, err := fn(stored)
	if err != nil {
		return fee.FeeRecord{}, err
	}
	rec.ID = stored.ID
	rec.CreatedAt = stored.CreatedAt

	q = `UPDATE fee_records SET
		admission_number = :admission_number, student_name = :student_name, class = :class, section = :section,
		total_fees = :total_fees, amount_paid = :amount_paid, fee_amount = :fee_amount,
		payment_date = :payment_date, payment_mode = :payment_mode, receipt_number = :receipt_number,
		status = :status, contact_email = :contact_email, updated_at = :updated_at
		WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, q, toRow(rec)); err != nil {
		return fee.FeeRecord{}, errors.Wrap(err, "updating fee record")
	}
	if err = tx.Commit(); err != nil {
		return fee.FeeRecord{}, errors.Wrap(err, "committing fee record update")
	}
	return rec, nil
}

func (repo *feeRepository) DeleteFeeRecords(ctx context.Context, ids ...string) (int, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return 0, nil
	}

	q, args, err := sqlx.In("DELETE FROM fee_records WHERE id IN (?)", valid)
	if err != nil {
		return 0, errors.Wrap(err, "expanding ids")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting fee records")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting fee records")
	}
	return int(cnt), nil
}
