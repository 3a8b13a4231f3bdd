package sqlxrepos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

func TestWhereClause(t *testing.T) {
	from := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2021, 3, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		filter    fee.QueryFilter
		wantWhere string
		wantArgs  []interface{}
	}{
		{name: "no filter"},
		{
			name:      "search",
			filter:    fee.QueryFilter{Search: "doe"},
			wantWhere: " WHERE (admission_number ILIKE ? OR student_name ILIKE ? OR receipt_number ILIKE ?)",
			wantArgs:  []interface{}{"%doe%", "%doe%", "%doe%"},
		},
		{
			name:      "statuses",
			filter:    fee.QueryFilter{Statuses: []fee.Status{fee.StatusPaid, fee.StatusPartial}},
			wantWhere: " WHERE status IN (?, ?)",
			wantArgs:  []interface{}{"Paid", "Partial"},
		},
		{
			name:      "class section and dates",
			filter:    fee.QueryFilter{Class: "5", Section: "B", PaidFrom: from, PaidTo: to},
			wantWhere: " WHERE LOWER(class) = LOWER(?) AND LOWER(section) = LOWER(?) AND payment_date >= ? AND payment_date <= ?",
			wantArgs:  []interface{}{"5", "B", from, to},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := whereClause(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantWhere, where)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestOrderClause(t *testing.T) {
	got := orderClause([]core.DBOrdering{
		{Field: "payment_date"},
		{Field: "student_name", Ascending: true},
		{Field: "1; DROP TABLE fee_records"},
	})
	assert.Equal(t, " ORDER BY payment_date DESC, student_name ASC, id ASC", got)
}

func TestRowMapping(t *testing.T) {
	now := time.Now().UTC()
	rec := fee.FeeRecord{
		ID:              "0b6f1f8e-4a43-4b0f-a0a5-2b1e3c7f6d10",
		AdmissionNumber: "ADM-1",
		StudentName:     "Jane Doe",
		Class:           "5",
		Section:         "B",
		TotalFees:       5000,
		AmountPaid:      3000,
		FeeAmount:       3000,
		PaymentDate:     fee.TruncateDate(now),
		Status:          fee.StatusPartial,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	row := toRow(rec)
	assert.True(t, row.PaymentDate.Valid)
	assert.False(t, row.ContactEmail.Valid)
	assert.Equal(t, rec, fromRow(row))

	rec.PaymentDate = time.Time{}
	rec.ContactEmail = "parent@test.test"
	row = toRow(rec)
	assert.False(t, row.PaymentDate.Valid)
	assert.True(t, row.ContactEmail.Valid)
	assert.Equal(t, rec, fromRow(row))
}
