package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

type feeRepository struct {
	db *feeTable
}

var _ fee.Repository = (*feeRepository)(nil) // interface compliance check

func NewFeeRepository(db *DB) fee.Repository {
	return &feeRepository{db: db.fee}
}

func (repo *feeRepository) query() []fee.FeeRecord {
	recs := make([]fee.FeeRecord, 0, len(repo.db.table))
	for _, r := range repo.db.table {
		recs = append(recs, *r)
	}
	return recs
}

func (repo *feeRepository) CreateFeeRecord(_ context.Context, rec fee.FeeRecord) (fee.FeeRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	rec.ID = uuid.New().String()
	repo.db.table[rec.ID] = &rec
	return rec, nil
}

func (repo *feeRepository) GetFeeRecord(_ context.Context, id string) (fee.FeeRecord, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return *rec, nil
	}
	return fee.FeeRecord{}, fee.ErrNotFound
}

func (repo *feeRepository) QueryFeeRecords(
	_ context.Context,
	filter fee.QueryFilter,
	ordering []core.DBOrdering,
	page core.Pagination,
) ([]fee.FeeRecord, int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]fee.FeeRecord, 0, len(repo.db.table))
	for _, r := range repo.query() {
		if matches(r, filter) {
			recs = append(recs, r)
		}
	}
	sortRecords(recs, ordering)

	count := len(recs)
	if !page.IsZero() {
		start := page.Offset()
		if start > count {
			start = count
		}
		end := start + page.Limit()
		if end > count {
			end = count
		}
		recs = recs[start:end]
	}
	return recs, count, nil
}

func (repo *feeRepository) UpdateFeeRecord(
	_ context.Context,
	id string,
	fn func(fee.FeeRecord) (fee.FeeRecord, error),
) (fee.FeeRecord, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[id]
	if !ok {
		return fee.FeeRecord{}, fee.ErrNotFound
	}
	rec, err := fn(*stored)
	if err != nil {
		return fee.FeeRecord{}, err
	}
	rec.ID = stored.ID
	rec.CreatedAt = stored.CreatedAt
	repo.db.table[id] = &rec
	return rec, nil
}

func (repo *feeRepository) DeleteFeeRecords(_ context.Context, ids ...string) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var deleted int
	for _, id := range ids {
		if _, ok := repo.db.table[id]; ok {
			delete(repo.db.table, id)
			deleted++
		}
	}
	return deleted, nil
}

func matches(rec fee.FeeRecord, filter fee.QueryFilter) bool {
	// records with search keyword matching any AdmissionNumber, StudentName or ReceiptNumber ?
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(rec.AdmissionNumber), search) &&
			!strings.Contains(strings.ToLower(rec.StudentName), search) &&
			!strings.Contains(strings.ToLower(rec.ReceiptNumber), search) {
			return false
		}
	}
	// records with any of the specified statuses
	if len(filter.Statuses) > 0 {
		var found bool
		for _, st := range filter.Statuses {
			if rec.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Class != "" && !strings.EqualFold(rec.Class, filter.Class) {
		return false
	}
	if filter.Section != "" && !strings.EqualFold(rec.Section, filter.Section) {
		return false
	}
	if !filter.PaidFrom.IsZero() && rec.PaymentDate.Before(filter.PaidFrom) {
		return false
	}
	if !filter.PaidTo.IsZero() && rec.PaymentDate.After(filter.PaidTo) {
		return false
	}
	return true
}

// compare returns -1, 0 or 1 depending on how a and b compare on the given column.
func compare(a, b fee.FeeRecord, column string) int {
	cmpFloat := func(x, y float64) int {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}

	switch column {
	case "admission_number":
		return strings.Compare(a.AdmissionNumber, b.AdmissionNumber)
	case "student_name":
		return strings.Compare(a.StudentName, b.StudentName)
	case "class":
		return strings.Compare(a.Class, b.Class)
	case "section":
		return strings.Compare(a.Section, b.Section)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "total_fees":
		return cmpFloat(a.TotalFees, b.TotalFees)
	case "amount_paid":
		return cmpFloat(a.AmountPaid, b.AmountPaid)
	case "fee_amount":
		return cmpFloat(a.FeeAmount, b.FeeAmount)
	case "payment_date":
		return cmpTime(a.PaymentDate, b.PaymentDate)
	case "created_at":
		return cmpTime(a.CreatedAt, b.CreatedAt)
	case "updated_at":
		return cmpTime(a.UpdatedAt, b.UpdatedAt)
	}
	return 0
}

func sortRecords(recs []fee.FeeRecord, ordering []core.DBOrdering) {
	sort.SliceStable(recs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(recs[i], recs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return recs[i].ID < recs[j].ID
	})
}
