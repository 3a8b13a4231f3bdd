package fee

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trezcool/schoolfees/core"
)

var (
	// errors
	ErrNotFound      = errors.New("fee record not found")
	ErrKeyInProgress = errors.New("a request with this idempotency key is still in progress")

	// nowFunc is swapped in tests
	nowFunc = time.Now
)

type (
	Repository interface {
		CreateFeeRecord(ctx context.Context, rec FeeRecord) (FeeRecord, error)
		GetFeeRecord(ctx context.Context, id string) (FeeRecord, error)
		// QueryFeeRecords applies AND operation on available QueryFilter fields and returns the requested page
		// along with the total number of matching records.
		// QueryFilter.Search does a case-insensitive match on one of AdmissionNumber, StudentName or ReceiptNumber.
		QueryFeeRecords(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) ([]FeeRecord, int, error)
		// UpdateFeeRecord reads the stored record, passes it to fn and stores fn's result, as one atomic operation.
		// Nothing is stored when fn returns an error.
		UpdateFeeRecord(ctx context.Context, id string, fn func(FeeRecord) (FeeRecord, error)) (FeeRecord, error)
		DeleteFeeRecords(ctx context.Context, ids ...string) (int, error)
	}

	// IdempotencyStore remembers the record created for an Idempotency-Key.
	IdempotencyStore interface {
		// Once runs fn unless key was already seen, in which case the stored id is returned with replayed set.
		// ErrKeyInProgress is returned while another call holding key has not finished.
		Once(key string, fn func() (string, error)) (id string, replayed bool, err error)
	}

	Service struct {
		repo    Repository
		idem    IdempotencyStore
		mailSvc core.EmailService
	}

	EditRequest struct {
		Field string      `json:"field"`
		Value interface{} `json:"value"`
	}

	PreviewRequest struct {
		State  *ReconciliationState `json:"state"`
		Record FeeRecord            `json:"record"`
		Edits  []EditRequest        `json:"edits"`
	}

	PreviewResult struct {
		State  ReconciliationState `json:"state"`
		Record FeeRecord           `json:"record"`
	}
)

// NewService returns a fee Service. idem and mailSvc are optional.
func NewService(repo Repository, mailSvc core.EmailService, idem IdempotencyStore) *Service {
	return &Service{repo: repo, idem: idem, mailSvc: mailSvc}
}

func (svc *Service) Create(ctx context.Context, nfr NewFeeRecord) (FeeRecord, error) {
	now := nowFunc().UTC()
	rec := FeeRecord{
		AdmissionNumber: nfr.AdmissionNumber,
		StudentName:     nfr.StudentName,
		Class:           nfr.Class,
		Section:         nfr.Section,
		PaymentDate:     TruncateDate(now),
		PaymentMode:     nfr.PaymentMode,
		ReceiptNumber:   nfr.ReceiptNumber,
		ContactEmail:    nfr.ContactEmail,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if d, ok := ParseDate(nfr.PaymentDate); ok {
		rec.PaymentDate = d
	}

	state := InitReconciliation(rec)
	rec = ApplyFieldChange(state, TotalFeesChanged(nfr.TotalFees), rec)
	rec = ApplyFieldChange(state, FeeAmountChanged(nfr.FeeAmount), rec)
	if nfr.Status != "" {
		rec = ApplyFieldChange(state, StatusChanged(nfr.Status), rec)
	}
	if rec.Status == "" {
		rec.Status = DeriveStatus(rec.AmountPaid, rec.TotalFees)
	}
	if err := checkPersistable(rec); err != nil {
		return FeeRecord{}, err
	}

	rec, err := svc.repo.CreateFeeRecord(ctx, rec)
	if err != nil {
		return FeeRecord{}, err
	}
	svc.sendReceipt(rec)
	return rec, nil
}

// CreateOnce is Create guarded by an idempotency key: a replayed key returns the record created the first time.
func (svc *Service) CreateOnce(ctx context.Context, key string, nfr NewFeeRecord) (rec FeeRecord, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" || svc.idem == nil {
		rec, err = svc.Create(ctx, nfr)
		return rec, false, err
	}

	id, replayed, err := svc.idem.Once(key, func() (string, error) {
		created, err := svc.Create(ctx, nfr)
		if err != nil {
			return "", err
		}
		rec = created
		return created.ID, nil
	})
	if err != nil {
		return FeeRecord{}, false, err
	}
	if replayed {
		rec, err = svc.repo.GetFeeRecord(ctx, id)
		if err != nil {
			return FeeRecord{}, false, err
		}
	}
	return rec, replayed, nil
}

func (svc *Service) Get(ctx context.Context, id string) (FeeRecord, error) {
	return svc.repo.GetFeeRecord(ctx, strings.TrimSpace(id))
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, page core.Pagination) (Page, error) {
	filter.Clean()
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return Page{}, core.NewValidationError(nil, core.FieldError{Field: FieldStatus, Error: feeStatusText})
		}
	}

	ords := make([]core.DBOrdering, 0, len(ordering))
	for _, ord := range ordering {
		col, ok := OrderingFields[ord.Field]
		if !ok {
			return Page{}, core.NewValidationError(nil, core.FieldError{
				Field: "ordering",
				Error: fmt.Sprintf("unknown ordering field %q", ord.Field),
			})
		}
		ords = append(ords, core.DBOrdering{Field: col, Ascending: ord.Ascending})
	}
	if len(ords) == 0 {
		ords = DefaultOrdering
	}

	recs, count, err := svc.repo.QueryFeeRecords(ctx, filter, ords, page.Normalize())
	if err != nil {
		return Page{}, err
	}
	if recs == nil {
		recs = []FeeRecord{}
	}
	return Page{Count: count, Results: recs}, nil
}

func (svc *Service) Update(ctx context.Context, id string, ufr UpdateFeeRecord) (FeeRecord, error) {
	var prev FeeRecord
	edits := ufr.Edits()

	rec, err := svc.repo.UpdateFeeRecord(ctx, strings.TrimSpace(id), func(stored FeeRecord) (FeeRecord, error) {
		prev = stored
		state := InitReconciliation(stored)
		rec := stored
		for _, edit := range edits {
			rec = ApplyFieldChange(state, edit, rec)
		}
		if err := checkPersistable(rec); err != nil {
			return FeeRecord{}, err
		}
		rec.UpdatedAt = nowFunc().UTC()
		return rec, nil
	})
	if err != nil {
		return FeeRecord{}, err
	}

	if rec.ReceiptNumber != prev.ReceiptNumber || rec.FeeAmount != prev.FeeAmount {
		svc.sendReceipt(rec)
	}
	return rec, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) (int, error) {
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if len(cleaned) == 0 {
		return 0, nil
	}
	return svc.repo.DeleteFeeRecords(ctx, cleaned...)
}

// Preview reconciles edits against a record without storing anything.
// When no state is given, it is initialized from the record.
func (svc *Service) Preview(req PreviewRequest) PreviewResult {
	state := InitReconciliation(req.Record)
	if req.State != nil {
		state = *req.State
	}
	rec := req.Record
	for _, e := range req.Edits {
		rec = ApplyFieldChange(state, ParseFieldEdit(e.Field, e.Value), rec)
	}
	return PreviewResult{State: state, Record: rec}
}

// Renormalize re-derives the status of every stored record from its amounts and returns how many changed.
// Manual overrides that contradict the amounts are reverted.
func (svc *Service) Renormalize(ctx context.Context) (int, error) {
	recs, _, err := svc.repo.QueryFeeRecords(ctx, QueryFilter{}, DefaultOrdering, core.Pagination{})
	if err != nil {
		return 0, err
	}

	var changed int
	for _, rec := range recs {
		if DeriveStatus(rec.AmountPaid, rec.TotalFees) == rec.Status {
			continue
		}
		var touched bool
		_, err := svc.repo.UpdateFeeRecord(ctx, rec.ID, func(stored FeeRecord) (FeeRecord, error) {
			st := DeriveStatus(stored.AmountPaid, stored.TotalFees)
			if st != stored.Status {
				touched = true
				stored.Status = st
				stored.UpdatedAt = nowFunc().UTC()
			}
			return stored, nil
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) { // deleted meanwhile
				continue
			}
			return changed, err
		}
		if touched {
			changed++
		}
	}
	return changed, nil
}
