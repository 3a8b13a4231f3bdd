package fee

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trezcool/schoolfees/core"
)

// Field names accepted by ParseFieldEdit (snake_case; camelCase is also accepted).
const (
	FieldAdmissionNumber = "admission_number"
	FieldStudentName     = "student_name"
	FieldClass           = "class"
	FieldSection         = "section"
	FieldTotalFees       = "total_fees"
	FieldFeeAmount       = "fee_amount"
	FieldPaymentDate     = "payment_date"
	FieldPaymentMode     = "payment_mode"
	FieldReceiptNumber   = "receipt_number"
	FieldStatus          = "status"
	FieldContactEmail    = "contact_email"
)

// ReconciliationState is captured once when an edit session starts and never changes during it.
// Baseline is what the student had paid before the transaction being entered.
type ReconciliationState struct {
	Baseline         float64 `json:"baseline"`
	CurrentFeeAmount float64 `json:"current_fee_amount"`
}

// FieldEdit is a single field change entered on a FeeRecord.
// It is one of FeeAmountChanged, TotalFeesChanged, StatusChanged or OtherFieldChanged.
type FieldEdit interface {
	fieldEdit()
}

type (
	// FeeAmountChanged sets the amount paid in the current transaction.
	FeeAmountChanged float64

	// TotalFeesChanged sets the total amount owed for the cycle.
	TotalFeesChanged float64

	// StatusChanged is a manual status override.
	StatusChanged Status

	// OtherFieldChanged sets a metadata field, with no derived recomputation.
	OtherFieldChanged struct {
		Field string
		Value string
	}
)

func (FeeAmountChanged) fieldEdit()  {}
func (TotalFeesChanged) fieldEdit()  {}
func (StatusChanged) fieldEdit()     {}
func (OtherFieldChanged) fieldEdit() {}

// InitReconciliation derives the baseline from the state of rec when an edit session starts.
// A new record whose fee amount was never set has nothing paid before the current transaction.
func InitReconciliation(rec FeeRecord) ReconciliationState {
	state := ReconciliationState{CurrentFeeAmount: cents(rec.FeeAmount)}
	if rec.ID == "" && state.CurrentFeeAmount == 0 {
		return state
	}
	state.Baseline = sub(rec.AmountPaid, rec.FeeAmount)
	return state
}

// ApplyFieldChange returns rec with edit applied and its derived fields reconciled against state.
// rec itself is never modified.
func ApplyFieldChange(state ReconciliationState, edit FieldEdit, rec FeeRecord) FeeRecord {
	switch e := edit.(type) {
	case FeeAmountChanged:
		rec.FeeAmount = cents(float64(e))
		rec.AmountPaid = add(state.Baseline, rec.FeeAmount)
		if rec.TotalFees > 0 {
			rec.Status = DeriveStatus(rec.AmountPaid, rec.TotalFees)
		}

	case TotalFeesChanged:
		rec.TotalFees = cents(float64(e))
		if rec.AmountPaid > 0 {
			rec.Status = DeriveStatus(rec.AmountPaid, rec.TotalFees)
		}

	case StatusChanged:
		st := Status(e)
		switch st {
		case StatusPaid:
			// settles the record exactly, over-collection included
			if rec.AmountPaid != rec.TotalFees {
				rec.AmountPaid = cents(rec.TotalFees)
				rec.FeeAmount = sub(rec.TotalFees, state.Baseline)
			}
		case StatusPending:
			rec.AmountPaid = 0
			rec.FeeAmount = 0
		case StatusPartial:
			// amounts are kept as entered
		default:
			return rec
		}
		rec.Status = st

	case OtherFieldChanged:
		rec = e.apply(rec)
	}
	return rec
}

func (e OtherFieldChanged) apply(rec FeeRecord) FeeRecord {
	switch normalizeField(e.Field) {
	case FieldAdmissionNumber:
		rec.AdmissionNumber = e.Value
	case FieldStudentName:
		rec.StudentName = e.Value
	case FieldClass:
		rec.Class = e.Value
	case FieldSection:
		rec.Section = e.Value
	case FieldPaymentMode:
		rec.PaymentMode = e.Value
	case FieldReceiptNumber:
		rec.ReceiptNumber = e.Value
	case FieldContactEmail:
		rec.ContactEmail = e.Value
	case FieldPaymentDate:
		if d, ok := ParseDate(e.Value); ok {
			rec.PaymentDate = d
		}
	}
	return rec
}

// ComputeBalance is what remains to be paid. It is negative when more than the total was collected.
func ComputeBalance(rec FeeRecord) float64 {
	return sub(finite(rec.TotalFees), finite(rec.AmountPaid))
}

// DeriveStatus is the status implied by the amounts alone.
func DeriveStatus(amountPaid, totalFees float64) Status {
	switch {
	case amountPaid <= 0:
		return StatusPending
	case amountPaid >= totalFees:
		return StatusPaid
	default:
		return StatusPartial
	}
}

// ParseAmount coerces a client supplied amount to a float64.
// Empty, non-numeric and non-finite input gives 0.
func ParseAmount(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case Amount:
		f = float64(n)
	case json.Number:
		f, _ = n.Float64()
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0
	}
	return cents(f)
}

// ParseFieldEdit builds the FieldEdit for a raw field/value pair, as sent by the dashboard form.
// Unknown fields give an OtherFieldChanged that leaves the record untouched.
func ParseFieldEdit(field string, value interface{}) FieldEdit {
	switch name := normalizeField(field); name {
	case FieldFeeAmount:
		return FeeAmountChanged(ParseAmount(value))
	case FieldTotalFees:
		return TotalFeesChanged(ParseAmount(value))
	case FieldStatus:
		st, _ := ParseStatus(stringValue(value))
		return StatusChanged(st)
	default:
		return OtherFieldChanged{Field: name, Value: core.CleanString(stringValue(value))}
	}
}

// normalizeField maps camelCase names (feeAmount) to their snake_case form (fee_amount).
func normalizeField(field string) string {
	field = strings.TrimSpace(field)
	var b strings.Builder
	for i, r := range field {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

func stringValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// amounts are stored as NUMERIC(14,2)
const amountPlaces = 2

// cents rounds f to the stored precision; non-finite input gives 0.
func cents(f float64) float64 {
	r, _ := decimal.NewFromFloat(finite(f)).Round(amountPlaces).Float64()
	return r
}

func add(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(finite(a)).Add(decimal.NewFromFloat(finite(b))).Round(amountPlaces).Float64()
	return f
}

func sub(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(finite(a)).Sub(decimal.NewFromFloat(finite(b))).Round(amountPlaces).Float64()
	return f
}
