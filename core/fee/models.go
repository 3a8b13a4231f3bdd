package fee

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolfees/core"
)

// Status is the payment state of a FeeRecord.
type Status string

const (
	StatusPaid    Status = "Paid"
	StatusPartial Status = "Partial"
	StatusPending Status = "Pending"
)

var Statuses = []Status{StatusPaid, StatusPartial, StatusPending}

func (s Status) IsValid() bool {
	switch s {
	case StatusPaid, StatusPartial, StatusPending:
		return true
	}
	return false
}

// ParseStatus matches s case-insensitively against the known statuses.
func ParseStatus(s string) (Status, bool) {
	s = core.CleanString(s)
	for _, st := range Statuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// FeeRecord is one student's fee entry for a billing cycle.
// Balance is never stored: it is added to the JSON output from ComputeBalance.
type FeeRecord struct {
	ID              string    `json:"id"`
	AdmissionNumber string    `json:"admission_number"`
	StudentName     string    `json:"student_name"`
	Class           string    `json:"class"`
	Section         string    `json:"section"`
	TotalFees       float64   `json:"total_fees"`
	AmountPaid      float64   `json:"amount_paid"`
	FeeAmount       float64   `json:"fee_amount"`
	PaymentDate     time.Time `json:"payment_date"` // UTC date
	PaymentMode     string    `json:"payment_mode"`
	ReceiptNumber   string    `json:"receipt_number"`
	Status          Status    `json:"status"`
	ContactEmail    string    `json:"contact_email,omitempty"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (r FeeRecord) MarshalJSON() ([]byte, error) {
	type record FeeRecord
	return json.Marshal(struct {
		record
		Balance float64 `json:"balance"`
	}{record(r), ComputeBalance(r)})
}

// UnmarshalJSON reads records sent back by the dashboard: amounts may be numeric strings,
// payment_date may be a plain date and balance is ignored.
func (r *FeeRecord) UnmarshalJSON(data []byte) error {
	type record FeeRecord
	aux := struct {
		*record
		TotalFees   Amount `json:"total_fees"`
		AmountPaid  Amount `json:"amount_paid"`
		FeeAmount   Amount `json:"fee_amount"`
		PaymentDate string `json:"payment_date"`
		Status      string `json:"status"`
	}{record: (*record)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	r.TotalFees = float64(aux.TotalFees)
	r.AmountPaid = float64(aux.AmountPaid)
	r.FeeAmount = float64(aux.FeeAmount)
	r.PaymentDate = time.Time{}
	if d, ok := ParseDate(aux.PaymentDate); ok {
		r.PaymentDate = d
	}
	r.Status = Status(core.CleanString(aux.Status))
	if st, ok := ParseStatus(aux.Status); ok {
		r.Status = st
	}
	return nil
}

// Amount is a money amount accepted from clients either as a JSON number or as a numeric string.
// Anything that does not parse to a finite number decodes to 0.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*a = 0
			return nil
		}
		*a = Amount(ParseAmount(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		*a = 0
		return nil
	}
	*a = Amount(ParseAmount(f))
	return nil
}

func (a Amount) Float64() float64 { return float64(a) }

var dateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

// ParseDate parses a payment date sent as YYYY-MM-DD or RFC 3339 and truncates it to a UTC date.
func ParseDate(s string) (time.Time, bool) {
	s = core.CleanString(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TruncateDate(t), true
		}
	}
	return time.Time{}, false
}

// TruncateDate drops the time of day, keeping the calendar date of t.
func TruncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewFeeRecord contains information needed to create a new FeeRecord.
type NewFeeRecord struct {
	AdmissionNumber string `json:"admission_number" validate:"required"`
	StudentName     string `json:"student_name" validate:"required"`
	Class           string `json:"class" validate:"required"`
	Section         string `json:"section" validate:"required"`
	TotalFees       Amount `json:"total_fees" validate:"amount"`
	FeeAmount       Amount `json:"fee_amount" validate:"amount"`
	PaymentDate     string `json:"payment_date" validate:"omitempty,paymentdate"`
	PaymentMode     string `json:"payment_mode"`
	ReceiptNumber   string `json:"receipt_number"`
	Status          Status `json:"status" validate:"omitempty,feestatus"`
	ContactEmail    string `json:"contact_email" validate:"omitempty,email"`
}

func (nfr *NewFeeRecord) Validate(validate *validator.Validate) error {
	nfr.AdmissionNumber = core.CleanString(nfr.AdmissionNumber)
	nfr.StudentName = core.CleanString(nfr.StudentName)
	nfr.Class = core.CleanString(nfr.Class)
	nfr.Section = core.CleanString(nfr.Section)
	nfr.PaymentDate = core.CleanString(nfr.PaymentDate)
	nfr.PaymentMode = core.CleanString(nfr.PaymentMode)
	nfr.ReceiptNumber = core.CleanString(nfr.ReceiptNumber)
	nfr.ContactEmail = core.CleanString(nfr.ContactEmail, true /* lower */)
	if st, ok := ParseStatus(string(nfr.Status)); ok {
		nfr.Status = st
	}
	return validate.Struct(nfr)
}

// UpdateFeeRecord defines what information may be provided to modify an existing FeeRecord.
// nil fields are left untouched; Status is a manual override and is only applied when sent.
type UpdateFeeRecord struct {
	AdmissionNumber *string `json:"admission_number" validate:"omitempty,notblank"`
	StudentName     *string `json:"student_name" validate:"omitempty,notblank"`
	Class           *string `json:"class" validate:"omitempty,notblank"`
	Section         *string `json:"section" validate:"omitempty,notblank"`
	TotalFees       *Amount `json:"total_fees" validate:"omitempty,amount"`
	FeeAmount       *Amount `json:"fee_amount" validate:"omitempty,amount"`
	PaymentDate     *string `json:"payment_date" validate:"omitempty,paymentdate"`
	PaymentMode     *string `json:"payment_mode"`
	ReceiptNumber   *string `json:"receipt_number"`
	Status          *Status `json:"status" validate:"omitempty,feestatus"`
	ContactEmail    *string `json:"contact_email" validate:"omitempty,email"`
}

func (ufr *UpdateFeeRecord) Validate(validate *validator.Validate) error {
	for _, s := range []*string{
		ufr.AdmissionNumber, ufr.StudentName, ufr.Class, ufr.Section,
		ufr.PaymentDate, ufr.PaymentMode, ufr.ReceiptNumber,
	} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if ufr.ContactEmail != nil {
		*ufr.ContactEmail = core.CleanString(*ufr.ContactEmail, true /* lower */)
	}
	if ufr.Status != nil {
		if st, ok := ParseStatus(string(*ufr.Status)); ok {
			*ufr.Status = st
		}
	}
	return validate.Struct(ufr)
}

// Edits lists the changes carried by ufr in the order they must be reconciled:
// metadata first, then totals, then the current payment, and the manual status override last.
func (ufr UpdateFeeRecord) Edits() []FieldEdit {
	var edits []FieldEdit
	meta := []struct {
		field string
		value *string
	}{
		{FieldAdmissionNumber, ufr.AdmissionNumber},
		{FieldStudentName, ufr.StudentName},
		{FieldClass, ufr.Class},
		{FieldSection, ufr.Section},
		{FieldPaymentDate, ufr.PaymentDate},
		{FieldPaymentMode, ufr.PaymentMode},
		{FieldReceiptNumber, ufr.ReceiptNumber},
		{FieldContactEmail, ufr.ContactEmail},
	}
	for _, m := range meta {
		if m.value != nil {
			edits = append(edits, OtherFieldChanged{Field: m.field, Value: *m.value})
		}
	}
	if ufr.TotalFees != nil {
		edits = append(edits, TotalFeesChanged(*ufr.TotalFees))
	}
	if ufr.FeeAmount != nil {
		edits = append(edits, FeeAmountChanged(*ufr.FeeAmount))
	}
	if ufr.Status != nil {
		edits = append(edits, StatusChanged(*ufr.Status))
	}
	return edits
}

type QueryFilter struct {
	Search   string
	Statuses []Status
	Class    string
	Section  string
	PaidFrom time.Time
	PaidTo   time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && len(qf.Statuses) == 0 && qf.Class == "" && qf.Section == "" &&
		qf.PaidFrom.IsZero() && qf.PaidTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Class = core.CleanString(qf.Class)
	qf.Section = core.CleanString(qf.Section)
	if !qf.PaidFrom.IsZero() {
		qf.PaidFrom = TruncateDate(qf.PaidFrom.UTC())
	}
	if !qf.PaidTo.IsZero() {
		qf.PaidTo = TruncateDate(qf.PaidTo.UTC())
	}
}

// Page is one page of a FeeRecord listing. Count is the total number of matches.
type Page struct {
	Count   int         `json:"count"`
	Results []FeeRecord `json:"results"`
}

// OrderingFields maps the orderable JSON field names to their storage columns.
var OrderingFields = map[string]string{
	"admission_number": "admission_number",
	"student_name":     "student_name",
	"class":            "class",
	"section":          "section",
	"total_fees":       "total_fees",
	"amount_paid":      "amount_paid",
	"fee_amount":       "fee_amount",
	"payment_date":     "payment_date",
	"status":           "status",
	"created_at":       "created_at",
	"updated_at":       "updated_at",
}

// DefaultOrdering lists newest records first.
var DefaultOrdering = []core.DBOrdering{{Field: "created_at"}}
