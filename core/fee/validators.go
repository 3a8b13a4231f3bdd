package fee

import (
	"math"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/schoolfees/core"
)

var (
	feeStatusTag  = "feestatus"
	feeStatusText = "invalid status, must be one of: " + statusList()

	amountTag  = "amount"
	amountText = "amount must be a non-negative number"

	paymentDateTag  = "paymentdate"
	paymentDateText = "invalid date, expected YYYY-MM-DD"
)

func statusList() string {
	names := make([]string, len(Statuses))
	for i, st := range Statuses {
		names[i] = string(st)
	}
	return strings.Join(names, ", ")
}

// InitValidators registers the fee validation tags on validate.
// It must be called after core.InitValidators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(feeStatusTag, feeStatusValidation)
	core.RegisterCustomTranslation(validate, translator, feeStatusTag, feeStatusText)

	_ = validate.RegisterValidation(amountTag, amountValidation)
	core.RegisterCustomTranslation(validate, translator, amountTag, amountText)

	_ = validate.RegisterValidation(paymentDateTag, paymentDateValidation)
	core.RegisterCustomTranslation(validate, translator, paymentDateTag, paymentDateText)
}

// Custom Validators

func feeStatusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).IsValid()
}

func amountValidation(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f >= 0
}

func paymentDateValidation(fl validator.FieldLevel) bool {
	_, ok := ParseDate(fl.Field().String())
	return ok
}

// checkPersistable reports the fields of rec that would break the storage contract:
// blank identity fields, negative or non-finite amounts and unknown statuses.
func checkPersistable(rec FeeRecord) error {
	var flds []core.FieldError
	for _, f := range []struct {
		name, value string
	}{
		{FieldAdmissionNumber, rec.AdmissionNumber},
		{FieldStudentName, rec.StudentName},
		{FieldClass, rec.Class},
		{FieldSection, rec.Section},
	} {
		if strings.TrimSpace(f.value) == "" {
			flds = append(flds, core.FieldError{Field: f.name, Error: "this field cannot be blank"})
		}
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{FieldTotalFees, rec.TotalFees},
		{"amount_paid", rec.AmountPaid},
		{FieldFeeAmount, rec.FeeAmount},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			flds = append(flds, core.FieldError{Field: f.name, Error: amountText})
		}
	}
	if !rec.Status.IsValid() {
		flds = append(flds, core.FieldError{Field: FieldStatus, Error: feeStatusText})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}
