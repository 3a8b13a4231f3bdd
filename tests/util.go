package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/schoolfees/core/fee"
)

// NopLogger is a core.Logger that drops everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}
func (NopLogger) Fatal(string, ...interface{}) {}

// CreateFeeRecord stores a record as-is, bypassing reconciliation, so fixtures can hold any state.
func CreateFeeRecord(
	t *testing.T,
	repo fee.Repository,
	adm, name, class, section string,
	totalFees, amountPaid, feeAmount float64,
	status fee.Status,
	createdAt ...time.Time,
) fee.FeeRecord {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	rec := fee.FeeRecord{
		AdmissionNumber: adm,
		StudentName:     name,
		Class:           class,
		Section:         section,
		TotalFees:       totalFees,
		AmountPaid:      amountPaid,
		FeeAmount:       feeAmount,
		PaymentDate:     fee.TruncateDate(tstamp),
		PaymentMode:     "Cash",
		Status:          status,
		CreatedAt:       tstamp,
		UpdatedAt:       tstamp,
	}
	rec, err := repo.CreateFeeRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateFeeRecord() failed: %v", err)
	}
	return rec
}
