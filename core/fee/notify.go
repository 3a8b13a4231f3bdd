package fee

import (
	"net/mail"

	"github.com/trezcool/schoolfees/core"
)

const receiptTemplate = "fee_receipt"

type receiptData struct {
	FeeRecord
	Balance float64
}

// ReceiptMessage returns the receipt email for rec, or nil when rec has no contact email or receipt number.
func ReceiptMessage(rec FeeRecord) *core.EmailMessage {
	if rec.ContactEmail == "" || rec.ReceiptNumber == "" {
		return nil
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: rec.StudentName, Address: rec.ContactEmail}},
		Subject:      "Fee receipt " + rec.ReceiptNumber,
		TemplateName: receiptTemplate,
		TemplateData: receiptData{FeeRecord: rec, Balance: ComputeBalance(rec)},
	}
}

func (svc *Service) sendReceipt(rec FeeRecord) {
	if svc.mailSvc == nil {
		return
	}
	if msg := ReceiptMessage(rec); msg != nil {
		svc.mailSvc.SendMessages(msg)
	}
}
