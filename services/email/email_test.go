package emailsvc

import (
	"net/mail"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/schoolfees/core"
	"github.com/trezcool/schoolfees/core/fee"
)

type testLogger struct{ errors []string }

func (l *testLogger) Debug(string, ...interface{}) {}
func (l *testLogger) Info(string, ...interface{})  {}
func (l *testLogger) Warn(string, ...interface{})  {}
func (l *testLogger) Error(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}
func (l *testLogger) Fatal(msg string, _ ...interface{}) {
	l.errors = append(l.errors, msg)
}

func testConfig() *core.Config {
	return &core.Config{AppName: "School Fees", FrontendBaseURL: "http://localhost:3000", TestMode: true}
}

func TestConsoleMockSendsReceipt(t *testing.T) {
	logger := &testLogger{}
	core.ParseEmailTemplates(logger, true)
	require.Empty(t, logger.errors)
	ResetSentMessages()

	rec := fee.FeeRecord{
		ID:              "0b6f1f8e-4a43-4b0f-a0a5-2b1e3c7f6d10",
		AdmissionNumber: "ADM-1",
		StudentName:     "Jane Doe",
		Class:           "5",
		Section:         "B",
		TotalFees:       5000,
		AmountPaid:      3000,
		FeeAmount:       3000,
		PaymentDate:     time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC),
		PaymentMode:     "Cash",
		ReceiptNumber:   "R-0042",
		Status:          fee.StatusPartial,
		ContactEmail:    "parent@test.test",
	}
	msg := fee.ReceiptMessage(rec)
	require.NotNil(t, msg)

	svc := NewConsoleServiceMock(testConfig(), logger)
	svc.SendMessages(msg)

	sent := SentMessages()
	require.Len(t, sent, 1)
	assert.Empty(t, logger.errors)
	assert.Equal(t, "parent@test.test", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Receipt number: R-0042")
	assert.Contains(t, sent[0].TextContent, "Balance:        2000.00")
	assert.Contains(t, sent[0].TextContent, "2021-03-04")
	assert.Contains(t, sent[0].HTMLContent, "<strong>Jane Doe</strong>")
	assert.Contains(t, sent[0].HTMLContent, "<title>Receipt R-0042</title>")
}

func TestConsoleMockSkipsEmptyMessages(t *testing.T) {
	ResetSentMessages()
	svc := NewConsoleServiceMock(testConfig(), &testLogger{})
	svc.SendMessages(
		&core.EmailMessage{Subject: "no recipient", BodyStr: "hello"},
		&core.EmailMessage{To: []mail.Address{{Address: "a@test.test"}}, Subject: "no content"},
	)
	assert.Empty(t, SentMessages())
}

func TestSendgridPrepare(t *testing.T) {
	svc := NewSendgridService(testConfig(), &testLogger{}).(*sendgridService)
	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "Jane", Address: "jane@test.test"}},
		Cc:          []mail.Address{{Address: "bursar@test.test"}},
		Subject:     "Fee receipt R-1",
		TextContent: "text",
		HTMLContent: "<p>html</p>",
	})

	require.Len(t, m.Personalizations, 1)
	p := m.Personalizations[0]
	assert.Equal(t, "[School Fees] Fee receipt R-1", p.Subject)
	require.Len(t, p.To, 1)
	assert.Equal(t, "jane@test.test", p.To[0].Address)
	require.Len(t, p.CC, 1)
	require.Len(t, m.Content, 2)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "text/html", m.Content[1].Type)
}
