package echoapi_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/schoolfees/apps/api/echo"
	"github.com/trezcool/schoolfees/core/fee"
	"github.com/trezcool/schoolfees/tests"
)

func Test_feeApi_auth(t *testing.T) {
	app, repo := setup(t)
	rec := testutil.CreateFeeRecord(t, repo, "ADM-001", "Jane Doe", "5", "B", 5000, 1500, 500, fee.StatusPartial)
	detail := "/api/fees/" + rec.ID

	noRoleToken := getToken(t)
	teacherToken := getToken(t, RoleTeacher)
	ownerToken := getToken(t, "admin:owner")
	invalidToken := getToken(t, RoleAdmin) + "x"

	runTests(t, app, []httpTest{
		{name: "missing token", method: http.MethodGet, path: "/api/fees", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "invalid token", method: http.MethodGet, path: "/api/fees", token: invalidToken, wantCode: http.StatusUnauthorized},
		{name: "no role", method: http.MethodGet, path: "/api/fees", token: noRoleToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "teacher can list", method: http.MethodGet, path: "/api/fees", token: teacherToken, wantCode: http.StatusOK},
		{name: "teacher can retrieve", method: http.MethodGet, path: detail, token: teacherToken, wantCode: http.StatusOK, wantData: marchallObj(t, rec)},
		{name: "teacher cannot create", method: http.MethodPost, path: "/api/fees", token: teacherToken, body: []byte(`{}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "teacher cannot update", method: http.MethodPut, path: detail, token: teacherToken, body: []byte(`{}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "teacher cannot delete", method: http.MethodDelete, path: detail, token: teacherToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "admin sub-role can update", method: http.MethodPut, path: detail, token: ownerToken, body: []byte(`{}`), wantCode: http.StatusOK},
	})
}

func Test_feeApi_create(t *testing.T) {
	app, repo := setup(t)
	token := getToken(t, RoleSchool)

	t.Run("reconciles the new record", func(t *testing.T) {
		body := []byte(`{
			"admission_number": " ADM-001 ",
			"student_name": "Jane Doe",
			"class": "5",
			"section": "B",
			"total_fees": 5000,
			"fee_amount": "3000",
			"payment_date": "2024-01-10",
			"payment_mode": "Cash",
			"receipt_number": "R-1"
		}`)
		req, rec := newAuthRequest(http.MethodPost, "/api/fees", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		data := decodeBody(t, rec)
		assert.NotEmpty(t, data["id"])
		assert.Equal(t, "ADM-001", data["admission_number"])
		assert.Equal(t, 3000.0, data["amount_paid"])
		assert.Equal(t, 3000.0, data["fee_amount"])
		assert.Equal(t, 2000.0, data["balance"])
		assert.Equal(t, "Partial", data["status"])
		assert.Equal(t, "2024-01-10T00:00:00Z", data["payment_date"])
	})

	t.Run("manual status override", func(t *testing.T) {
		body := []byte(`{"admission_number":"ADM-002","student_name":"John","class":"5","section":"B","total_fees":5000,"fee_amount":1000,"status":"paid"}`)
		req, rec := newAuthRequest(http.MethodPost, "/api/fees", token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		data := decodeBody(t, rec)
		assert.Equal(t, "Paid", data["status"])
		assert.Equal(t, 5000.0, data["amount_paid"])
		assert.Equal(t, 0.0, data["balance"])
	})

	runTests(t, app, []httpTest{
		{
			name:     "required fields",
			method:   http.MethodPost,
			path:     "/api/fees",
			token:    token,
			body:     []byte(`{"student_name":"  "}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"admission_number": "this field is required",
				"student_name":     "this field is required",
				"class":            "this field is required",
				"section":          "this field is required",
			}),
		},
		{
			name:     "negative amount & bad status",
			method:   http.MethodPost,
			path:     "/api/fees",
			token:    token,
			body:     []byte(`{"admission_number":"A","student_name":"B","class":"5","section":"B","total_fees":-1,"status":"Overdue"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"total_fees": "amount must be a non-negative number",
				"status":     "invalid status, must be one of: Paid, Partial, Pending",
			}),
		},
		{
			name:     "bad payment date",
			method:   http.MethodPost,
			path:     "/api/fees",
			token:    token,
			body:     []byte(`{"admission_number":"A","student_name":"B","class":"5","section":"B","payment_date":"10/01/2024"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"payment_date": "invalid date, expected YYYY-MM-DD"}),
		},
	})

	page, _, err := repo.QueryFeeRecords(ctx(), fee.QueryFilter{}, fee.DefaultOrdering, noPage)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func Test_feeApi_createIdempotent(t *testing.T) {
	app, repo := setup(t)
	token := getToken(t, RoleAdmin)
	body := []byte(`{"admission_number":"ADM-001","student_name":"Jane","class":"5","section":"B","total_fees":5000,"fee_amount":5000}`)

	send := func() (int, map[string]interface{}) {
		req, rec := newAuthRequest(http.MethodPost, "/api/fees", token, body)
		req.Header.Set("Idempotency-Key", "c0ffee")
		app.ServeHTTP(rec, req)
		return rec.Code, decodeBody(t, rec)
	}

	code, first := send()
	require.Equal(t, http.StatusCreated, code)
	code, second := send()
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, first["id"], second["id"])

	recs, count, err := repo.QueryFeeRecords(ctx(), fee.QueryFilter{}, fee.DefaultOrdering, noPage)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, recs, 1)
}

// busyFeeService reports every keyed create as still running.
type busyFeeService struct {
	*fee.Service
}

func (busyFeeService) CreateOnce(context.Context, string, fee.NewFeeRecord) (fee.FeeRecord, bool, error) {
	return fee.FeeRecord{}, false, fee.ErrKeyInProgress
}

func Test_feeApi_createKeyInProgress(t *testing.T) {
	app := newServer(t, busyFeeService{})
	token := getToken(t, RoleAdmin)
	body := []byte(`{"admission_number":"ADM-001","student_name":"Jane","class":"5","section":"B","total_fees":5000,"fee_amount":5000}`)

	req, rec := newAuthRequest(http.MethodPost, "/api/fees", token, body)
	req.Header.Set("Idempotency-Key", "c0ffee")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, fee.ErrKeyInProgress.Error(), decodeBody(t, rec)["error"])
}

func Test_feeApi_query(t *testing.T) {
	app, repo := setup(t)
	token := getToken(t, RoleTeacher)

	base := time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC)
	jane := testutil.CreateFeeRecord(t, repo, "ADM-001", "Jane Doe", "5", "A", 5000, 5000, 5000, fee.StatusPaid, base.Add(1*time.Hour))
	john := testutil.CreateFeeRecord(t, repo, "ADM-002", "John Roe", "5", "B", 5000, 2000, 2000, fee.StatusPartial, base.Add(2*time.Hour))
	ann := testutil.CreateFeeRecord(t, repo, "ADM-003", "Ann Lee", "6", "A", 6000, 0, 0, fee.StatusPending, base.Add(3*time.Hour))

	pageOf := func(count int, recs ...fee.FeeRecord) []byte {
		if recs == nil {
			recs = []fee.FeeRecord{}
		}
		return marchallObj(t, fee.Page{Count: count, Results: recs})
	}

	runTests(t, app, []httpTest{
		{name: "all, newest first", method: http.MethodGet, path: "/api/fees", token: token, wantCode: http.StatusOK, wantData: pageOf(3, ann, john, jane)},
		{name: "search", method: http.MethodGet, path: "/api/fees?search=JOHN", token: token, wantCode: http.StatusOK, wantData: pageOf(1, john)},
		{name: "search admission number", method: http.MethodGet, path: "/api/fees?search=adm-003", token: token, wantCode: http.StatusOK, wantData: pageOf(1, ann)},
		{name: "statuses", method: http.MethodGet, path: "/api/fees?status=paid&status=Pending", token: token, wantCode: http.StatusOK, wantData: pageOf(2, ann, jane)},
		{name: "comma separated statuses", method: http.MethodGet, path: "/api/fees?status=Partial,Pending", token: token, wantCode: http.StatusOK, wantData: pageOf(2, ann, john)},
		{name: "class & section", method: http.MethodGet, path: "/api/fees?class=5&section=b", token: token, wantCode: http.StatusOK, wantData: pageOf(1, john)},
		{name: "ordering", method: http.MethodGet, path: "/api/fees?ordering=student_name", token: token, wantCode: http.StatusOK, wantData: pageOf(3, ann, jane, john)},
		{name: "multiple ordering", method: http.MethodGet, path: "/api/fees?ordering=class,-amount_paid", token: token, wantCode: http.StatusOK, wantData: pageOf(3, jane, john, ann)},
		{name: "paging", method: http.MethodGet, path: "/api/fees?page=2&page_size=2", token: token, wantCode: http.StatusOK, wantData: pageOf(3, jane)},
		{name: "page out of range", method: http.MethodGet, path: "/api/fees?page=5&page_size=2", token: token, wantCode: http.StatusOK, wantData: pageOf(3)},
		{name: "no match", method: http.MethodGet, path: "/api/fees?search=nobody", token: token, wantCode: http.StatusOK, wantData: pageOf(0)},
		{name: "payment date range", method: http.MethodGet, path: "/api/fees?paid_from=2024-01-10&paid_to=2024-01-10", token: token, wantCode: http.StatusOK, wantData: pageOf(3, ann, john, jane)},
		{name: "paid after", method: http.MethodGet, path: "/api/fees?paid_from=2024-01-11", token: token, wantCode: http.StatusOK, wantData: pageOf(0)},
		{
			name:     "bad status",
			method:   http.MethodGet,
			path:     "/api/fees?status=Overdue",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": `unknown status "Overdue"`}),
		},
		{
			name:     "bad ordering",
			method:   http.MethodGet,
			path:     "/api/fees?ordering=-password",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"ordering": `unknown ordering field "password"`}),
		},
		{
			name:     "bad page",
			method:   http.MethodGet,
			path:     "/api/fees?page=first",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"page": "must be a positive integer"}),
		},
		{
			name:     "bad date",
			method:   http.MethodGet,
			path:     "/api/fees?paid_from=2024-01-10T",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"paid_from": "invalid date, expected YYYY-MM-DD"}),
		},
	})
}

func Test_feeApi_statuses(t *testing.T) {
	app, _ := setup(t)
	runTests(t, app, []httpTest{
		{
			name:     "enum",
			method:   http.MethodGet,
			path:     "/api/fees/statuses",
			token:    getToken(t, RoleTeacher),
			wantCode: http.StatusOK,
			wantData: []byte(`["Paid","Partial","Pending"]`),
		},
	})
}

func Test_feeApi_retrieve(t *testing.T) {
	app, repo := setup(t)
	token := getToken(t, RoleTeacher)
	rec := testutil.CreateFeeRecord(t, repo, "ADM-001", "Jane Doe", "5", "B", 5000, 1500, 500, fee.StatusPartial)

	runTests(t, app, []httpTest{
		{name: "found", method: http.MethodGet, path: "/api/fees/" + rec.ID, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, rec)},
		{name: "not found", method: http.MethodGet, path: "/api/fees/nope", token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
	})
}

func Test_feeApi_update(t *testing.T) {
	app, repo := setup(t)
	token := getToken(t, RoleSchool)
	rec := testutil.CreateFeeRecord(t, repo, "ADM-001", "Jane Doe", "5", "B", 5000, 1500, 500, fee.StatusPartial)
	path := "/api/fees/" + rec.ID

	t.Run("new payment amount", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodPut, path, token, []byte(`{"fee_amount":"2000","receipt_number":"R-2"}`))
		app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		data := decodeBody(t, res)
		assert.Equal(t, 3000.0, data["amount_paid"])
		assert.Equal(t, 2000.0, data["fee_amount"])
		assert.Equal(t, 2000.0, data["balance"])
		assert.Equal(t, "Partial", data["status"])
		assert.Equal(t, "R-2", data["receipt_number"])
	})

	t.Run("forced paid", func(t *testing.T) {
		req, res := newAuthRequest(http.MethodPut, path, token, []byte(`{"status":"Paid"}`))
		app.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())

		data := decodeBody(t, res)
		assert.Equal(t, 5000.0, data["amount_paid"])
		assert.Equal(t, 0.0, data["balance"])
		assert.Equal(t, "Paid", data["status"])
	})

	runTests(t, app, []httpTest{
		{
			name:     "blank student name",
			method:   http.MethodPut,
			path:     path,
			token:    token,
			body:     []byte(`{"student_name":"   "}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_name": "this field cannot be blank"}),
		},
		{
			name:     "bad email",
			method:   http.MethodPut,
			path:     path,
			token:    token,
			body:     []byte(`{"contact_email":"jane"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"contact_email": "contact_email must be a valid email address"}),
		},
		{
			name:     "not found",
			method:   http.MethodPut,
			path:     "/api/fees/nope",
			token:    token,
			body:     []byte(`{"fee_amount":1}`),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, errNotFound),
		},
	})
}

func Test_feeApi_reconcile(t *testing.T) {
	app, _ := setup(t)
	token := getToken(t, RoleTeacher)

	runTests(t, app, []httpTest{
		{
			name:   "existing record",
			method: http.MethodPost,
			path:   "/api/fees/reconcile",
			token:  token,
			body: []byte(`{
				"record": {"id":"x","total_fees":5000,"amount_paid":1500,"fee_amount":500,"status":"Partial"},
				"edits": [{"field":"feeAmount","value":"2000"}]
			}`),
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"state": {"baseline":1000,"current_fee_amount":500},
				"record": {
					"id":"x","admission_number":"","student_name":"","class":"","section":"",
					"total_fees":5000,"amount_paid":3000,"fee_amount":2000,"balance":2000,
					"payment_date":"0001-01-01T00:00:00Z","payment_mode":"","receipt_number":"","status":"Partial",
					"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"
				}
			}`),
		},
		{
			name:   "state is kept across edits",
			method: http.MethodPost,
			path:   "/api/fees/reconcile",
			token:  token,
			body: []byte(`{
				"state": {"baseline":0,"current_fee_amount":0},
				"record": {"total_fees":0,"amount_paid":0,"fee_amount":0},
				"edits": [{"field":"fee_amount","value":5000},{"field":"total_fees","value":"5000"}]
			}`),
			wantCode: http.StatusOK,
			wantData: []byte(`{
				"state": {"baseline":0,"current_fee_amount":0},
				"record": {
					"id":"","admission_number":"","student_name":"","class":"","section":"",
					"total_fees":5000,"amount_paid":5000,"fee_amount":5000,"balance":0,
					"payment_date":"0001-01-01T00:00:00Z","payment_mode":"","receipt_number":"","status":"Paid",
					"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"
				}
			}`),
		},
	})
}

func Test_feeApi_delete(t *testing.T) {
	app, repo := setup(t)
	token := getToken(t, RoleAdmin)
	rec1 := testutil.CreateFeeRecord(t, repo, "ADM-001", "Jane Doe", "5", "B", 5000, 0, 0, fee.StatusPending)
	rec2 := testutil.CreateFeeRecord(t, repo, "ADM-002", "John Roe", "5", "B", 5000, 0, 0, fee.StatusPending)
	rec3 := testutil.CreateFeeRecord(t, repo, "ADM-003", "Ann Lee", "5", "B", 5000, 0, 0, fee.StatusPending)

	runTests(t, app, []httpTest{
		{name: "one", method: http.MethodDelete, path: "/api/fees/" + rec1.ID, token: token, wantCode: http.StatusNoContent},
		{name: "one again", method: http.MethodDelete, path: "/api/fees/" + rec1.ID, token: token, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{
			name:     "multiple",
			method:   http.MethodDelete,
			path:     fmt.Sprintf("/api/fees?id=%s&id=%s&id=nope", rec2.ID, rec3.ID),
			token:    token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, DeleteResponse{Deleted: 2}),
		},
		{
			name:     "no ids",
			method:   http.MethodDelete,
			path:     "/api/fees",
			token:    token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"id": "at least one id is required"}),
		},
	})

	_, count, err := repo.QueryFeeRecords(ctx(), fee.QueryFilter{}, fee.DefaultOrdering, noPage)
	require.NoError(t, err)
	assert.Zero(t, count)
}
