package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	approvaldomain "github.com/smallbiznis/pipetrade/internal/approval/domain"
	auditdomain "github.com/smallbiznis/pipetrade/internal/audit/domain"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	documentdomain "github.com/smallbiznis/pipetrade/internal/document/domain"
	revisiondomain "github.com/smallbiznis/pipetrade/internal/revision/domain"
	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeDocumentService struct {
	lastCreate documentdomain.CreateRequest
	err        error
}

func (f *fakeDocumentService) Create(ctx context.Context, req documentdomain.CreateRequest) (*documentdomain.Document, error) {
	f.lastCreate = req
	if f.err != nil {
		return nil, f.err
	}
	return &documentdomain.Document{
		ID:           snowflake.ID(10),
		ChainID:      snowflake.ID(10),
		DocumentType: req.DocumentType,
		Number:       "PO/25/0001",
		Status:       "DRAFT",
		CreatedByID:  req.Actor.ID,
	}, nil
}

func (f *fakeDocumentService) GetByID(ctx context.Context, id string) (*documentdomain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &documentdomain.Document{ID: snowflake.ID(10), DocumentType: "PURCHASE_ORDER", Number: "PO/25/0001"}, nil
}

func (f *fakeDocumentService) ListRevisions(ctx context.Context, id string) ([]documentdomain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []documentdomain.Document{{ID: snowflake.ID(10), Version: 0}, {ID: snowflake.ID(11), Version: 1}}, nil
}

func (f *fakeDocumentService) Latest(ctx context.Context, id string) (*documentdomain.Document, error) {
	return nil, f.err
}

type fakeRevisionService struct {
	last revisiondomain.CreateAmendmentRequest
	err  error
}

func (f *fakeRevisionService) CreateAmendment(ctx context.Context, req revisiondomain.CreateAmendmentRequest) (*documentdomain.Document, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &documentdomain.Document{ID: snowflake.ID(11), DocumentType: "PURCHASE_ORDER", Number: "PO/25/0001", Version: 1}, nil
}

type fakeApprovalService struct {
	last approvaldomain.TransitionRequest
	err  error
}

func (f *fakeApprovalService) Transition(ctx context.Context, req approvaldomain.TransitionRequest) (*documentdomain.Document, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &documentdomain.Document{ID: snowflake.ID(10), DocumentType: "PURCHASE_ORDER", Status: "PENDING_APPROVAL"}, nil
}

func (f *fakeApprovalService) AvailableActions(ctx context.Context, documentID string, actor documentdomain.Actor) ([]approvaldomain.AvailableAction, error) {
	return []approvaldomain.AvailableAction{{Action: "approve", To: "OPEN", Remarks: doctype.RemarksOptional}}, f.err
}

type fakeSequenceService struct {
	err error
}

func (f *fakeSequenceService) Next(ctx context.Context, req sequencedomain.AllocateRequest) (sequencedomain.Allocation, error) {
	return sequencedomain.Allocation{}, f.err
}

func (f *fakeSequenceService) NextTx(ctx context.Context, tx *gorm.DB, req sequencedomain.AllocateRequest) (sequencedomain.Allocation, error) {
	return sequencedomain.Allocation{}, f.err
}

func (f *fakeSequenceService) RecordAllocation(ctx context.Context, alloc sequencedomain.Allocation, actorID string) {}

func (f *fakeSequenceService) Current(ctx context.Context, documentType, financialYear string) (sequencedomain.Counter, error) {
	if f.err != nil {
		return sequencedomain.Counter{}, f.err
	}
	return sequencedomain.Counter{DocumentType: documentType, FinancialYear: financialYear, Prefix: "PO", CurrentNumber: 7}, nil
}

type fakeAuditService struct {
	last auditdomain.ListAuditLogRequest
}

func (f *fakeAuditService) Append(ctx context.Context, entry auditdomain.Entry) error { return nil }

func (f *fakeAuditService) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.last = req
	return auditdomain.ListAuditLogResponse{}, nil
}

type testServer struct {
	router    *gin.Engine
	docs      *fakeDocumentService
	revisions *fakeRevisionService
	approvals *fakeApprovalService
	sequences *fakeSequenceService
	audit     *fakeAuditService
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	return newTestServerIn(t, nil)
}

func newTestServerIn(t *testing.T, loc *time.Location) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := testServer{
		router:    gin.New(),
		docs:      &fakeDocumentService{},
		revisions: &fakeRevisionService{},
		approvals: &fakeApprovalService{},
		sequences: &fakeSequenceService{},
		audit:     &fakeAuditService{},
	}
	ts.router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:      ts.router,
		log:         zap.NewNop(),
		documentSvc: ts.docs,
		revisionSvc: ts.revisions,
		approvalSvc: ts.approvals,
		sequenceSvc: ts.sequences,
		auditSvc:    ts.audit,
		location:    loc,
	}
	srv.registerAPIRoutes()
	return ts
}

func (ts testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

var ownerHeaders = map[string]string{
	"X-Actor-ID":    "u-owner",
	"X-Actor-Roles": "sales, Approver",
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestCreateDocumentPassesActorAndDate(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/documents",
		`{"document_type":"purchase_order","document_date":"2026-03-31","attributes":{"vendor":"acme"},"lines":[{"item_code":"A","quantity":"2","unit_price":"10.5"}]}`,
		ownerHeaders)

	require.Equal(t, http.StatusCreated, resp.Code)
	got := ts.docs.lastCreate
	assert.Equal(t, "PURCHASE_ORDER", got.DocumentType)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), got.DocumentDate)
	assert.Equal(t, "u-owner", got.Actor.ID)
	assert.Equal(t, []doctype.Role{doctype.RoleSales, doctype.RoleApprover}, got.Actor.Roles)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "21", got.Lines[0].Total().String())

	var body struct {
		Data documentdomain.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "PO/25/0001", body.Data.Number)
}

func TestDateOnlyInputUsesBusinessCalendar(t *testing.T) {
	ist, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)
	ts := newTestServerIn(t, ist)

	resp := ts.do(http.MethodPost, "/api/documents", `{"document_type":"INVOICE","document_date":"2026-04-01"}`, ownerHeaders)

	require.Equal(t, http.StatusCreated, resp.Code)
	got := ts.docs.lastCreate.DocumentDate
	assert.True(t, got.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, ist)))
	assert.Equal(t, time.Date(2026, 3, 31, 18, 30, 0, 0, time.UTC), got.UTC())

	resp = ts.do(http.MethodGet, "/api/audit-logs?end_at=2026-03-31", "", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, ts.audit.last.EndAt)
	assert.Equal(t, time.Date(2026, 3, 31, 18, 29, 59, 999999999, time.UTC), ts.audit.last.EndAt.UTC())
}

func TestMutationsRequireActor(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/documents", "/api/documents/10/transitions", "/api/documents/10/amendments"} {
		resp := ts.do(http.MethodPost, path, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
	}
}

func TestCreateDocumentRejectsBadDate(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/documents", `{"document_type":"PURCHASE_ORDER","document_date":"31/03/2026"}`, ownerHeaders)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_document_date", payload.Errors[0].Code)
}

func TestTransitionForwardsRequest(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/documents/10/transitions", `{"action":"submit_for_approval","remarks":"ok"}`, ownerHeaders)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "10", ts.approvals.last.DocumentID)
	assert.Equal(t, "submit_for_approval", ts.approvals.last.Action)
	assert.Equal(t, "ok", ts.approvals.last.Remarks)

	resp = ts.do(http.MethodPost, "/api/documents/10/transitions", `{"remarks":"ok"}`, ownerHeaders)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAmendmentForwardsChanges(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/documents/10/amendments",
		`{"reason":"price correction","changes":{"attributes":{"vendor":null},"lines":[],"document_date":"2026-04-02"}}`,
		ownerHeaders)

	require.Equal(t, http.StatusCreated, resp.Code)
	got := ts.revisions.last
	assert.Equal(t, "10", got.OriginalID)
	assert.Equal(t, "price correction", got.Reason)
	require.NotNil(t, got.Changes.Lines)
	assert.Empty(t, *got.Changes.Lines)
	require.NotNil(t, got.Changes.DocumentDate)
	assert.Contains(t, got.Changes.Attributes, "vendor")
	assert.Nil(t, got.Changes.Attributes["vendor"])
}

func TestSequenceCounterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/api/sequences/po/25", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Data sequencedomain.Counter `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "PO", body.Data.DocumentType)
	assert.Equal(t, int64(7), body.Data.CurrentNumber)
}

func TestAuditLogsQueryBinding(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodGet, "/api/audit-logs?entity_type=document&entity_id=10&event_kind=TRANSITION&page_size=5&end_at=2026-04-01", "", nil)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "document", ts.audit.last.EntityType)
	assert.Equal(t, "10", ts.audit.last.EntityID)
	assert.Equal(t, "TRANSITION", ts.audit.last.EventKind)
	assert.Equal(t, 5, ts.audit.last.PageSize)
	require.NotNil(t, ts.audit.last.EndAt)
	assert.Equal(t, 23, ts.audit.last.EndAt.Hour())

	resp = ts.do(http.MethodGet, "/api/audit-logs?start_at=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		typ    string
		code   string
	}{
		{documentdomain.ErrDocumentNotFound, http.StatusNotFound, "not_found", ""},
		{documentdomain.ErrUnauthorized, http.StatusForbidden, "forbidden", ""},
		{documentdomain.ErrInvalidActor, http.StatusUnauthorized, "unauthorized", ""},
		{documentdomain.ErrNotLatestRevision, http.StatusConflict, "conflict", "not_latest_revision"},
		{documentdomain.ErrConcurrentModification, http.StatusConflict, "conflict", "concurrent_modification"},
		{fmt.Errorf("%w: boom", sequencedomain.ErrAllocationFailed), http.StatusServiceUnavailable, "service_unavailable", "allocation_failed"},
		{fmt.Errorf("%w: status CLOSED", documentdomain.ErrNotAmendable), http.StatusBadRequest, "validation_error", "not_amendable"},
		{documentdomain.ErrMissingRemarks, http.StatusBadRequest, "validation_error", "missing_remarks"},
		{doctype.ErrUnknownDocumentType, http.StatusBadRequest, "validation_error", "unknown_document_type"},
		{auditdomain.ErrInvalidPageToken, http.StatusBadRequest, "validation_error", "invalid_page_token"},
		{fmt.Errorf("db down"), http.StatusInternalServerError, "internal_error", ""},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.typ, payload.Type)

			typ, code := classifyErrorForLog(tc.err)
			assert.Equal(t, tc.typ, typ)
			assert.Equal(t, tc.code, code)
		})
	}
}

func TestHandlerErrorsUseEnvelope(t *testing.T) {
	ts := newTestServer(t)
	ts.approvals.err = documentdomain.ErrNotLatestRevision

	resp := ts.do(http.MethodPost, "/api/documents/10/transitions", `{"action":"approve"}`, ownerHeaders)

	require.Equal(t, http.StatusConflict, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "conflict", payload.Type)
	assert.Equal(t, "not_latest_revision", payload.Code)
}
