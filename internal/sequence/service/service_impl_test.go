package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/pipetrade/internal/audit/domain"
	auditrepository "github.com/smallbiznis/pipetrade/internal/audit/repository"
	auditservice "github.com/smallbiznis/pipetrade/internal/audit/service"
	"github.com/smallbiznis/pipetrade/internal/clock"
	"github.com/smallbiznis/pipetrade/internal/doctype"
	sequencedomain "github.com/smallbiznis/pipetrade/internal/sequence/domain"
	"github.com/smallbiznis/pipetrade/internal/sequence/repository"
	"github.com/smallbiznis/pipetrade/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type repoMock struct {
	mock.Mock
}

func (m *repoMock) EnsureCounter(ctx context.Context, db *gorm.DB, counter *sequencedomain.SequenceCounter) error {
	return m.Called(counter.DocumentType, counter.FinancialYear).Error(0)
}

func (m *repoMock) Increment(ctx context.Context, db *gorm.DB, documentType, financialYear string, now time.Time) (int64, error) {
	args := m.Called(documentType, financialYear)
	return args.Get(0).(int64), args.Error(1)
}

func (m *repoMock) Get(ctx context.Context, db *gorm.DB, documentType, financialYear string) (*sequencedomain.SequenceCounter, error) {
	args := m.Called(documentType, financialYear)
	counter, _ := args.Get(0).(*sequencedomain.SequenceCounter)
	return counter, args.Error(1)
}

type auditMock struct {
	mock.Mock
}

func (m *auditMock) Append(ctx context.Context, entry auditdomain.Entry) error {
	return m.Called(entry).Error(0)
}

func (m *auditMock) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	args := m.Called(req)
	return args.Get(0).(auditdomain.ListAuditLogResponse), args.Error(1)
}

type fixture struct {
	svc   sequencedomain.Service
	db    *gorm.DB
	audit auditdomain.Service
	clock *clock.FakeClock
}

func setupSequenceService(t *testing.T, repo sequencedomain.Repository, audit auditdomain.Service) fixture {
	t.Helper()
	return setupSequenceServiceWith(t, repo, audit, testutil.Registry(t))
}

func setupSequenceServiceWith(t *testing.T, repo sequencedomain.Repository, audit auditdomain.Service, registry *doctype.Registry) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.Node(t)
	fake := clock.NewFakeClock(time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC))
	if repo == nil {
		repo = repository.Provide()
	}
	if audit == nil {
		audit = auditservice.NewService(auditservice.Params{
			DB:    db,
			Log:   zap.NewNop(),
			GenID: node,
			Clock: fake,
			Repo:  auditrepository.Provide(),
		})
	}
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Clock:    fake,
		Registry: registry,
		Repo:     repo,
		AuditSvc: audit,
	})
	return fixture{svc: svc, db: db, audit: audit, clock: fake}
}

func TestNextIssuesConsecutiveNumbers(t *testing.T) {
	f := setupSequenceService(t, nil, nil)
	ctx := context.Background()
	date := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	first, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{DocumentType: "PURCHASE_ORDER", DocumentDate: date, ActorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "PO/25/0001", first.Number)
	assert.Equal(t, "25", first.FinancialYear)
	assert.EqualValues(t, 1, first.Sequence)

	second, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{DocumentType: "purchase_order", DocumentDate: date, ActorID: "u-1"})
	require.NoError(t, err)
	assert.Equal(t, "PO/25/0002", second.Number)

	counter, err := f.svc.Current(ctx, "PURCHASE_ORDER", "25")
	require.NoError(t, err)
	assert.EqualValues(t, 2, counter.CurrentNumber)
	assert.Equal(t, "PO", counter.Prefix)

	logs, err := f.audit.List(ctx, auditdomain.ListAuditLogRequest{EventKind: string(auditdomain.EventAllocateNumber)})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 2)
	assert.Equal(t, "PURCHASE_ORDER/25", logs.AuditLogs[0].EntityID)
	assert.Equal(t, "PO/25/0002", logs.AuditLogs[0].Metadata["number"])
}

func TestNextResetsOnFinancialYearBoundary(t *testing.T) {
	f := setupSequenceService(t, nil, nil)
	ctx := context.Background()

	march, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "PURCHASE_ORDER",
		DocumentDate: time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "PO/25/0001", march.Number)

	april, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "PURCHASE_ORDER",
		DocumentDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "PO/26/0001", april.Number)

	other, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "INVOICE",
		DocumentDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV/26/0001", other.Number)
}

func TestNextDefaultsToClockDate(t *testing.T) {
	f := setupSequenceService(t, nil, nil)
	f.clock.Set(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	alloc, err := f.svc.Next(context.Background(), sequencedomain.AllocateRequest{DocumentType: "GRN"})
	require.NoError(t, err)
	assert.Equal(t, "GRN/26/0001", alloc.Number)
}

func TestNextConcurrentAllocationsAreUnique(t *testing.T) {
	f := setupSequenceService(t, nil, nil)
	ctx := context.Background()
	date := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	const workers = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]struct{}{}
		errs    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alloc, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{DocumentType: "SALES_ORDER", DocumentDate: date})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			numbers[alloc.Number] = struct{}{}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	assert.Len(t, numbers, workers)
	for i := 1; i <= workers; i++ {
		_, ok := numbers[fmt.Sprintf("SO/26/%04d", i)]
		assert.True(t, ok, "missing SO/26/%04d", i)
	}

	counter, err := f.svc.Current(ctx, "SALES_ORDER", "26")
	require.NoError(t, err)
	assert.EqualValues(t, workers, counter.CurrentNumber)
}

func TestNextResolvesFinancialYearInBusinessCalendar(t *testing.T) {
	f := setupSequenceServiceWith(t, nil, nil, testutil.RegistryIn(t, "Asia/Kolkata"))
	ctx := context.Background()
	ist := time.FixedZone("IST", 5*60*60+30*60)

	fromIST, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "INVOICE",
		DocumentDate: time.Date(2026, 4, 1, 0, 30, 0, 0, ist),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV/26/0001", fromIST.Number)

	// the same instant sent in UTC still falls on 1 April in Kolkata
	fromUTC, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "INVOICE",
		DocumentDate: time.Date(2026, 3, 31, 19, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV/26/0002", fromUTC.Number)

	march, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "INVOICE",
		DocumentDate: time.Date(2026, 3, 31, 18, 29, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "INV/25/0001", march.Number)
}

func TestNextUnknownType(t *testing.T) {
	f := setupSequenceService(t, nil, nil)
	_, err := f.svc.Next(context.Background(), sequencedomain.AllocateRequest{DocumentType: "WAYBILL"})
	assert.Error(t, err)

	_, err = f.svc.Current(context.Background(), "PURCHASE_ORDER", "2025")
	assert.ErrorIs(t, err, sequencedomain.ErrInvalidFinancialYear)
}

func TestNextRetriesOnceOnConflict(t *testing.T) {
	repo := &repoMock{}
	repo.On("EnsureCounter", "PURCHASE_ORDER", "25").Return(nil)
	repo.On("Increment", "PURCHASE_ORDER", "25").Return(int64(0), gorm.ErrDuplicatedKey).Once()
	repo.On("Increment", "PURCHASE_ORDER", "25").Return(int64(7), nil).Once()

	f := setupSequenceService(t, repo, nil)
	alloc, err := f.svc.Next(context.Background(), sequencedomain.AllocateRequest{
		DocumentType: "PURCHASE_ORDER",
		DocumentDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "PO/25/0007", alloc.Number)
	repo.AssertNumberOfCalls(t, "Increment", 2)
}

func TestNextFailsAfterSecondConflict(t *testing.T) {
	repo := &repoMock{}
	repo.On("EnsureCounter", "PURCHASE_ORDER", "25").Return(nil)
	repo.On("Increment", "PURCHASE_ORDER", "25").Return(int64(0), gorm.ErrDuplicatedKey)

	f := setupSequenceService(t, repo, nil)
	_, err := f.svc.Next(context.Background(), sequencedomain.AllocateRequest{
		DocumentType: "PURCHASE_ORDER",
		DocumentDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, sequencedomain.ErrAllocationFailed)
	repo.AssertNumberOfCalls(t, "Increment", 2)
}

func TestNextDoesNotRetryOtherErrors(t *testing.T) {
	boom := errors.New("disk full")
	repo := &repoMock{}
	repo.On("EnsureCounter", "PURCHASE_ORDER", "25").Return(nil)
	repo.On("Increment", "PURCHASE_ORDER", "25").Return(int64(0), boom)

	f := setupSequenceService(t, repo, nil)
	_, err := f.svc.Next(context.Background(), sequencedomain.AllocateRequest{
		DocumentType: "PURCHASE_ORDER",
		DocumentDate: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, sequencedomain.ErrAllocationFailed)
	repo.AssertNumberOfCalls(t, "Increment", 1)
}

func TestAuditFailureDoesNotUndoAllocation(t *testing.T) {
	audit := &auditMock{}
	audit.On("Append", mock.Anything).Return(errors.New("audit store down"))

	f := setupSequenceService(t, nil, audit)
	ctx := context.Background()
	alloc, err := f.svc.Next(ctx, sequencedomain.AllocateRequest{
		DocumentType: "QUOTATION",
		DocumentDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "QT/26/0001", alloc.Number)

	counter, err := f.svc.Current(ctx, "QUOTATION", "26")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counter.CurrentNumber)
	audit.AssertExpectations(t)
}

func TestNextTxRollsBackWithCaller(t *testing.T) {
	f := setupSequenceService(t, nil, nil)
	ctx := context.Background()
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	rollback := errors.New("caller failed")
	err := f.db.Transaction(func(tx *gorm.DB) error {
		alloc, err := f.svc.NextTx(ctx, tx, sequencedomain.AllocateRequest{DocumentType: "RECEIPT", DocumentDate: date})
		require.NoError(t, err)
		assert.Equal(t, "RCT/26/0001", alloc.Number)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	counter, err := f.svc.Current(ctx, "RECEIPT", "26")
	require.NoError(t, err)
	assert.EqualValues(t, 0, counter.CurrentNumber)

	_, err = f.svc.NextTx(ctx, nil, sequencedomain.AllocateRequest{DocumentType: "RECEIPT"})
	assert.Error(t, err)
}
