package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehiclereport/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "vehiclereport-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func flex(n int) *domain.FlexInt {
	v := domain.FlexInt(n)
	return &v
}

func TestVehicleUpsertAndLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.UpsertVehicles(ctx, []domain.Vehicle{
		{Year: 2014, Make: "Honda", Model: "Civic", TotalComplaintCount: flex(40)},
		{Year: 2015, Make: "Honda", Model: "Civic", Buckets: []domain.Bucket{{FromMileage: 0, ToMileage: 30000}}},
		{Year: 2016, Make: "Honda", Model: "Civic"},
		{Year: 2015, Make: "Honda", Model: "Accord"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	v, err := s.Vehicle(ctx, 2015, "honda", "CIVIC")
	require.NoError(t, err)
	assert.NotZero(t, v.ID)
	assert.Len(t, v.Buckets, 1)

	_, err = s.Vehicle(ctx, 1999, "Honda", "Civic")
	assert.ErrorIs(t, err, domain.ErrVehicleNotFound)

	years, err := s.VehiclesInYears(ctx, "Honda", "Civic", []int{2016, 2014, 2015, 2017})
	require.NoError(t, err)
	require.Len(t, years, 3)
	assert.Equal(t, []int{2014, 2015, 2016}, []int{years[0].Year, years[1].Year, years[2].Year})
	assert.Equal(t, 40, years[0].TotalComplaintCount.IntOr(0))

	// Re-import replaces the document.
	_, err = s.UpsertVehicles(ctx, []domain.Vehicle{{Year: 2015, Make: "Honda", Model: "Civic"}})
	require.NoError(t, err)
	v, err = s.Vehicle(ctx, 2015, "Honda", "Civic")
	require.NoError(t, err)
	assert.Empty(t, v.Buckets)

	count, err := s.CountVehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	seen := 0
	require.NoError(t, s.EachVehicle(ctx, func(domain.Vehicle) error { seen++; return nil }))
	assert.Equal(t, 4, seen)
}

func TestUpsertVehiclesRejectsIncompleteDocuments(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertVehicles(context.Background(), []domain.Vehicle{{Year: 2015, Make: "Honda"}})
	assert.Error(t, err)

	count, err := s.CountVehicles(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Stat(ctx, "total_documents")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetStats(ctx, []domain.Stat{
		{Key: "total_documents", Value: 10, Category: "documents"},
		{Key: "avg_complaints_per_document", Value: 4, Category: "complaints"},
	}))
	require.NoError(t, s.SetStats(ctx, []domain.Stat{{Key: "total_documents", Value: 12, Category: "documents"}}))

	v, ok, err := s.Stat(ctx, "total_documents")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	all, err := s.AllStats(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "avg_complaints_per_document", all[0].Key)
	assert.False(t, all[1].LastUpdated.IsZero())
}

func TestRepairDescriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.RepairDescription(ctx, "brake-pads")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveRepairDescription(ctx, "brake-pads", "first"))
	require.NoError(t, s.SaveRepairDescription(ctx, "brake-pads", "second"))

	d, ok, err := s.RepairDescription(ctx, "brake-pads")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", d)
}

func TestReportLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "buyer@example.com")
	require.NoError(t, err)

	r := &domain.Report{
		UUID:    "r-1",
		UserID:  &u.ID,
		Tier:    domain.TierPremium,
		Year:    2015,
		Make:    "Honda",
		Model:   "Civic",
		Mileage: 40000,
		Params:  domain.ReportParams{ZipCode: "94107"},
	}
	require.NoError(t, s.CreateReport(ctx, r))
	require.NoError(t, s.CreateReport(ctx, &domain.Report{UUID: "r-2", Tier: domain.TierFree, Year: 2015, Make: "Honda", Model: "Civic"}))

	claimed, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "r-1", claimed[0].UUID)
	assert.Equal(t, domain.StatusProcessing, claimed[0].Status)
	assert.Equal(t, "94107", claimed[0].Params.ZipCode)
	require.NotNil(t, claimed[0].UserID)
	assert.Equal(t, u.ID, *claimed[0].UserID)

	result := domain.NewPremiumResult(domain.PremiumResult{
		Common:  domain.Common{Score: 81, Recommendation: "Good Choice"},
		Sources: "owner forums",
	})
	require.NoError(t, s.MarkCompleted(ctx, claimed[0].ID, result))

	got, err := s.ReportByUUID(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	require.NotNil(t, got.Result.Premium)
	assert.Equal(t, 81, got.Result.Shared().Score)
	assert.Equal(t, "owner forums", got.Result.Premium.Sources)

	claimed, err = s.ClaimPending(ctx, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Nil(t, claimed[0].UserID)
	require.NoError(t, s.MarkFailed(ctx, claimed[0].ID, "vehicle not found"))

	got, err = s.ReportByUUID(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, "vehicle not found", got.Error)
	assert.Nil(t, got.CompletedAt)

	_, err = s.ReportByUUID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrReportNotFound)
	assert.ErrorIs(t, s.MarkFailed(ctx, 999, "x"), domain.ErrReportNotFound)
}

func TestRequeueProcessing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateReport(ctx, &domain.Report{UUID: "r-1", Tier: domain.TierFree, Year: 2015, Make: "A", Model: "B"}))
	_, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)

	n, err := s.RequeueProcessing(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claimed, err := s.ClaimPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestCreditLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "buyer@example.com")
	require.NoError(t, err)

	_, err = s.DeductCredits(ctx, u.ID, 1, "premium report", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	add, err := s.AddCredits(ctx, u.ID, 3, "purchase", map[string]string{"order": "o-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, add.BalanceBefore)
	assert.Equal(t, 3, add.BalanceAfter)

	ded, err := s.DeductCredits(ctx, u.ID, 2, "premium report", map[string]string{"report_uuid": "r-1"})
	require.NoError(t, err)
	assert.Equal(t, -2, ded.Amount)
	assert.Equal(t, domain.TransactionDeduction, ded.Type)
	assert.Equal(t, 3, ded.BalanceBefore)
	assert.Equal(t, 1, ded.BalanceAfter)

	_, err = s.DeductCredits(ctx, u.ID, 2, "premium report", nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	bal, err := s.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, bal)

	txs, err := s.Transactions(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "r-1", txs[0].Metadata["report_uuid"])
	assert.Equal(t, domain.TransactionAddition, txs[1].Type)

	_, err = s.AddCredits(ctx, 999, 1, "x", nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	_, err = s.DeductCredits(ctx, u.ID, 0, "x", nil)
	assert.Error(t, err)

	byEmail, err := s.UserByEmail(ctx, "BUYER@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestConcurrentDeductionsNeverOverdraw(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "race@example.com")
	require.NoError(t, err)
	_, err = s.AddCredits(ctx, u.ID, 5, "purchase", nil)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		refused   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.DeductCredits(ctx, u.ID, 1, "premium report", nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientCredits):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, refused)
	bal, err := s.Balance(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, bal)
}
