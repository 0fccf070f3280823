package positions

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"watchdash/internal/models"
	"watchdash/internal/persistence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockRepository keeps positions in memory and counts saves.
type mockRepository struct {
	sync.Mutex
	positions []models.Position
	saves     int
	saveError error
	loadError error
}

func (m *mockRepository) LoadPositions() ([]models.Position, error) {
	m.Lock()
	defer m.Unlock()
	if m.loadError != nil {
		return nil, m.loadError
	}
	out := make([]models.Position, len(m.positions))
	for i, p := range m.positions {
		out[i] = p.Clone()
	}
	return out, nil
}

func (m *mockRepository) SavePositions(positions []models.Position) error {
	m.Lock()
	defer m.Unlock()
	if m.saveError != nil {
		return m.saveError
	}
	m.saves++
	m.positions = make([]models.Position, len(positions))
	for i, p := range positions {
		m.positions[i] = p.Clone()
	}
	return nil
}

func (m *mockRepository) Close() error { return nil }

func (m *mockRepository) saveCount() int {
	m.Lock()
	defer m.Unlock()
	return m.saves
}

var fixedNow = time.Date(2024, 6, 3, 23, 30, 0, 0, time.UTC) // 2024-06-04 08:30 in Seoul

func newTestStore(t *testing.T, repo persistence.PositionRepository) *Store {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	return NewStore(repo, zap.NewNop(), WithLocation(loc), WithClock(func() time.Time { return fixedNow }))
}

func TestCreateEntry(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)

	id, err := store.CreateEntry("NASDAQ:TSLA", 100, 1, WithQuantity(5))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	pos, ok, err := store.Open("NASDAQ:TSLA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-06-04", pos.EntryDate, "entry date uses the configured timezone")
	assert.Equal(t, 100.0, pos.EntryPrice)
	assert.Equal(t, 100.0, pos.RunHigh)
	assert.False(t, pos.TookHalf)
	assert.False(t, pos.Closed)
	assert.Nil(t, pos.ClosePrice)
	assert.Nil(t, pos.CloseDate)
	require.NotNil(t, pos.Quantity)
	assert.Equal(t, 5.0, *pos.Quantity)
	assert.Equal(t, id, pos.ID())
	assert.NoError(t, pos.Validate())
}

func TestCreateEntry_Invalid(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)

	tests := []struct {
		name   string
		symbol string
		price  float64
		round  int
		opts   []EntryOption
	}{
		{"zero price", "TSLA", 0, 1, nil},
		{"negative price", "TSLA", -3, 1, nil},
		{"empty symbol", " ", 10, 1, nil},
		{"round zero", "TSLA", 10, 0, nil},
		{"bad date", "TSLA", 10, 1, []EntryOption{WithEntryDate("03/06/2024")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateEntry(tt.symbol, tt.price, tt.round, tt.opts...)
			assert.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
	assert.Zero(t, repo.saveCount())
}

func TestCreateEntry_SameKeySupersedes(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)

	id1, err := store.CreateEntry("TSLA", 100, 1, WithEntryDate("2024-06-01"))
	require.NoError(t, err)
	id2, err := store.CreateEntry("TSLA", 104, 1, WithEntryDate("2024-06-01"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 104.0, all[0].EntryPrice)
	assert.Equal(t, 104.0, all[0].RunHigh)
}

func TestCreateEntry_NewRoundBecomesAuthoritative(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)

	_, err := store.CreateEntry("TSLA", 100, 1, WithEntryDate("2024-06-01"))
	require.NoError(t, err)
	_, err = store.CreateEntry("TSLA", 90, 2, WithEntryDate("2024-06-02"))
	require.NoError(t, err)

	pos, ok, err := store.Open("TSLA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, pos.Round)

	open, err := store.OpenPositions()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 90.0, open["TSLA"].EntryPrice)
}

func TestUpdateRunHigh_Monotonic(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)

	changed, err := store.UpdateRunHigh("TSLA", 110)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.UpdateRunHigh("TSLA", 105)
	require.NoError(t, err)
	assert.False(t, changed)

	pos, _, err := store.Open("TSLA")
	require.NoError(t, err)
	assert.Equal(t, 110.0, pos.RunHigh)

	changed, err = store.UpdateRunHigh("AAPL", 500)
	require.NoError(t, err)
	assert.False(t, changed, "no open position is a no-op")
	assert.Equal(t, 2, repo.saveCount(), "only the entry and the first raise are written")
}

func TestUpdateRunHighs_Batch(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)
	_, err = store.CreateEntry("AAPL", 200, 1)
	require.NoError(t, err)
	open, err := store.OpenPositions()
	require.NoError(t, err)
	before := repo.saveCount()

	n, err := store.UpdateRunHighs(map[models.PositionKey]float64{
		open["TSLA"].Key(): 120,
		open["AAPL"].Key(): 150,
		{Symbol: "MSFT", Round: 1, EntryDate: "2024-01-01"}: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, before+1, repo.saveCount(), "one write per batch")

	open, err = store.OpenPositions()
	require.NoError(t, err)
	assert.Equal(t, 120.0, open["TSLA"].RunHigh)
	assert.Equal(t, 200.0, open["AAPL"].RunHigh)
}

func TestUpdateRunHighs_SkipsClosedRecord(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)
	old, ok, err := store.Open("TSLA")
	require.NoError(t, err)
	require.True(t, ok)

	// the old record is closed and a new one opened before the batch lands
	require.NoError(t, store.RecordClose("TSLA", 150, time.Time{}))
	_, err = store.CreateEntry("TSLA", 150, 2)
	require.NoError(t, err)

	n, err := store.UpdateRunHighs(map[models.PositionKey]float64{old.Key(): 200})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	cur, ok, err := store.Open("TSLA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, cur.Round)
	assert.Equal(t, 150.0, cur.RunHigh)
}

func TestRecordHalfExit_Idempotent(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)

	require.NoError(t, store.RecordHalfExit("TSLA"))
	first, err := store.List()
	require.NoError(t, err)
	saves := repo.saveCount()

	require.NoError(t, store.RecordHalfExit("TSLA"))
	second, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, saves, repo.saveCount())
	assert.True(t, second[0].TookHalf)
}

func TestRecordHalfExit_NoOpenPosition(t *testing.T) {
	store := newTestStore(t, &mockRepository{})
	err := store.RecordHalfExit("TSLA")
	assert.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestRecordClose(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)

	require.NoError(t, store.RecordClose("TSLA", 112.5, time.Time{}))

	all, err := store.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	p := all[0]
	assert.True(t, p.Closed)
	require.NotNil(t, p.ClosePrice)
	assert.Equal(t, 112.5, *p.ClosePrice)
	require.NotNil(t, p.CloseDate)
	assert.Equal(t, "2024-06-04", *p.CloseDate)
	assert.NoError(t, p.Validate())

	_, ok, err := store.Open("TSLA")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordClose_ExplicitDate(t *testing.T) {
	store := newTestStore(t, &mockRepository{})
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)

	loc, _ := time.LoadLocation("Asia/Seoul")
	require.NoError(t, store.RecordClose("TSLA", 95, time.Date(2024, 7, 1, 0, 0, 0, 0, loc)))

	all, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, "2024-07-01", *all[0].CloseDate)
}

func TestRecordClose_ClosedIsTerminal(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)
	require.NoError(t, store.RecordClose("TSLA", 110, time.Time{}))
	before, err := store.List()
	require.NoError(t, err)

	assert.ErrorIs(t, store.RecordClose("TSLA", 120, time.Time{}), ErrNoOpenPosition)
	assert.ErrorIs(t, store.RecordHalfExit("TSLA"), ErrNoOpenPosition)
	changed, err := store.UpdateRunHigh("TSLA", 500)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRecordClose_NoOpenPositionLeavesStoreUnchanged(t *testing.T) {
	repo := &mockRepository{}
	store := newTestStore(t, repo)
	_, err := store.CreateEntry("AAPL", 100, 1)
	require.NoError(t, err)
	before, err := store.List()
	require.NoError(t, err)
	saves := repo.saveCount()

	err = store.RecordClose("TSLA", 100, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoOpenPosition))

	after, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, repo.saveCount())
}

func TestRecordClose_InvalidPrice(t *testing.T) {
	store := newTestStore(t, &mockRepository{})
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)
	assert.ErrorIs(t, store.RecordClose("TSLA", 0, time.Time{}), ErrInvalidPrice)
}

func TestStore_SaveErrorPropagates(t *testing.T) {
	repo := &mockRepository{saveError: errors.New("disk full")}
	store := newTestStore(t, repo)

	_, err := store.CreateEntry("TSLA", 100, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	all, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_ReturnsCopies(t *testing.T) {
	store := newTestStore(t, &mockRepository{})
	_, err := store.CreateEntry("TSLA", 100, 1, WithQuantity(2))
	require.NoError(t, err)

	all, err := store.List()
	require.NoError(t, err)
	*all[0].Quantity = 99
	all[0].RunHigh = 1000

	again, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, 2.0, *again[0].Quantity)
	assert.Equal(t, 100.0, again[0].RunHigh)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	store := newTestStore(t, &mockRepository{})
	_, err := store.CreateEntry("TSLA", 100, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(h float64) {
			defer wg.Done()
			_, _ = store.UpdateRunHigh("TSLA", h)
		}(100 + float64(i))
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = store.RecordHalfExit("TSLA")
	}()
	wg.Wait()

	pos, ok, err := store.Open("TSLA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 150.0, pos.RunHigh)
	assert.True(t, pos.TookHalf)
}

func TestStore_CSVLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.csv")
	repo, err := persistence.NewCSVRepository(path)
	require.NoError(t, err)
	store := newTestStore(t, repo)

	_, err = store.CreateEntry("KRX:005930", 70000, 1)
	require.NoError(t, err)
	_, err = store.UpdateRunHigh("KRX:005930", 78000)
	require.NoError(t, err)
	require.NoError(t, store.RecordHalfExit("KRX:005930"))
	require.NoError(t, store.RecordClose("KRX:005930", 74000, time.Time{}))

	// a fresh store over the same file sees the persisted lifecycle
	reopened, err := persistence.NewCSVRepository(path)
	require.NoError(t, err)
	all, err := newTestStore(t, reopened).List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	p := all[0]
	assert.Equal(t, 78000.0, p.RunHigh)
	assert.True(t, p.TookHalf)
	assert.True(t, p.Closed)
	assert.Equal(t, 74000.0, *p.ClosePrice)
}
