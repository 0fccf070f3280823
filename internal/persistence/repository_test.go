package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"watchdash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func samplePositions() []models.Position {
	return []models.Position{
		{
			Symbol: "NASDAQ:TSLA", EntryDate: "2024-03-01", EntryPrice: 180.5, RunHigh: 201.25,
			TookHalf: true, Closed: true, CloseDate: ptr("2024-04-02"), ClosePrice: ptr(190.0), Round: 1,
		},
		{
			Symbol: "KRX:005930", EntryDate: "2024-05-10", EntryPrice: 71000, RunHigh: 71000,
			Round: 2, Quantity: ptr(3.0),
		},
		{
			Symbol: "NASDAQ:TSLA", EntryDate: "2024-06-01", EntryPrice: 170, RunHigh: 175, Round: 2,
		},
	}
}

func repositories(t *testing.T) map[string]PositionRepository {
	t.Helper()
	dir := t.TempDir()

	csvRepo, err := NewCSVRepository(filepath.Join(dir, "positions", "positions.csv"))
	require.NoError(t, err)
	badgerRepo, err := NewBadgerRepository("")
	require.NoError(t, err)
	sqliteRepo, err := NewSQLiteRepository(filepath.Join(dir, "positions.db"))
	require.NoError(t, err)

	repos := map[string]PositionRepository{
		"csv":    csvRepo,
		"badger": badgerRepo,
		"sqlite": sqliteRepo,
	}
	t.Cleanup(func() {
		for _, r := range repos {
			r.Close()
		}
	})
	return repos
}

func TestRepositories_EmptyLoad(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			positions, err := repo.LoadPositions()
			require.NoError(t, err)
			assert.Empty(t, positions)
		})
	}
}

func TestRepositories_RoundTripKeepsOrder(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			want := samplePositions()
			require.NoError(t, repo.SavePositions(want))

			got, err := repo.LoadPositions()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestRepositories_SaveReplacesWholeSet(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, repo.SavePositions(samplePositions()))

			only := samplePositions()[1:2]
			only[0].RunHigh = 72000
			require.NoError(t, repo.SavePositions(only))

			got, err := repo.LoadPositions()
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 72000.0, got[0].RunHigh)

			require.NoError(t, repo.SavePositions(nil))
			got, err = repo.LoadPositions()
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestCSVRepository_ReadsLegacySchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.csv")
	legacy := "symbol,entry_date,entry_price,quantity,run_high,took_half,closed,closed_date,closed_price,round_no\n" +
		"AAPL,2024-01-02,150.0,10,,False,False,,,1.0\n" +
		"MSFT,2024-01-03,300,,320.5,True,True,2024-02-01,310.25,2\n"
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	repo, err := NewCSVRepository(path)
	require.NoError(t, err)
	got, err := repo.LoadPositions()
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.Equal(t, 150.0, got[0].RunHigh, "missing run_high falls back to entry price")
	assert.Equal(t, 1, got[0].Round)
	require.NotNil(t, got[0].Quantity)
	assert.Equal(t, 10.0, *got[0].Quantity)
	assert.Nil(t, got[0].ClosePrice)
	assert.Nil(t, got[0].CloseDate)

	assert.True(t, got[1].Closed)
	assert.True(t, got[1].TookHalf)
	require.NotNil(t, got[1].ClosePrice)
	assert.Equal(t, 310.25, *got[1].ClosePrice)
	assert.Equal(t, "2024-02-01", *got[1].CloseDate)
	assert.Equal(t, 2, got[1].Round)
	assert.NoError(t, got[1].Validate())
}

func TestCSVRepository_WritesUnifiedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.csv")
	repo, err := NewCSVRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.SavePositions(samplePositions()[:1]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"symbol,entry_date,entry_price,run_high,took_half,closed,close_date,close_price,round,quantity\n"+
			"NASDAQ:TSLA,2024-03-01,180.5,201.25,True,True,2024-04-02,190,1,\n",
		string(data))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches, "temporary files must not be left behind")
}

func TestCSVRepository_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.csv")
	require.NoError(t, os.WriteFile(path, []byte("symbol,entry_price\nAAPL,abc\n"), 0o644))

	repo, err := NewCSVRepository(path)
	require.NoError(t, err)
	_, err = repo.LoadPositions()
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	repo, err := Open(models.StoreConfig{Driver: "csv", Path: filepath.Join(dir, "p.csv")})
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = Open(models.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)
}
