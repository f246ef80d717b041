package bleve

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/showcase-search/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, records ...domain.ProductRecord) *Engine {
	t.Helper()
	eng, err := New("", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	require.NoError(t, eng.BulkIndex(context.Background(), records))
	return eng
}

func record(id, categoryID int64, name string, price float64) domain.ProductRecord {
	return domain.ProductRecord{
		ProductID:     id,
		ProductCardID: id + 100,
		CategoryID:    categoryID,
		Name:          name,
		Price:         price,
		FeedID:        3,
		MarketplaceID: 1,
		Status:        "active",
	}
}

func TestSearchProducts_MatchesTokensAndRestoresFields(t *testing.T) {
	eng := newTestEngine(t,
		record(1, 10, "Телефон Samsung Galaxy", 199.5),
		record(2, 20, "Ноутбук Lenovo", 900),
	)

	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{Tokens: []string{"телефон"}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)

	got := result.Records[0]
	assert.Equal(t, int64(1), got.ProductID)
	assert.Equal(t, int64(101), got.ProductCardID)
	assert.Equal(t, int64(10), got.CategoryID)
	assert.Equal(t, "Телефон Samsung Galaxy", got.Name)
	assert.InDelta(t, 199.5, got.Price, 0.0001)
	assert.Equal(t, int64(3), got.FeedID)
	assert.Equal(t, "active", got.Status)
}

func TestSearchProducts_Filters(t *testing.T) {
	blocked := record(3, 10, "phone blocked", 50)
	blocked.Status = "blocked"
	eng := newTestEngine(t,
		record(1, 10, "phone cheap", 50),
		record(2, 10, "phone expensive", 500),
		blocked,
		record(4, 20, "phone elsewhere", 50),
	)

	to := 100.0
	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{
		Tokens:      []string{"phone"},
		CategoryIDs: []int64{10},
		Price:       &domain.PriceRange{To: &to},
		Statuses:    []string{"active"},
		FeedIDs:     []int64{3},
		Marketplace: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	assert.Equal(t, int64(1), result.Records[0].ProductID)
}

func TestSearchProducts_WildcardAndPaging(t *testing.T) {
	eng := newTestEngine(t,
		record(1, 10, "a", 1),
		record(2, 10, "b", 1),
		record(3, 10, "c", 1),
	)

	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{
		Tokens: []string{domain.WildcardToken},
		Limit:  2,
		Offset: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Records, 2)
}

func TestSearchProducts_Facets(t *testing.T) {
	eng := newTestEngine(t,
		record(1, 10, "телефон samsung", 1),
		record(2, 10, "телефоны apple", 1),
		record(3, 10, "телевизор", 1),
	)

	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{
		Tokens:      []string{domain.WildcardToken},
		FacetPrefix: "телеф",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"телефон": 1, "телефоны": 1}, result.Facets)
}

func TestSearchProducts_TransliterateHint(t *testing.T) {
	eng := newTestEngine(t, record(1, 10, "телефон", 1))

	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{Tokens: []string{"telefon"}})
	require.NoError(t, err)
	assert.Zero(t, result.Total)
	assert.True(t, result.Transliterate)
}

func TestGroupCategoriesByHitCount(t *testing.T) {
	eng := newTestEngine(t,
		record(1, 30, "x", 1),
		record(2, 20, "x", 1),
		record(3, 20, "x", 1),
		record(4, 10, "x", 1),
		record(5, 10, "x", 1),
		record(6, 40, "y", 1),
	)

	ids, err := eng.GroupCategoriesByHitCount(context.Background(), domain.ProductQuery{Tokens: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ids)
}

func TestDeleteAndClose(t *testing.T) {
	eng := newTestEngine(t, record(1, 10, "x", 1))
	ctx := context.Background()

	require.NoError(t, eng.Delete(ctx, 1))
	require.NoError(t, eng.Delete(ctx, 1))
	result, err := eng.SearchProducts(ctx, domain.ProductQuery{})
	require.NoError(t, err)
	assert.Zero(t, result.Total)

	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())
	assert.ErrorIs(t, eng.Ping(ctx), ErrClosed)
	_, err = eng.SearchProducts(ctx, domain.ProductQuery{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNew_OnDiskReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cards.bleve")

	eng, err := New(path, testLogger())
	require.NoError(t, err)
	rec := record(7, 10, "чайник", 1)
	require.NoError(t, eng.Index(context.Background(), &rec))
	require.NoError(t, eng.Close())

	eng, err = New(path, testLogger())
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{Tokens: []string{"чайник"}})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
}
