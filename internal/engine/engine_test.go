package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/utafrali/showcase-search/internal/domain"
)

func TestNameTokens(t *testing.T) {
	assert.Equal(t, []string{"телефон", "samsung"}, NameTokens("  Телефон SAMSUNG телефон "))
	assert.Empty(t, NameTokens(""))
}

func TestPrefixFacets(t *testing.T) {
	counts := map[string]int{"телефон": 3, "телевизор": 1, "чехол": 2}

	assert.Equal(t, map[string]int{"телефон": 3}, PrefixFacets(counts, "телеф"))
	assert.Nil(t, PrefixFacets(counts, ""))
}

func TestPage(t *testing.T) {
	limit, offset := Page(domain.ProductQuery{})
	assert.Equal(t, domain.DefaultLimit, limit)
	assert.Equal(t, 0, offset)

	limit, offset = Page(domain.ProductQuery{Limit: 1000, Offset: -4})
	assert.Equal(t, domain.MaxLimit, limit)
	assert.Equal(t, 0, offset)
}
