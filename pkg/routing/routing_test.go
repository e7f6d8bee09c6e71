package routing

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mcclellann/fieldloan/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "san jose", Normalize("  San   José "))
	assert.Equal(t, "la candelaria", Normalize("LA CANDELARIA"))
	assert.Equal(t, "nino jesus", Normalize("Niño Jesús"))
	assert.Equal(t, "", Normalize("   "))
}

func TestSplitNeighborhoods(t *testing.T) {
	assert.Equal(t, []string{"Centro", "San José", "El Prado"}, SplitNeighborhoods("Centro, San José,,  El Prado ,"))
	assert.Nil(t, SplitNeighborhoods(" , "))
}

func fixture() (routes []*models.Route, a, b, inactive *models.Collector) {
	north := &models.Route{ID: uuid.New(), Name: "North", Neighborhoods: []string{"San José", "Centro"}, Active: true}
	south := &models.Route{ID: uuid.New(), Name: "South", Neighborhoods: []string{"San José de la Montaña", "centro "}, Active: true}
	closed := &models.Route{ID: uuid.New(), Name: "Closed", Neighborhoods: []string{"El Prado"}, Active: false}

	a = &models.Collector{ID: uuid.New(), FirstName: "Ana", RouteIDs: []uuid.UUID{north.ID}, Active: true}
	b = &models.Collector{ID: uuid.New(), FirstName: "Beto", RouteIDs: []uuid.UUID{north.ID, south.ID}, Active: true}
	inactive = &models.Collector{ID: uuid.New(), FirstName: "Ciro", RouteIDs: []uuid.UUID{north.ID}, Active: false}
	return []*models.Route{north, south, closed}, a, b, inactive
}

func TestIndex_ExactMatchOnly(t *testing.T) {
	routes, a, b, inactive := fixture()
	idx := NewIndex(routes, []*models.Collector{a, b, inactive})

	// "San José" must not match the longer "San José de la Montaña".
	assert.Equal(t, []uuid.UUID{routes[0].ID}, idx.Routes("san jose"))
	assert.Len(t, idx.Routes("CENTRO"), 2)
	assert.Empty(t, idx.Routes("Jose"))
	assert.Empty(t, idx.Routes("El Prado"), "inactive route must not be indexed")

	collectors := idx.Collectors("Centro")
	require.Len(t, collectors, 2, "collector on two matching routes is listed once")
	for _, c := range collectors {
		assert.NotEqual(t, inactive.ID, c.ID)
	}
}

func TestIndex_SuggestLeastLoaded(t *testing.T) {
	routes, a, b, inactive := fixture()
	idx := NewIndex(routes, []*models.Collector{a, b, inactive})

	got := idx.Suggest("San José", map[uuid.UUID]int{a.ID: 5, b.ID: 2})
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID)

	got = idx.Suggest("San José de la Montaña", map[uuid.UUID]int{a.ID: 0, b.ID: 9})
	require.NotNil(t, got)
	assert.Equal(t, b.ID, got.ID, "only b works the south route")

	assert.Nil(t, idx.Suggest("Unknown", nil))
}
