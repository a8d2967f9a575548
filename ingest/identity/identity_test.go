package identity

import (
	"testing"

	"pricetrack/ingest"

	"github.com/stretchr/testify/require"
)

func TestProductKey(t *testing.T) {
	require.Equal(t, int32(930089231), ProductKey("1001", ingest.Auchan))
	require.Equal(t, int32(1578123766), ProductKey("2001", ingest.Continente))
	require.Equal(t, int32(695762493), ProductKey("2489333515", ingest.PingoDoce))

	// same id under a different source is a different product
	require.NotEqual(t,
		ProductKey("1001", ingest.Auchan),
		ProductKey("1001", ingest.Continente))
}

func TestCategoryKey(t *testing.T) {
	require.Equal(t, int32(739481783), CategoryKey("Dairy", "Fresh", "Milk"))
	require.Equal(t, int32(418405101), CategoryKey("", "", ""))
}

func TestKeysAreStableAndPositive(t *testing.T) {
	inputs := []string{"", "a", "12345", "Leite Meio-Gordo 1L", "água"}
	for _, id := range inputs {
		first := ProductKey(id, ingest.Continente)
		second := ProductKey(id, ingest.Continente)
		require.Equal(t, first, second)
		require.GreaterOrEqual(t, first, int32(0))
	}
}
