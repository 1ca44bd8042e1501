package wire

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNumberAcceptsQuotedAndBareTokens(t *testing.T) {
	var quoted, bare Number
	require.NoError(t, json.Unmarshal([]byte(`"1.50000000"`), &quoted))
	require.NoError(t, json.Unmarshal([]byte(`1.5`), &bare))
	require.Equal(t, Number("1.50000000"), quoted)
	require.Equal(t, Number("1.5"), bare)

	d, ok := quoted.Decimal()
	require.True(t, ok)
	require.True(t, d.Equal(decimal.RequireFromString("1.5")))
}

func TestNumberEmptyDecodesToZeroValue(t *testing.T) {
	var n Number
	require.NoError(t, json.Unmarshal([]byte(`null`), &n))
	require.Equal(t, Number(""), n)
	_, ok := n.Decimal()
	require.False(t, ok)
}

func TestMillisAcceptsQuotedAndBareTokens(t *testing.T) {
	var quoted, bare Millis
	require.NoError(t, json.Unmarshal([]byte(`"1597026383085"`), &quoted))
	require.NoError(t, json.Unmarshal([]byte(`1597026383085`), &bare))
	require.Equal(t, quoted, bare)
	require.Equal(t, int64(1597026383085), int64(quoted.Time().UnixMilli()))
}

func TestISO8601ParsesRFC3339(t *testing.T) {
	var ts ISO8601
	require.NoError(t, json.Unmarshal([]byte(`"2018-08-21T20:00:00.000Z"`), &ts))
	require.Equal(t, time.Date(2018, 8, 21, 20, 0, 0, 0, time.UTC), ts.Time())
}

func TestISO8601MalformedZeroesRatherThanErrors(t *testing.T) {
	var ts ISO8601
	require.NoError(t, json.Unmarshal([]byte(`"not-a-timestamp"`), &ts))
	require.True(t, ts.Time().IsZero())
}
