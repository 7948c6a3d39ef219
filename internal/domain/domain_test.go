package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRegion(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"worldwide", RegionWorldwide},
		{"WorldWide", RegionWorldwide},
		{" fr ", "FR"},
		{"us", "US"},
		{"GBR", "GBR"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := NormalizeRegion(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"", "   ", "fr/../all", "us?strict=false"} {
		_, err := NormalizeRegion(bad)
		assert.ErrorIs(t, err, ErrInvalidRegion, "input %q", bad)
	}
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("Deaths")
	require.NoError(t, err)
	assert.Equal(t, MetricDeaths, m)

	_, err = ParseMetric("tests")
	assert.ErrorIs(t, err, ErrUnknownMetric)
	assert.Contains(t, err.Error(), "tests")
}

func TestMetrics_TotalAndToday(t *testing.T) {
	s := Metrics{
		Cases: Int64(10), TodayCases: Int64(1),
		Recovered: Int64(8), TodayRecovered: Int64(2),
		Deaths: Int64(1),
	}

	assert.Equal(t, int64(10), *s.Total(MetricCases))
	assert.Equal(t, int64(8), *s.Total(MetricRecovered))
	assert.Equal(t, int64(1), *s.Total(MetricDeaths))
	assert.Equal(t, int64(1), *s.Today(MetricCases))
	assert.Equal(t, int64(2), *s.Today(MetricRecovered))
	assert.Nil(t, s.Today(MetricDeaths))
	assert.Nil(t, s.Total(Metric("tests")))
}

func TestFetchError_MatchesSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&FetchError{Query: "summary", Region: "FR", Err: cause})

	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch summary for FR: connection refused", err.Error())

	noRegion := &FetchError{Query: "countries", Err: cause}
	assert.Equal(t, "fetch countries: connection refused", noRegion.Error())
}

func TestTimeline_DecodeKeepsUpstreamOrder(t *testing.T) {
	// Lexical order would put 1/10/21 before 1/2/21.
	data := []byte(`{
		"cases": {"1/1/21": 100, "1/2/21": 150, "1/10/21": 130},
		"deaths": {"1/1/21": 1, "1/2/21": 2, "1/10/21": 4},
		"recovered": {}
	}`)

	var tl Timeline
	require.NoError(t, json.Unmarshal(data, &tl))

	var dates []string
	for p := tl.Series(MetricCases).Oldest(); p != nil; p = p.Next() {
		dates = append(dates, p.Key)
	}
	assert.Equal(t, []string{"1/1/21", "1/2/21", "1/10/21"}, dates)
	assert.Equal(t, 3, tl.Series(MetricDeaths).Len())
	assert.Equal(t, 0, tl.Series(MetricRecovered).Len())
	assert.Nil(t, tl.Series(Metric("tests")))
}

func TestNewCumulativeSeries(t *testing.T) {
	s := NewCumulativeSeries(
		CumulativePoint{Date: "3/1/21", Total: 5},
		CumulativePoint{Date: "3/2/21", Total: 7},
	)
	require.Equal(t, 2, s.Len())
	assert.Equal(t, "3/1/21", s.Oldest().Key)
	assert.Equal(t, int64(7), s.Newest().Value)
}
