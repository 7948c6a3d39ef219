// Package upstreamtest serves a deterministic imitation of the disease.sh v3
// endpoints the dashboard consumes. Tests mount it with httptest; the
// mockupstream command serves it for local development.
package upstreamtest

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// BasePath is the API prefix; point the client at server URL + BasePath.
const BasePath = "/v3/covid-19"

// Country is one fixture row. A nil Lat or Long omits the coordinate from
// countryInfo; NoInfo omits countryInfo entirely.
type Country struct {
	Name           string
	ISO2           string
	ISO3           string
	Lat            *float64
	Long           *float64
	NoInfo         bool
	Cases          int64
	TodayCases     int64
	Recovered      int64
	TodayRecovered int64
	Deaths         int64
	TodayDeaths    int64
}

// Dataset is everything the fake upstream serves.
type Dataset struct {
	Updated   time.Time
	Countries []Country

	// Timeline holds chronological cumulative totals; all slices share Dates.
	Dates     []string
	Cases     []int64
	Deaths    []int64
	Recovered []int64
}

func coord(v float64) *float64 { return &v }

// DefaultDataset returns a small fixed dataset. France carries the
// coordinates {48.8, 2.3}; "Diamond Princess" has no countryInfo; "Atlantis"
// has countryInfo without coordinates. The case timeline contains a downward
// correction on its last day.
func DefaultDataset() *Dataset {
	return &Dataset{
		Updated: time.Date(2021, time.January, 10, 12, 0, 0, 0, time.UTC),
		Countries: []Country{
			{Name: "Atlantis", ISO2: "AQ", ISO3: "ATA", Cases: 3},
			{Name: "Brazil", ISO2: "BR", ISO3: "BRA", Lat: coord(-10), Long: coord(-55), Cases: 8000, TodayCases: 50, Recovered: 7000, TodayRecovered: 40, Deaths: 200, TodayDeaths: 2},
			{Name: "Diamond Princess", NoInfo: true, Cases: 712, Recovered: 699, Deaths: 13},
			{Name: "France", ISO2: "FR", ISO3: "FRA", Lat: coord(48.8), Long: coord(2.3), Cases: 3000, TodayCases: 20, Recovered: 2500, TodayRecovered: 15, Deaths: 90, TodayDeaths: 1},
			{Name: "Germany", ISO2: "DE", ISO3: "DEU", Lat: coord(51), Long: coord(9), Cases: 3000, TodayCases: 25, Recovered: 2800, TodayRecovered: 30, Deaths: 70, TodayDeaths: 1},
			{Name: "USA", ISO2: "US", ISO3: "USA", Lat: coord(38), Long: coord(-97), Cases: 12000, TodayCases: 100, Recovered: 9000, TodayRecovered: 80, Deaths: 400, TodayDeaths: 5},
		},
		Dates:     []string{"1/1/21", "1/2/21", "1/3/21", "1/4/21", "1/5/21"},
		Cases:     []int64{100, 150, 230, 260, 240},
		Deaths:    []int64{10, 12, 15, 15, 18},
		Recovered: []int64{50, 70, 95, 130, 170},
	}
}

// Generate builds a synthetic dataset with the given number of timeline days.
// The same seed always yields the same data.
func Generate(seed uint64, days int) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	ds := DefaultDataset()

	start := time.Date(2020, time.January, 22, 0, 0, 0, 0, time.UTC)
	ds.Dates = make([]string, days)
	ds.Cases = make([]int64, days)
	ds.Deaths = make([]int64, days)
	ds.Recovered = make([]int64, days)

	var cases, deaths, recovered int64
	for i := range days {
		d := start.AddDate(0, 0, i)
		ds.Dates[i] = d.Format("1/2/06")

		cases += int64(rng.IntN(5000))
		if rng.IntN(20) == 0 {
			cases -= int64(rng.IntN(1000)) // upstream correction
		}
		deaths += int64(rng.IntN(100))
		recovered += int64(rng.IntN(4000))

		ds.Cases[i], ds.Deaths[i], ds.Recovered[i] = cases, deaths, recovered
	}
	ds.Updated = start.AddDate(0, 0, days)
	return ds
}

// NewHandler serves the dataset under BasePath.
func NewHandler(ds *Dataset) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+BasePath+"/all", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, ds.world())
	})
	mux.HandleFunc("GET "+BasePath+"/countries", func(w http.ResponseWriter, _ *http.Request) {
		out := make([]map[string]any, 0, len(ds.Countries))
		for _, c := range ds.Countries {
			out = append(out, ds.snapshot(c))
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET "+BasePath+"/countries/{code}", func(w http.ResponseWriter, r *http.Request) {
		code := r.PathValue("code")
		for _, c := range ds.Countries {
			if c.ISO2 != "" && strings.EqualFold(c.ISO2, code) || strings.EqualFold(c.Name, code) {
				writeJSON(w, http.StatusOK, ds.snapshot(c))
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": "Country not found or doesn't have any cases",
		})
	})
	mux.HandleFunc("GET "+BasePath+"/historical/all", func(w http.ResponseWriter, r *http.Request) {
		n := len(ds.Dates)
		if v := r.URL.Query().Get("lastdays"); v != "" && v != "all" {
			days, err := strconv.Atoi(v)
			if err != nil || days < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid lastdays"})
				return
			}
			n = min(days, n)
		}
		writeJSON(w, http.StatusOK, ds.timeline(n))
	})
	return mux
}

func (ds *Dataset) world() map[string]any {
	var cases, todayCases, recovered, todayRecovered, deaths, todayDeaths int64
	for _, c := range ds.Countries {
		cases += c.Cases
		todayCases += c.TodayCases
		recovered += c.Recovered
		todayRecovered += c.TodayRecovered
		deaths += c.Deaths
		todayDeaths += c.TodayDeaths
	}
	return map[string]any{
		"updated":           ds.Updated.UnixMilli(),
		"cases":             cases,
		"todayCases":        todayCases,
		"recovered":         recovered,
		"todayRecovered":    todayRecovered,
		"deaths":            deaths,
		"todayDeaths":       todayDeaths,
		"affectedCountries": len(ds.Countries),
	}
}

func (ds *Dataset) snapshot(c Country) map[string]any {
	out := map[string]any{
		"updated":        ds.Updated.UnixMilli(),
		"country":        c.Name,
		"cases":          c.Cases,
		"todayCases":     c.TodayCases,
		"recovered":      c.Recovered,
		"todayRecovered": c.TodayRecovered,
		"deaths":         c.Deaths,
		"todayDeaths":    c.TodayDeaths,
	}
	if c.NoInfo {
		return out
	}
	info := map[string]any{
		"_id":  nil,
		"iso2": c.ISO2,
		"iso3": c.ISO3,
		"flag": "https://disease.sh/assets/img/flags/" + strings.ToLower(c.ISO2) + ".png",
	}
	if c.Lat != nil {
		info["lat"] = *c.Lat
	}
	if c.Long != nil {
		info["long"] = *c.Long
	}
	out["countryInfo"] = info
	return out
}

// timeline renders the trailing n days, keeping date order in the JSON object.
func (ds *Dataset) timeline(n int) map[string]any {
	from := len(ds.Dates) - n
	series := func(values []int64) *orderedmap.OrderedMap[string, int64] {
		om := orderedmap.New[string, int64](n)
		for i := from; i < len(ds.Dates); i++ {
			om.Set(ds.Dates[i], values[i])
		}
		return om
	}
	return map[string]any{
		"cases":     series(ds.Cases),
		"deaths":    series(ds.Deaths),
		"recovered": series(ds.Recovered),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort fixture response
}
