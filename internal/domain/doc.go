// Package domain models the epidemiological statistics shown on the dashboard
// and the view state derived from them.
//
// # Data Source
//
// Statistics come from the disease.sh v3 COVID-19 API
// (https://disease.sh/docs/). The service consumes four queries:
//
//	/all                          worldwide snapshot
//	/countries/{iso2}?strict=true single-country snapshot with countryInfo
//	/countries                    every country's snapshot
//	/historical/all?lastdays=N    cumulative worldwide timeline
//
// # Upstream Conventions
//
// Snapshot metrics (cases, todayCases, recovered, todayRecovered, deaths,
// todayDeaths) are non-negative integers. Any of them may be absent; an absent
// metric is kept as nil and rendered as a "no data" marker, never as zero.
//
// Coordinates live under countryInfo.lat and countryInfo.long. The worldwide
// snapshot has no countryInfo. A country response without it is treated as
// malformed and falls back to the default map view.
//
// Timeline keys are US-style dates without zero padding ("1/22/20",
// "12/3/21"). Their JSON object order is chronological, so the series is
// decoded into an insertion-ordered map; sorting the keys lexically would
// scramble the days.
//
// # Region Codes
//
// A region is either the reserved sentinel [RegionWorldwide] or an ISO 3166-1
// alpha-2 country code. Codes are normalized to upper case before querying.
package domain
