package tracking

import "time"

// CitySnapshot is the payload pushed to every live subscriber of a city and
// cached briefly between poll cycles.
type CitySnapshot struct {
	City             string                  `json:"city"`
	CurrentPrices    map[string]HotelPrices  `json:"current_prices"`
	HistoricalTrends map[string]TrendSeries  `json:"historical_trends"`
	PriceChanges     map[string]float64      `json:"price_changes"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

// HotelPrices summarizes one hotel's prices over the lookback window.
type HotelPrices struct {
	HotelName    string  `json:"hotel_name"`
	CurrentPrice float64 `json:"current_price"`
	MinPrice     float64 `json:"min_price"`
	MaxPrice     float64 `json:"max_price"`
	AvgPrice     float64 `json:"avg_price"`
}

// TrendSeries carries the raw history behind the summary, ordered by time.
type TrendSeries struct {
	Dates  []time.Time `json:"dates"`
	Prices []float64   `json:"prices"`
}

// CityStats is the statistical breakdown served by the stats endpoint.
type CityStats struct {
	City          string                `json:"city"`
	TotalHotels   int                   `json:"total_hotels"`
	PriceRanges   map[string]PriceRange `json:"price_ranges"`
	AveragePrices AveragePrices         `json:"average_prices"`
}

type PriceRange struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Count int     `json:"count"`
}

type AveragePrices struct {
	Overall  float64            `json:"overall"`
	ByRating map[string]float64 `json:"by_rating"`
}
