package quote

import "time"

// Endpoints are the upstream URLs the default chain talks to.
type Endpoints struct {
	YahooQuoteURLs  []string
	YahooCookieURL  string
	YahooCrumbURL   string
	YahooSessionURL string
	YahooCrumbQuote string
	StooqURL        string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		YahooQuoteURLs: []string{
			"https://query2.finance.yahoo.com/v7/finance/quote",
			"https://query1.finance.yahoo.com/v7/finance/quote",
		},
		YahooCookieURL:  "https://fc.yahoo.com",
		YahooCrumbURL:   "https://query1.finance.yahoo.com/v1/test/getcrumb",
		YahooSessionURL: "https://query2.finance.yahoo.com/v7/finance/quote",
		YahooCrumbQuote: "https://query1.finance.yahoo.com/v7/finance/quote",
		StooqURL:        "https://stooq.com/q/l/",
	}
}

// Settings tune the default provider chain.
type Settings struct {
	Endpoints  Endpoints
	Timeout    time.Duration
	BatchSize  int
	BatchPause time.Duration
	Retry      RetryPolicy
	Suffixes   []string
}

func DefaultSettings() Settings {
	return Settings{
		Endpoints:  DefaultEndpoints(),
		Timeout:    15 * time.Second,
		BatchSize:  5,
		BatchPause: 500 * time.Millisecond,
		Retry:      DefaultRetryPolicy(),
		Suffixes:   DefaultSuffixes,
	}
}

// NewDefaultSource builds the full chain: Yahoo quote, Yahoo with a crumb
// session, Stooq, then Stooq with exchange suffixes.
func NewDefaultSource(s Settings) *Source {
	stooq := NewStooqProvider(StooqConfig{
		URL:     s.Endpoints.StooqURL,
		Timeout: s.Timeout,
		Retry:   s.Retry,
	})
	return NewSource(
		NewYahooProvider(YahooConfig{
			URLs:       s.Endpoints.YahooQuoteURLs,
			BatchSize:  s.BatchSize,
			BatchPause: s.BatchPause,
			Timeout:    s.Timeout,
			Retry:      s.Retry,
		}),
		NewCrumbProvider(CrumbConfig{
			CookieURL:       s.Endpoints.YahooCookieURL,
			CrumbURL:        s.Endpoints.YahooCrumbURL,
			SessionQuoteURL: s.Endpoints.YahooSessionURL,
			CrumbQuoteURL:   s.Endpoints.YahooCrumbQuote,
			Timeout:         s.Timeout,
			Retry:           s.Retry,
		}),
		stooq,
		NewSuffixProvider(stooq, s.Suffixes),
	)
}
