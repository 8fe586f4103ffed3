package universe

import (
	"strings"
)

// Universe is a named, ordered, deduplicated set of symbols. Universes
// are immutable configuration built once at process start; components
// receive them explicitly rather than looking them up globally.
type Universe struct {
	Name    string
	Symbols []string
}

// New builds a universe from a raw symbol list, keeping first-seen order
// and dropping duplicates and blanks. Names are stored upper-case so
// lookups can be case-insensitive.
func New(name string, symbols []string) Universe {
	seen := make(map[string]struct{}, len(symbols))
	deduped := make([]string, 0, len(symbols))

	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		deduped = append(deduped, s)
	}

	return Universe{
		Name:    strings.ToUpper(strings.TrimSpace(name)),
		Symbols: deduped,
	}
}

// Ticker strips the exchange marker from a symbol ("NASDAQ:AAPL" -> "AAPL").
// Symbols without a marker pass through unchanged.
func Ticker(symbol string) string {
	if idx := strings.Index(symbol, ":"); idx >= 0 {
		return symbol[idx+1:]
	}
	return symbol
}

// Registry holds the configured universes and the default fallback
type Registry struct {
	universes map[string]Universe
	order     []string
	fallback  string
}

// NewRegistry builds a registry; the first universe is the default
func NewRegistry(universes ...Universe) *Registry {
	r := &Registry{
		universes: make(map[string]Universe, len(universes)),
	}
	for _, u := range universes {
		if _, ok := r.universes[u.Name]; ok {
			continue
		}
		r.universes[u.Name] = u
		r.order = append(r.order, u.Name)
	}
	if len(r.order) > 0 {
		r.fallback = r.order[0]
	}
	return r
}

// Resolve returns the universe for a (case-insensitive) name, falling
// back to the default universe when the name is unrecognized.
func (r *Registry) Resolve(name string) Universe {
	key := strings.ToUpper(strings.TrimSpace(name))
	if u, ok := r.universes[key]; ok {
		return u
	}
	return r.universes[r.fallback]
}

// All returns the configured universes in registration order
func (r *Registry) All() []Universe {
	all := make([]Universe, 0, len(r.order))
	for _, name := range r.order {
		all = append(all, r.universes[name])
	}
	return all
}

// DefaultName returns the fallback universe name
func (r *Registry) DefaultName() string {
	return r.fallback
}

// Defaults returns the built-in universes served by the site.
// DOW30 is the default.
func Defaults() *Registry {
	return NewRegistry(
		New("DOW30", []string{
			"NYSE:MMM", "NYSE:AXP", "NASDAQ:AMGN", "NASDAQ:AAPL", "NYSE:BA",
			"NYSE:CAT", "NYSE:CVX", "NASDAQ:CSCO", "NYSE:KO", "NYSE:DIS",
			"NYSE:DOW", "NYSE:GS", "NYSE:HD", "NASDAQ:HON", "NYSE:IBM",
			"NASDAQ:INTC", "NYSE:JNJ", "NYSE:JPM", "NYSE:MCD", "NYSE:MRK",
			"NASDAQ:MSFT", "NYSE:NKE", "NYSE:PG", "NYSE:CRM", "NYSE:TRV",
			"NYSE:UNH", "NYSE:V", "NYSE:VZ", "NYSE:WMT", "NYSE:WBA",
		}),
		New("TECH", []string{
			"NASDAQ:AAPL", "NASDAQ:MSFT", "NASDAQ:GOOGL", "NASDAQ:AMZN",
			"NASDAQ:NVDA", "NASDAQ:META", "NASDAQ:TSLA", "NASDAQ:AVGO",
			"NASDAQ:ADBE", "NASDAQ:CSCO", "NASDAQ:AMD", "NASDAQ:QCOM",
			"NASDAQ:INTC", "NASDAQ:TXN", "NASDAQ:INTU", "NYSE:ORCL",
			"NYSE:CRM", "NYSE:ACN", "NASDAQ:NFLX", "NYSE:NOW",
		}),
	)
}
