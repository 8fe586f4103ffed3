package universe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	u := New("demo", []string{"NYSE:A", " NYSE:B ", "NYSE:A", "", "NASDAQ:C"})

	assert.Equal(t, "DEMO", u.Name)
	assert.Equal(t, []string{"NYSE:A", "NYSE:B", "NASDAQ:C"}, u.Symbols)
}

func TestTicker(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"NASDAQ:AAPL", "AAPL"},
		{"NYSE:KO", "KO"},
		{"AAPL", "AAPL"},
		{"X:Y:Z", "Y:Z"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			assert.Equal(t, tt.want, Ticker(tt.symbol))
		})
	}
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry(
		New("DOW30", []string{"NYSE:KO"}),
		New("TECH", []string{"NASDAQ:AAPL"}),
	)

	assert.Equal(t, "DOW30", reg.DefaultName())

	// Case-insensitive lookup
	assert.Equal(t, "TECH", reg.Resolve("tech").Name)
	assert.Equal(t, "TECH", reg.Resolve(" Tech ").Name)

	// Unknown names fall back to the default universe
	assert.Equal(t, "DOW30", reg.Resolve("NO_SUCH").Name)
	assert.Equal(t, "DOW30", reg.Resolve("").Name)
}

func TestRegistryAll(t *testing.T) {
	reg := NewRegistry(
		New("A", []string{"X:1"}),
		New("B", []string{"X:2"}),
		New("A", []string{"X:3"}), // duplicate name ignored
	)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "A", all[0].Name)
	assert.Equal(t, "B", all[1].Name)
	assert.Equal(t, []string{"X:1"}, all[0].Symbols)
}

func TestDefaults(t *testing.T) {
	reg := Defaults()

	dow := reg.Resolve("DOW30")
	require.NotEmpty(t, dow.Symbols)
	assert.Len(t, dow.Symbols, 30)

	tech := reg.Resolve("TECH")
	assert.Len(t, tech.Symbols, 20)

	assert.Equal(t, "DOW30", reg.DefaultName())
}
