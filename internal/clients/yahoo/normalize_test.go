package yahoo

import (
	"testing"

	"github.com/openfund/fundament/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeIncome(t *testing.T) {
	client := NewClient(nil, zerolog.Nop())

	period := client.NormalizeIncome(domain.RawPeriod{
		EndDate:      "2023-09-30",
		FiscalPeriod: "FY",
		FiscalYear:   "2023",
		Income: map[string]interface{}{
			"Total Revenue":    383285000000.0,
			"Operating Income": 114301000000.0,
			"Net Income":       96995000000.0,
			"EBITDA":           125820000000.0,
		},
	})

	require.NotNil(t, period.Revenues)
	assert.Equal(t, 383285000000.0, *period.Revenues)
	require.NotNil(t, period.EBITDA)
	assert.Equal(t, 125820000000.0, *period.EBITDA)
	// EBIT falls back to Operating Income when not reported directly.
	require.NotNil(t, period.EBIT)
	assert.Equal(t, 114301000000.0, *period.EBIT)
	assert.Nil(t, period.CostOfRevenue)
}

func TestNormalizeBalanceCombinedDebtNames(t *testing.T) {
	client := NewClient(nil, zerolog.Nop())

	// Yahoo frequently reports only the combined capital-lease names.
	period := client.NormalizeBalance(domain.RawPeriod{
		Balance: map[string]interface{}{
			"Current Debt And Capital Lease Obligation":   120.0,
			"Long Term Debt And Capital Lease Obligation": 380.0,
			"Total Debt": 500.0,
		},
	})

	require.NotNil(t, period.CurrentDebt)
	assert.Equal(t, 120.0, *period.CurrentDebt)
	require.NotNil(t, period.LongTermDebt)
	assert.Equal(t, 380.0, *period.LongTermDebt)
	require.NotNil(t, period.ShortLongTermDebtTotal)
	assert.Equal(t, 500.0, *period.ShortLongTermDebtTotal)

	// Plain names win over the combined ones when both are present.
	period = client.NormalizeBalance(domain.RawPeriod{
		Balance: map[string]interface{}{
			"Current Debt": 100.0,
			"Current Debt And Capital Lease Obligation": 120.0,
		},
	})
	require.NotNil(t, period.CurrentDebt)
	assert.Equal(t, 100.0, *period.CurrentDebt)
}

func TestNormalizeBalanceCashChain(t *testing.T) {
	client := NewClient(nil, zerolog.Nop())

	period := client.NormalizeBalance(domain.RawPeriod{
		Balance: map[string]interface{}{
			"Cash Cash Equivalents And Short Term Investments": 60000.0,
		},
	})
	require.NotNil(t, period.CashAndEquivalents)
	assert.Equal(t, 60000.0, *period.CashAndEquivalents)

	period = client.NormalizeBalance(domain.RawPeriod{Balance: map[string]interface{}{}})
	assert.Nil(t, period.CashAndEquivalents)
}
