package notify

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"

	"github.com/swapmaker/swapmaker/internal/domain"
)

// Console implements ports.Notifier on stdout and renders the engine's state
// tables for the operator.
type Console struct {
	out      io.Writer
	registry *domain.Registry
}

// NewConsole creates a notifier writing to stdout.
func NewConsole(registry *domain.Registry) *Console {
	return &Console{out: os.Stdout, registry: registry}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer, registry *domain.Registry) *Console {
	return &Console{out: w, registry: registry}
}

// Notify prints one timestamped operator message.
func (c *Console) Notify(_ context.Context, message string) error {
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", time.Now().Format("15:04:05"), message)
	return err
}

// PrintPortfolio renders the current balances, USD values and fractions.
func (c *Console) PrintPortfolio(state *domain.PortfolioState) {
	if state == nil || len(state.Balances) == 0 {
		fmt.Fprintln(c.out, "portfolio: no data yet")
		return
	}

	fmt.Fprintf(c.out, "\nPortfolio: total $%.2f (as of %s)\n",
		state.TotalValueUSD, state.RefreshedAt.Format("15:04:05"))

	table := tablewriter.NewWriter(c.out)
	table.Header("Token", "Balance", "USD", "Value", "Fraction")

	for _, token := range c.sortedTokens(state) {
		props, ok := c.registry.Props(token)
		if !ok {
			continue
		}
		balance := props.Human(state.Balance(token))
		usd := state.USDPrices[token]

		fraction := state.Fractions[token]
		fractionLabel := fmt.Sprintf("%.2f%%", fraction*100)
		if token == c.registry.WETH {
			// folded into the ETH bucket
			fractionLabel = "→ ETH"
		}

		table.Append(
			props.Symbol,
			fmt.Sprintf("%.6f", balance),
			fmt.Sprintf("$%.4f", usd),
			fmt.Sprintf("$%.2f", balance*usd),
			fractionLabel,
		)
	}
	table.Render()
}

// PrintPlan renders the rebalance plan: deltas, needed WETH and intents.
func (c *Console) PrintPlan(plan *domain.RebalancePlan) {
	if plan == nil {
		fmt.Fprintln(c.out, "plan: none computed yet")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("Token", "Delta", "Action")

	tokens := make([]string, 0, len(plan.DeltaBalances))
	byLabel := make(map[string]*big.Int, len(plan.DeltaBalances))
	for token, delta := range plan.DeltaBalances {
		props, ok := c.registry.Props(token)
		if !ok {
			continue
		}
		tokens = append(tokens, props.Symbol)
		byLabel[props.Symbol] = delta
	}
	sort.Strings(tokens)

	for _, symbol := range tokens {
		delta := byLabel[symbol]
		action := "hold"
		switch {
		case delta.Sign() > 0:
			action = "acquire"
		case delta.Sign() < 0:
			action = "dispose"
		}
		table.Append(symbol, delta.String(), action)
	}
	table.Render()

	fmt.Fprintf(c.out, "  intents needed: %d", plan.NeededIntents)
	if plan.NeededWETH != nil && plan.NeededWETH.Sign() > 0 {
		fmt.Fprintf(c.out, " | wrap %s wei of ETH before trading", plan.NeededWETH)
	}
	if !plan.Executable {
		if plan.MissingRights != nil {
			fmt.Fprintf(c.out, " | NOT EXECUTABLE: %s trading rights missing", plan.MissingRights)
		} else {
			fmt.Fprint(c.out, " | NOT EXECUTABLE: rights balance unknown")
		}
	}
	fmt.Fprintln(c.out)
}

// PrintOpenOrders renders the outstanding signed offers.
func (c *Console) PrintOpenOrders(orders []domain.OpenOrder) {
	if len(orders) == 0 {
		fmt.Fprintln(c.out, "no open orders")
		return
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ExpiresAt.Before(orders[j].ExpiresAt)
	})

	table := tablewriter.NewWriter(c.out)
	table.Header("Pair", "Maker amount", "Taker amount", "Expires")
	for _, o := range orders {
		makerProps, _ := c.registry.Props(o.Order.MakerToken)
		takerProps, _ := c.registry.Props(o.Order.TakerToken)
		table.Append(
			makerProps.Symbol+"/"+takerProps.Symbol,
			fmt.Sprintf("%.6f %s", makerProps.Human(o.Order.MakerAmount), makerProps.Symbol),
			fmt.Sprintf("%.6f %s", takerProps.Human(o.Order.TakerAmount), takerProps.Symbol),
			o.ExpiresAt.Format("15:04:05"),
		)
	}
	table.Render()
}

// sortedTokens lists the refreshed tokens in the registry's stable order.
func (c *Console) sortedTokens(state *domain.PortfolioState) []common.Address {
	tokens := make([]common.Address, 0, len(state.Balances))
	for _, token := range c.registry.List() {
		if _, ok := state.Balances[token]; ok {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
