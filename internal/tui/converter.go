package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/finhub/internal/market"
)

// converter is the forex view's amount / from / to form.
type converter struct {
	inputs [3]textinput.Model
	focus  int
}

func newConverter() *converter {
	c := &converter{}
	for i, f := range []struct {
		prompt, value string
		limit         int
	}{
		{"Amount ", "1", 18},
		{"From   ", market.BaseCurrency, 3},
		{"To     ", "EUR", 3},
	} {
		in := textinput.New()
		in.Prompt = f.prompt
		in.CharLimit = f.limit
		in.SetValue(f.value)
		c.inputs[i] = in
	}
	c.inputs[0].Focus()
	return c
}

func (c *converter) next() tea.Cmd {
	c.inputs[c.focus].Blur()
	c.focus = (c.focus + 1) % len(c.inputs)
	return c.inputs[c.focus].Focus()
}

func (c *converter) update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	c.inputs[c.focus], cmd = c.inputs[c.focus].Update(msg)
	return cmd
}

func (c *converter) codes() (from, to string) {
	return strings.ToUpper(strings.TrimSpace(c.inputs[1].Value())),
		strings.ToUpper(strings.TrimSpace(c.inputs[2].Value()))
}

func (c *converter) result(r *market.Rates) (float64, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(c.inputs[0].Value()), 64)
	if err != nil {
		return 0, fmt.Errorf("amount must be a number")
	}
	from, to := c.codes()
	return market.Convert(r, amount, from, to)
}
