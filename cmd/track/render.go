package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ZeeShekh1908/royal/internal/orders"
	"github.com/ZeeShekh1908/royal/internal/projection"
)

func money(paise int64) string {
	return "₹" + orders.Rupees(paise)
}

// renderProgress draws the step bar for one order, the reached steps in
// brackets.
func renderProgress(w io.Writer, p projection.Progress) {
	steps := make([]string, len(projection.Steps))
	for i, s := range projection.Steps {
		if i <= p.Step {
			s = "[" + s + "]"
		}
		steps[i] = s
	}
	fmt.Fprintf(w, "%s\n  %s\n  %s x%d  %s  %s\n",
		p.Headline, strings.Join(steps, " > "), p.Item, p.Quantity, money(p.TotalPaise), p.ETA)
}

func renderHistory(w io.Writer, entries []projection.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no orders yet")
		return
	}
	for _, e := range entries {
		o := e.Order
		fmt.Fprintf(w, "%s  %s x%d  %s  %s\n",
			o.CreatedAt.Local().Format("02 Jan 15:04"), o.LineItem.Name, o.Quantity, money(o.TotalPaise), e.Message)
	}
}
