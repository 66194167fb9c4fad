// Package baggage converts requested bag totals into the per-passenger
// encoding the provider expects.
package baggage

import (
	"strconv"
	"strings"
)

// Per-person caps accepted by the provider.
const (
	HoldCap = 2
	HandCap = 1
)

// ClassBags holds one bag count per passenger, grouped by passenger class.
type ClassBags struct {
	Adults   []int
	Children []int
}

func (c ClassBags) Sum() int {
	total := 0
	for _, n := range c.Adults {
		total += n
	}
	for _, n := range c.Children {
		total += n
	}
	return total
}

type Allocation struct {
	Hold ClassBags
	Hand ClassBags
}

// Allocate spreads the requested bags over the passengers greedily, adults
// first, giving each person as many bags as the cap allows before moving on.
// Bags beyond the total capacity are dropped.
func Allocate(adults, children, holdBags, handBags int) Allocation {
	adults = max(adults, 0)
	children = max(children, 0)
	return Allocation{
		Hold: distribute(adults, children, holdBags, HoldCap),
		Hand: distribute(adults, children, handBags, HandCap),
	}
}

func distribute(adults, children, requested, limit int) ClassBags {
	remaining := min(max(requested, 0), limit*(adults+children))

	take := func() int {
		n := min(remaining, limit)
		remaining -= n
		return n
	}

	out := ClassBags{
		Adults:   make([]int, adults),
		Children: make([]int, children),
	}
	for i := range out.Adults {
		out.Adults[i] = take()
	}
	for i := range out.Children {
		out.Children[i] = take()
	}
	return out
}

func (a Allocation) AdultHold() string { return encode(a.Hold.Adults) }
func (a Allocation) AdultHand() string { return encode(a.Hand.Adults) }
func (a Allocation) ChildHold() string { return encode(a.Hold.Children) }
func (a Allocation) ChildHand() string { return encode(a.Hand.Children) }

// TotalHold and TotalHand are the bag counts actually allocated, which the
// price-confirmation endpoint expects as bnum.
func (a Allocation) TotalHold() int { return a.Hold.Sum() }
func (a Allocation) TotalHand() int { return a.Hand.Sum() }

func encode(counts []int) string {
	parts := make([]string, len(counts))
	for i, n := range counts {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
