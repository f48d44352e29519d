package smoothing

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// TieBreak chooses between labels with equal counts
type TieBreak string

const (
	// TieBreakSmallest picks the smallest label value
	TieBreakSmallest TieBreak = "smallest"
	// TieBreakFirstSeen picks the label that entered the window earliest
	TieBreakFirstSeen TieBreak = "first_seen"
)

// labelCounts is the label -> count side table of the ring
type labelCounts interface {
	inc(label int)
	dec(label int)
	mode() (int, bool)
	total() int
}

func newLabelCounts(tb TieBreak) labelCounts {
	if tb == TieBreakFirstSeen {
		return &orderedCounts{m: orderedmap.New[int, int]()}
	}
	return &sortedCounts{m: make(map[int]int)}
}

type sortedCounts struct {
	m map[int]int
	n int
}

func (c *sortedCounts) inc(label int) {
	c.m[label]++
	c.n++
}

func (c *sortedCounts) dec(label int) {
	n, ok := c.m[label]
	if !ok {
		return
	}
	c.n--
	if n <= 1 {
		delete(c.m, label)
		return
	}
	c.m[label] = n - 1
}

func (c *sortedCounts) mode() (int, bool) {
	best, bestCount, found := 0, 0, false
	for label, n := range c.m {
		if !found || n > bestCount || (n == bestCount && label < best) {
			best, bestCount, found = label, n, true
		}
	}
	return best, found
}

func (c *sortedCounts) total() int { return c.n }

type orderedCounts struct {
	m *orderedmap.OrderedMap[int, int]
	n int
}

func (c *orderedCounts) inc(label int) {
	n, _ := c.m.Get(label)
	c.m.Set(label, n+1)
	c.n++
}

func (c *orderedCounts) dec(label int) {
	n, ok := c.m.Get(label)
	if !ok {
		return
	}
	c.n--
	if n <= 1 {
		c.m.Delete(label)
		return
	}
	c.m.Set(label, n-1)
}

func (c *orderedCounts) mode() (int, bool) {
	best, bestCount, found := 0, 0, false
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		if !found || pair.Value > bestCount {
			best, bestCount, found = pair.Key, pair.Value, true
		}
	}
	return best, found
}

func (c *orderedCounts) total() int { return c.n }
