package syllabus

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"
)

// ErrEmptyDistribution is returned when no section receives any questions.
var ErrEmptyDistribution = errors.New("no section receives any questions")

// minCountForForcedSections is the test size above which every weighted
// section gets at least one question. Smaller tests accept empty sections.
const minCountForForcedSections = 10

// Distribute splits target questions across the pattern in proportion to the
// section weights. Content and methodology sections are renamed after subject
// when one is given. Counts in the result always sum to target and keep the
// pattern's order.
func Distribute(pattern []Section, target int, subject string) ([]Allocation, error) {
	if target <= 0 {
		return nil, fmt.Errorf("question count must be positive, got %d", target)
	}
	total := lo.SumBy(pattern, func(s Section) int { return s.Weight })
	if total <= 0 {
		return nil, ErrEmptyDistribution
	}

	scale := float64(target) / float64(total)
	out := make([]Allocation, 0, len(pattern))
	for _, s := range pattern {
		count := int(math.Round(float64(s.Weight) * scale))
		if count == 0 && s.Weight > 0 && target > minCountForForcedSections {
			count = 1
		}
		if count == 0 {
			continue
		}
		out = append(out, Allocation{Name: sectionName(s, subject), Count: count})
	}
	if len(out) == 0 {
		return nil, ErrEmptyDistribution
	}

	return reconcile(out, target), nil
}

func sectionName(s Section, subject string) string {
	switch {
	case subject == "":
		return s.Name
	case s.IsMethodology:
		return subject + " (Methodology)"
	case s.IsContent:
		return subject + " (Content)"
	}
	return s.Name
}

// reconcile moves the rounding difference onto the largest section, first in
// order on ties. On tiny tests the overshoot can exceed that section's count;
// the remainder then comes off the next largest, and emptied sections drop out.
func reconcile(out []Allocation, target int) []Allocation {
	diff := target - lo.SumBy(out, func(a Allocation) int { return a.Count })
	for diff != 0 && len(out) > 0 {
		i := largest(out)
		next := out[i].Count + diff
		if next >= 0 {
			out[i].Count = next
			diff = 0
		} else {
			out[i].Count = 0
			diff = next
		}
		out = lo.Filter(out, func(a Allocation, _ int) bool { return a.Count > 0 })
	}
	return out
}

func largest(out []Allocation) int {
	best := 0
	for i := 1; i < len(out); i++ {
		if out[i].Count > out[best].Count {
			best = i
		}
	}
	return best
}
