// Package stats aggregates per-sample classification results into loss,
// accuracy and per-category confusion counts.
package stats

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of one sample from the point of view of one category.
type Result int

const (
	TruePositive Result = iota
	TrueNegative
	FalsePositive
	FalseNegative

	resultCount
)

// Stats counts, per category, how often each Result occurred. The zero value
// is not usable; call New.
type Stats struct {
	LossSum float64
	Count   int

	// counts has one row per category and one column per Result.
	counts *mat.Dense
}

// New creates a Stats for the given number of categories.
func New(categoryCount int) *Stats {
	if categoryCount < 1 {
		categoryCount = 1
	}
	return &Stats{counts: mat.NewDense(categoryCount, int(resultCount), nil)}
}

// CategoryCount returns the number of categories.
func (s *Stats) CategoryCount() int {
	r, _ := s.counts.Dims()
	return r
}

// Aggregate records one sample. A correct prediction is a true positive for
// its category and a true negative for all others; a wrong one is a false
// positive for the predicted category and a false negative for the real one.
// Categories outside the range are counted only in loss and Count.
func (s *Stats) Aggregate(real, predicted int, loss float32) {
	s.Count++
	s.LossSum += float64(loss)

	correct := real == predicted
	for i := 0; i < s.CategoryCount(); i++ {
		var r Result
		switch {
		case correct && i == predicted:
			r = TruePositive
		case correct:
			r = TrueNegative
		case i == predicted:
			r = FalsePositive
		case i == real:
			r = FalseNegative
		default:
			r = TrueNegative
		}
		s.counts.Set(i, int(r), s.counts.At(i, int(r))+1)
	}
}

// Loss returns the mean loss of all aggregated samples.
func (s *Stats) Loss() float32 {
	if s.Count == 0 {
		return 0
	}
	return float32(s.LossSum / float64(s.Count))
}

// Accuracy returns the fraction of correctly predicted samples.
func (s *Stats) Accuracy() float32 {
	if s.Count == 0 {
		return 0
	}
	tp := mat.Col(nil, int(TruePositive), s.counts)
	return float32(floats.Sum(tp) / float64(s.Count))
}

// Counts returns the counts of category cat, indexed by Result.
func (s *Stats) Counts(cat int) [4]int {
	var out [4]int
	for r := range out {
		out[r] = int(s.counts.At(cat, r))
	}
	return out
}

// Merge adds the counts of other, which must have the same category count.
func (s *Stats) Merge(other *Stats) {
	s.Count += other.Count
	s.LossSum += other.LossSum
	s.counts.Add(s.counts, other.counts)
}

var header = []string{
	"cats↓\\results→",
	"realPositive",
	"realNegative",
	"detectedPos",
	"detectedNeg",
	"truePos",
	"trueNeg",
	"falsePos",
	"falseNeg",
	"sensitivity",
	"specificity",
}

// String renders the aggregate and a per-category table.
func (s *Stats) String() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "batchSize: %d\n", s.Count)
	fmt.Fprintf(&sb, "loss.....: %v\n", s.Loss())
	fmt.Fprintf(&sb, "accuracy.: %v\n", s.Accuracy())

	width := 0
	for _, h := range header {
		width = max(width, len([]rune(h)))
	}
	width++

	cell := func(v string) {
		sb.WriteString(strings.Repeat(" ", width-len([]rune(v))))
		sb.WriteString(v)
	}
	for _, h := range header {
		cell(h)
	}
	sb.WriteString("\n")

	for i := 0; i < s.CategoryCount(); i++ {
		c := s.Counts(i)
		tp, tn, fp, fn := c[TruePositive], c[TrueNegative], c[FalsePositive], c[FalseNegative]

		cell(strconv.Itoa(i))
		for _, v := range []int{tp + fn, fp + tn, tp + fp, tn + fn, tp, tn, fp, fn} {
			cell(strconv.Itoa(v))
		}
		cell(ratio(tp, tp+fn))
		cell(ratio(tn, tn+fp))
		sb.WriteString("\n")
	}

	return sb.String()
}

func ratio(a, b int) string {
	if b == 0 {
		return "NaN"
	}
	return strconv.FormatFloat(float64(a)/float64(b), 'g', 4, 64)
}

// RealityCategory returns the category encoded by a target vector. A single
// value of 1 is category 0 and anything else category 1; wider vectors are
// one-hot encoded.
func RealityCategory(target []float32) int {
	if len(target) == 1 {
		if target[0] == 1 {
			return 0
		}
		return 1
	}
	return argmax(target)
}

// PredictedCategory returns the category predicted by an output vector. A
// single value of at least 0.5 is category 0 and anything else category 1;
// wider vectors predict their largest element.
func PredictedCategory(out []float32) int {
	if len(out) == 1 {
		if out[0] >= 0.5 {
			return 0
		}
		return 1
	}
	return argmax(out)
}

func argmax(vec []float32) int {
	best := 0
	for i, v := range vec {
		if v > vec[best] {
			best = i
		}
	}
	return best
}
