package net

import (
	"encoding/csv"
	"math"
	"math/rand"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

// Dataset is a set of classification samples with their category indices.
type Dataset struct {
	Samples    [][]float32
	Categories []int
}

// LoadCSV loads numeric samples from a CSV file. Column labelCol holds the
// category index, a non-negative integer; a negative labelCol counts from
// the last column. All other columns are features. hasHeader skips the
// first line.
func LoadCSV(filename string, labelCol int, hasHeader bool) (*Dataset, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	reader := csv.NewReader(file)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv")
	}

	if len(records) == 0 {
		return nil, errors.New("csv file is empty")
	}

	startRow := 0
	if hasHeader {
		startRow = 1
	}

	if len(records) <= startRow {
		return nil, errors.New("csv file has no data rows")
	}

	numCols := len(records[0])
	if labelCol < 0 {
		labelCol += numCols
	}
	if labelCol < 0 || labelCol >= numCols {
		return nil, errors.Errorf("label column %d out of range for %d columns", labelCol, numCols)
	}

	d := &Dataset{
		Samples:    make([][]float32, 0, len(records)-startRow),
		Categories: make([]int, 0, len(records)-startRow),
	}

	for i := startRow; i < len(records); i++ {
		record := records[i]
		if len(record) != numCols {
			return nil, errors.Errorf("inconsistent number of columns at row %d", i)
		}

		sample := make([]float32, 0, numCols-1)
		for j, valStr := range record {
			val, err := strconv.ParseFloat(valStr, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to parse value at row %d, col %d", i, j)
			}

			if j != labelCol {
				sample = append(sample, float32(val))
				continue
			}
			if val < 0 || val != math.Trunc(val) {
				return nil, errors.Errorf("category at row %d must be a non-negative integer, got %s", i, valStr)
			}
			d.Categories = append(d.Categories, int(val))
		}
		d.Samples = append(d.Samples, sample)
	}

	return d, nil
}

// CategoryCount returns one more than the largest category, but at least 2.
func (d *Dataset) CategoryCount() int {
	n := 2
	for _, c := range d.Categories {
		n = max(n, c+1)
	}
	return n
}

// Targets encodes the categories as classifier targets. Two categories are
// encoded as a single value, 1 for category 0 and 0 for category 1, to match
// a classifier with one sigmoid output. More categories are one-hot encoded.
func (d *Dataset) Targets(categoryCount int) [][]float32 {
	targets := make([][]float32, len(d.Categories))
	for i, c := range d.Categories {
		if categoryCount == 2 {
			t := float32(0)
			if c == 0 {
				t = 1
			}
			targets[i] = []float32{t}
			continue
		}

		targets[i] = make([]float32, categoryCount)
		if c < categoryCount {
			targets[i][c] = 1
		}
	}
	return targets
}

// Normalize performs min-max normalization on the samples.
func (d *Dataset) Normalize() {
	if len(d.Samples) == 0 {
		return
	}

	numFeatures := len(d.Samples[0])
	lo := make([]float32, numFeatures)
	hi := make([]float32, numFeatures)

	copy(lo, d.Samples[0])
	copy(hi, d.Samples[0])

	for _, sample := range d.Samples {
		for i, val := range sample {
			lo[i] = min(lo[i], val)
			hi[i] = max(hi[i], val)
		}
	}

	for _, sample := range d.Samples {
		for i := range sample {
			diff := hi[i] - lo[i]
			if diff != 0 {
				sample[i] = (sample[i] - lo[i]) / diff
			} else {
				sample[i] = 0
			}
		}
	}
}

// Shuffle permutes the samples in place using rnd.
func (d *Dataset) Shuffle(rnd *rand.Rand) {
	rnd.Shuffle(len(d.Samples), func(i, j int) {
		d.Samples[i], d.Samples[j] = d.Samples[j], d.Samples[i]
		d.Categories[i], d.Categories[j] = d.Categories[j], d.Categories[i]
	})
}

// Split splits the dataset into two based on the given ratio (0.0 to 1.0).
// Returns two new Datasets (train, test).
func (d *Dataset) Split(ratio float32) (*Dataset, *Dataset) {
	if ratio <= 0 {
		return &Dataset{}, d
	}
	if ratio >= 1 {
		return d, &Dataset{}
	}

	splitIdx := int(float32(len(d.Samples)) * ratio)

	train := &Dataset{
		Samples:    d.Samples[:splitIdx],
		Categories: d.Categories[:splitIdx],
	}

	test := &Dataset{
		Samples:    d.Samples[splitIdx:],
		Categories: d.Categories[splitIdx:],
	}

	return train, test
}
