package net

import (
	"bytes"
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FlavioCFOliveira/minideep/internal/layer"
	"github.com/FlavioCFOliveira/minideep/internal/opt"
	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// fixedLosses is an optimizer reporting a preset loss per epoch.
type fixedLosses struct {
	losses []float32
	rates  []float32
	runs   int
}

func (f *fixedLosses) Run(model layer.Operation, inp, target [][]float32, batchSize int, learningRate float32, rnd *rand.Rand) (*stats.Stats, error) {
	s := stats.New(2)
	s.Aggregate(0, 0, f.losses[f.runs])
	f.rates = append(f.rates, learningRate)
	f.runs++
	return s, nil
}

func linearlySeparable() (inp, target [][]float32) {
	rnd := rand.New(rand.NewSource(5))
	for i := 0; i < 40; i++ {
		x, y := rnd.Float32()*2-1, rnd.Float32()*2-1
		inp = append(inp, []float32{x, y})
		if x+y > 0 {
			target = append(target, []float32{1})
		} else {
			target = append(target, []float32{0})
		}
	}
	return inp, target
}

// TestTrainerFit tests that training a classifier lowers its loss.
func TestTrainerFit(t *testing.T) {
	c, err := NewClassifier(2, 4, 1)
	require.NoError(t, err)
	c.InitParams(rand.New(rand.NewSource(1)))

	inp, target := linearlySeparable()
	before, err := Evaluate(c, inp, target)
	require.NoError(t, err)

	var out bytes.Buffer
	tr := &Trainer{
		Model:        c,
		BatchSize:    8,
		LearningRate: 0.5,
		Shuffle:      rand.New(rand.NewSource(2)),
		Callbacks:    []Callback{Logger{Interval: 10}},
		Out:          &out,
	}
	last, err := tr.Fit(inp, target, 50)
	require.NoError(t, err)
	require.NotNil(t, last)

	after, err := Evaluate(c, inp, target)
	require.NoError(t, err)
	assert.Less(t, after.Loss(), before.Loss())
	assert.Equal(t, 40, after.Count)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "Epoch 0: loss = "), lines[0])
}

// TestTrainerEarlyStopping tests that stalled losses stop training.
func TestTrainerEarlyStopping(t *testing.T) {
	optimizer := &fixedLosses{losses: []float32{1, 0.5, 0.5, 0.5, 0.5, 0.2}}
	stop := NewEarlyStopping(2, 0.01)

	tr := &Trainer{
		Model:        NewChain(layer.NewDense(1, 1)),
		Optimizer:    optimizer,
		LearningRate: 0.1,
		Callbacks:    []Callback{stop},
		Out:          &bytes.Buffer{},
	}
	s, err := tr.Fit(nil, nil, 6)
	require.NoError(t, err)

	assert.True(t, stop.Stopped)
	assert.Equal(t, 4, optimizer.runs)
	assert.Equal(t, float32(0.5), s.Loss())
}

// TestTrainerScheduler tests that the scheduler sets the rate per epoch.
func TestTrainerScheduler(t *testing.T) {
	optimizer := &fixedLosses{losses: []float32{1, 1, 1}}
	tr := &Trainer{
		Model:     NewChain(layer.NewDense(1, 1)),
		Optimizer: optimizer,
		Scheduler: opt.NewExponentialLR(0.5, 1),
	}
	_, err := tr.Fit(nil, nil, 3)
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 0.5, 0.25}, optimizer.rates)
	assert.Equal(t, float32(0.125), tr.LR())
}

// TestEvaluateLengthMismatch tests that unequal sample arrays fail.
func TestEvaluateLengthMismatch(t *testing.T) {
	c, err := NewClassifier(2, 1)
	require.NoError(t, err)
	_, err = Evaluate(c, [][]float32{{1, 2}}, nil)
	assert.Error(t, err)
}

// TestCSVLogger tests the per-epoch records.
func TestCSVLogger(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "train.csv")

	optimizer := &fixedLosses{losses: []float32{0.5, 0.4}}
	tr := &Trainer{
		Model:        NewChain(layer.NewDense(1, 1)),
		Optimizer:    optimizer,
		LearningRate: 0.25,
		Callbacks:    []Callback{NewCSVLogger(filename, false)},
	}
	_, err := tr.Fit(nil, nil, 2)
	require.NoError(t, err)

	file, err := os.Open(filename)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"epoch", "samples", "loss", "accuracy", "lr",
		"cat0_tp", "cat0_fp", "cat0_fn", "cat1_tp", "cat1_fp", "cat1_fn"}, records[0])
	assert.Equal(t, []string{"0", "1", "0.5", "1", "0.25", "1", "0", "0", "0", "0", "0"}, records[1])
	assert.Equal(t, []string{"1", "1", "0.4", "1", "0.25", "1", "0", "0", "0", "0", "0"}, records[2])

	// appending to a non-empty file adds records without a second header
	tr.Optimizer = &fixedLosses{losses: []float32{0.3}}
	tr.Callbacks = []Callback{NewCSVLogger(filename, true)}
	_, err = tr.Fit(nil, nil, 1)
	require.NoError(t, err)

	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	records, err = csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"0", "1", "0.3"}, records[3][:3])
}

// TestLoadCSV tests loading samples with a category column.
func TestLoadCSV(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "data.csv")
	content := "f1,f2,label,f3\n1.0,2.0,0,3.0\n4.0,5.0,2,6.0\n"
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))

	d, err := LoadCSV(filename, 2, true)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2, 3}, {4, 5, 6}}, d.Samples)
	assert.Equal(t, []int{0, 2}, d.Categories)
	assert.Equal(t, 3, d.CategoryCount())
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 0, 1}}, d.Targets(3))

	last, err := LoadCSV(filename, -2, true)
	require.NoError(t, err)
	assert.Equal(t, d, last)

	_, err = LoadCSV(filename, 0, false)
	assert.Error(t, err, "a header is not numeric")

	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("1,0.5\n"), 0644))
	_, err = LoadCSV(bad, 1, false)
	assert.Error(t, err, "categories must be integers")
}

// TestDatasetTargets tests the binary encoding of two categories.
func TestDatasetTargets(t *testing.T) {
	d := &Dataset{Categories: []int{0, 1, 1}}
	assert.Equal(t, 2, d.CategoryCount())
	assert.Equal(t, [][]float32{{1}, {0}, {0}}, d.Targets(2))
}

// TestDatasetNormalization tests min-max normalization.
func TestDatasetNormalization(t *testing.T) {
	d := &Dataset{
		Samples: [][]float32{
			{10, 0, 7},
			{20, 5, 7},
			{30, 10, 7},
		},
	}

	d.Normalize()

	assert.Equal(t, [][]float32{
		{0, 0, 0},
		{0.5, 0.5, 0},
		{1, 1, 0},
	}, d.Samples)
}

// TestDatasetSplit tests splitting and shuffling.
func TestDatasetSplit(t *testing.T) {
	d := &Dataset{
		Samples:    [][]float32{{0}, {1}, {2}, {3}},
		Categories: []int{0, 1, 2, 3},
	}
	d.Shuffle(rand.New(rand.NewSource(1)))
	for i, s := range d.Samples {
		assert.Equal(t, float32(d.Categories[i]), s[0], "samples and categories move together")
	}

	train, test := d.Split(0.75)
	assert.Len(t, train.Samples, 3)
	assert.Len(t, test.Categories, 1)
}
