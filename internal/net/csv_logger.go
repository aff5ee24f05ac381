package net

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// CSVLogger writes one record per epoch: the epoch, the sample count, loss,
// accuracy, learning rate and the per-category true positive, false positive
// and false negative counts. The category columns are fixed by the first
// epoch's stats.
type CSVLogger struct {
	BaseCallback
	Filename string
	Append   bool

	file       *os.File
	w          *csv.Writer
	needHeader bool
	categories int
}

func NewCSVLogger(filename string, append bool) *CSVLogger {
	return &CSVLogger{Filename: filename, Append: append}
}

func (c *CSVLogger) OnTrainBegin(t *Trainer) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if c.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(c.Filename, flags, 0644)
	if err != nil {
		fmt.Fprintf(t.out(), "csv logger: %v\n", err)
		return
	}

	c.file, c.w = file, csv.NewWriter(file)
	c.needHeader = true
	if c.Append {
		if info, err := file.Stat(); err == nil && info.Size() > 0 {
			c.needHeader = false
		}
	}
	c.categories = -1
}

func (c *CSVLogger) header(categories int) []string {
	h := []string{"epoch", "samples", "loss", "accuracy", "lr"}
	for i := 0; i < categories; i++ {
		p := "cat" + strconv.Itoa(i) + "_"
		h = append(h, p+"tp", p+"fp", p+"fn")
	}
	return h
}

func (c *CSVLogger) OnEpochEnd(epoch int, s *stats.Stats, t *Trainer) {
	if c.w == nil {
		return
	}
	if c.categories < 0 {
		c.categories = s.CategoryCount()
		if c.needHeader {
			c.w.Write(c.header(c.categories))
		}
	}

	rec := []string{
		strconv.Itoa(epoch),
		strconv.Itoa(s.Count),
		strconv.FormatFloat(float64(s.Loss()), 'g', -1, 32),
		strconv.FormatFloat(float64(s.Accuracy()), 'g', -1, 32),
		strconv.FormatFloat(float64(t.LR()), 'g', -1, 32),
	}
	for i := 0; i < c.categories; i++ {
		var n [4]int
		if i < s.CategoryCount() {
			n = s.Counts(i)
		}
		rec = append(rec,
			strconv.Itoa(n[stats.TruePositive]),
			strconv.Itoa(n[stats.FalsePositive]),
			strconv.Itoa(n[stats.FalseNegative]))
	}

	c.w.Write(rec)
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		fmt.Fprintf(t.out(), "csv logger: %v\n", err)
	}
}

func (c *CSVLogger) OnTrainEnd(t *Trainer) {
	if c.file == nil {
		return
	}
	c.w.Flush()
	if err := c.file.Close(); err != nil {
		fmt.Fprintf(t.out(), "csv logger: %v\n", err)
	}
	c.file, c.w = nil, nil
}
