package net

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/FlavioCFOliveira/minideep/internal/stats"
)

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(t *Trainer)
	OnTrainEnd(t *Trainer)
	OnEpochBegin(epoch int, t *Trainer)
	OnEpochEnd(epoch int, s *stats.Stats, t *Trainer)
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(t *Trainer)                          {}
func (c BaseCallback) OnTrainEnd(t *Trainer)                            {}
func (c BaseCallback) OnEpochBegin(epoch int, t *Trainer)               {}
func (c BaseCallback) OnEpochEnd(epoch int, s *stats.Stats, t *Trainer) {}

// EarlyStopping stops training when the loss has stopped improving by more
// than Threshold for Patience epochs.
type EarlyStopping struct {
	BaseCallback
	Patience  int
	Threshold float32

	bestLoss     float32
	numBadEpochs int
	Stopped      bool
}

func NewEarlyStopping(patience int, threshold float32) *EarlyStopping {
	return &EarlyStopping{
		Patience:  patience,
		Threshold: threshold,
		bestLoss:  math.MaxFloat32,
	}
}

func (c *EarlyStopping) OnTrainBegin(t *Trainer) {
	c.bestLoss = math.MaxFloat32
	c.numBadEpochs = 0
	c.Stopped = false
}

func (c *EarlyStopping) OnEpochEnd(epoch int, s *stats.Stats, t *Trainer) {
	loss := s.Loss()
	if loss < c.bestLoss-c.Threshold {
		c.bestLoss = loss
		c.numBadEpochs = 0
	} else {
		c.numBadEpochs++
	}

	if c.numBadEpochs >= c.Patience {
		fmt.Fprintf(t.out(), "\nEarly stopping at epoch %d: loss %.6f did not improve for %d epochs\n", epoch, loss, c.Patience)
		c.Stopped = true
		t.Stop()
	}
}

// Logger logs training progress every Interval epochs to Out, or to the
// trainer's output if Out is nil.
type Logger struct {
	BaseCallback
	Interval int
	Out      io.Writer
}

func (c Logger) OnEpochEnd(epoch int, s *stats.Stats, t *Trainer) {
	if c.Interval > 0 && epoch%c.Interval == 0 {
		w := c.Out
		if w == nil {
			w = t.out()
		}
		fmt.Fprintf(w, "Epoch %d: loss = %.6f, accuracy = %.4f, lr = %g\n", epoch, s.Loss(), s.Accuracy(), t.LR())
	}
}

// out returns where callbacks print.
func (t *Trainer) out() io.Writer {
	if t.Out != nil {
		return t.Out
	}
	return os.Stdout
}
