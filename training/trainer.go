// Package training drives the segmentation training loop: gradient
// accumulation over sub-iterations, polynomial learning rate decay, loss
// smoothing, scalar logging, and periodic checkpointing.
package training

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abhay-venkatesh/deeplab-go/checkpoints"
	"github.com/abhay-venkatesh/deeplab-go/dataset"
	"github.com/abhay-venkatesh/deeplab-go/optimizer"
	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Model is the training-facing surface of a network: a forward pass that
// may produce several logits tensors, a backward pass taking one gradient
// per output, and named parameters for checkpointing.
type Model interface {
	Forward(images *tensor.Tensor) ([]*tensor.Tensor, error)
	Backward(grads []*tensor.Tensor) error
	NamedParameters() map[string]*tensor.Tensor
}

// BatchSource yields batches until the epoch ends, then (nil, nil). Reset
// starts the next epoch.
type BatchSource interface {
	Next() (*dataset.Batch, error)
	Reset()
}

// TrainerConfig sets the iteration budget and the cadences of logging and
// checkpointing. All intervals count optimizer iterations, not batches.
type TrainerConfig struct {
	IterMax  int // total optimizer iterations
	IterSize int // gradient accumulation sub-iterations per iteration
	IterTB   int // scalar logging interval
	IterSave int // history checkpoint interval
	SaveDir  string
	LogDir   string
	Output   io.Writer // progress destination; defaults to os.Stdout
}

// Trainer runs the loop to completion.
type Trainer struct {
	cfg       TrainerConfig
	model     Model
	criterion *CrossEntropyLoss2d
	opt       *optimizer.SGD
	sched     *PolyLR
	source    BatchSource
	saver     *checkpoints.Saver
	scalars   *ScalarWriter
}

// NewTrainer validates the configuration and prepares the save and log
// directories.
func NewTrainer(cfg TrainerConfig, model Model, criterion *CrossEntropyLoss2d, opt *optimizer.SGD, sched *PolyLR, source BatchSource) (*Trainer, error) {
	if model == nil || criterion == nil || opt == nil || sched == nil || source == nil {
		return nil, fmt.Errorf("trainer requires a model, criterion, optimizer, scheduler, and batch source")
	}
	if cfg.IterMax <= 0 {
		return nil, fmt.Errorf("IterMax must be positive, got %d", cfg.IterMax)
	}
	if cfg.IterSize <= 0 {
		return nil, fmt.Errorf("IterSize must be positive, got %d", cfg.IterSize)
	}
	if cfg.IterTB <= 0 {
		return nil, fmt.Errorf("IterTB must be positive, got %d", cfg.IterTB)
	}
	if cfg.IterSave <= 0 {
		return nil, fmt.Errorf("IterSave must be positive, got %d", cfg.IterSave)
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	saver, err := checkpoints.NewSaver(cfg.SaveDir)
	if err != nil {
		return nil, err
	}
	scalars, err := NewScalarWriter(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	return &Trainer{
		cfg:       cfg,
		model:     model,
		criterion: criterion,
		opt:       opt,
		sched:     sched,
		source:    source,
		saver:     saver,
		scalars:   scalars,
	}, nil
}

type timingSample struct {
	data    float64 // seconds spent waiting for the batch
	compute float64 // seconds spent in forward and backward
}

// Run executes the full iteration budget and writes the final checkpoint and
// timing log.
func (t *Trainer) Run() error {
	meter := NewMovingAverageMeter(20)
	bar := NewProgressBar("Training", t.cfg.IterMax, t.cfg.Output)
	timings := make([]timingSample, 0, t.cfg.IterMax*t.cfg.IterSize)
	currentLR := t.sched.BaseLR()

	for iteration := 1; iteration <= t.cfg.IterMax; iteration++ {
		// The schedule is indexed from 0 so the first iteration trains at
		// the base rate.
		if lr, ok := t.sched.LR(iteration - 1); ok {
			currentLR = lr
			t.opt.SetLearningRate(lr)
		}
		t.opt.ZeroGrad()

		var lossTotal float64
		for sub := 0; sub < t.cfg.IterSize; sub++ {
			dataStart := time.Now()
			batch, err := t.nextBatch()
			if err != nil {
				return fmt.Errorf("iteration %d: %v", iteration, err)
			}
			dataSeconds := time.Since(dataStart).Seconds()

			computeStart := time.Now()
			loss, err := t.accumulate(batch)
			if err != nil {
				return fmt.Errorf("iteration %d: %v", iteration, err)
			}
			lossTotal += loss
			timings = append(timings, timingSample{
				data:    dataSeconds,
				compute: time.Since(computeStart).Seconds(),
			})
		}

		if err := t.opt.Step(); err != nil {
			return fmt.Errorf("iteration %d: optimizer step failed: %v", iteration, err)
		}
		meter.Add(lossTotal)
		bar.Update(iteration, map[string]float64{"loss": meter.Mean()})

		if iteration%t.cfg.IterTB == 0 {
			if err := t.scalars.Add("train_loss", iteration, meter.Mean()); err != nil {
				return err
			}
			for i, lr := range t.opt.LearningRates() {
				if err := t.scalars.Add(fmt.Sprintf("train_lr_%d", i), iteration, lr); err != nil {
					return err
				}
			}
		}
		if iteration%t.cfg.IterSave == 0 {
			name := fmt.Sprintf("checkpoint_%d.pth", iteration)
			if err := t.save(name, iteration, currentLR, meter.Mean()); err != nil {
				return err
			}
		}
		if iteration%100 == 0 {
			if err := t.save("checkpoint_current.pth", iteration, currentLR, meter.Mean()); err != nil {
				return err
			}
		}
	}
	bar.Finish()

	if err := t.save("checkpoint_final.pth", t.cfg.IterMax, currentLR, meter.Mean()); err != nil {
		return err
	}
	if err := t.writeTimings(timings); err != nil {
		return err
	}
	return t.scalars.Close()
}

// nextBatch pulls one batch, restarting the epoch once on exhaustion.
func (t *Trainer) nextBatch() (*dataset.Batch, error) {
	b, err := t.source.Next()
	if err != nil {
		return nil, err
	}
	if b != nil {
		return b, nil
	}
	t.source.Reset()
	b, err = t.source.Next()
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("batch source produced no batches after reset")
	}
	return b, nil
}

// accumulate runs one forward and backward over a batch, adding gradients
// scaled by 1/IterSize. The returned loss carries the same scaling, so
// summing it across sub-iterations yields the iteration loss.
func (t *Trainer) accumulate(batch *dataset.Batch) (float64, error) {
	outputs, err := t.model.Forward(batch.Images)
	if err != nil {
		return 0, fmt.Errorf("forward failed: %v", err)
	}

	inv := 1.0 / float64(t.cfg.IterSize)
	grads := make([]*tensor.Tensor, len(outputs))
	var loss float64
	for i, out := range outputs {
		if len(out.Shape) != 4 {
			return 0, fmt.Errorf("output %d has shape %v, expected [N,C,H,W]", i, out.Shape)
		}
		labels := batch.Labels
		if out.Shape[2] != labels.Shape[1] || out.Shape[3] != labels.Shape[2] {
			labels, err = tensor.ResizeNearest(batch.Labels, out.Shape[2], out.Shape[3])
			if err != nil {
				return 0, fmt.Errorf("failed to resize labels for output %d: %v", i, err)
			}
		}
		l, g, err := t.criterion.Forward(out, labels)
		if err != nil {
			return 0, fmt.Errorf("loss failed for output %d: %v", i, err)
		}
		if err := tensor.Scale(g, inv); err != nil {
			return 0, err
		}
		loss += l * inv
		grads[i] = g
	}

	if err := t.model.Backward(grads); err != nil {
		return 0, fmt.Errorf("backward failed: %v", err)
	}
	return loss, nil
}

func (t *Trainer) save(name string, iteration int, lr, loss float64) error {
	ckpt, err := checkpoints.Snapshot(t.model.NamedParameters(), checkpoints.TrainingState{
		Iteration:    iteration,
		LearningRate: lr,
		Loss:         loss,
	})
	if err != nil {
		return fmt.Errorf("failed to snapshot at iteration %d: %v", iteration, err)
	}
	if err := t.saver.Save(ckpt, name); err != nil {
		return fmt.Errorf("failed to save %s: %v", name, err)
	}
	return nil
}

// writeTimings persists the per-sub-iteration data and compute latencies
// collected over the whole run as space-delimited rows.
func (t *Trainer) writeTimings(timings []timingSample) error {
	f, err := os.Create(filepath.Join(t.cfg.LogDir, "logs.csv"))
	if err != nil {
		return fmt.Errorf("failed to create timing log: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ' '
	for _, sample := range timings {
		row := []string{
			strconv.FormatFloat(sample.data, 'g', -1, 64),
			strconv.FormatFloat(sample.compute, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write timing log: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush timing log: %v", err)
	}
	return nil
}
