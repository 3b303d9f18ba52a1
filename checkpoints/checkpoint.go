// Package checkpoints serializes model weights and training progress to
// JSON files so runs can be resumed or seeded from pretrained weights.
package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/abhay-venkatesh/deeplab-go/tensor"
)

// Checkpoint is a complete snapshot: every named weight plus the training
// state at the time of the save.
type Checkpoint struct {
	Weights       []WeightTensor     `json:"weights"`
	TrainingState TrainingState      `json:"training_state"`
	Metadata      CheckpointMetadata `json:"metadata"`
}

// WeightTensor is one named parameter with its shape and flat data.
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures training progress at save time.
type TrainingState struct {
	Iteration    int     `json:"iteration"`
	LearningRate float64 `json:"learning_rate"`
	Loss         float64 `json:"loss"`
}

// CheckpointMetadata describes the file itself.
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Saver writes and reads checkpoints under a fixed directory.
type Saver struct {
	dir string
}

// NewSaver creates the checkpoint directory if needed.
func NewSaver(dir string) (*Saver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %v", err)
	}
	return &Saver{dir: dir}, nil
}

// Dir returns the checkpoint directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Snapshot captures the named parameters and training state into a
// checkpoint. Weights are copied, so later training steps do not mutate the
// snapshot. Names are sorted for stable output.
func Snapshot(params map[string]*tensor.Tensor, state TrainingState) (*Checkpoint, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	ckpt := &Checkpoint{
		TrainingState: state,
		Metadata: CheckpointMetadata{
			Version:   "1.0.0",
			Framework: "deeplab-go",
			CreatedAt: time.Now(),
		},
	}
	for _, name := range names {
		p := params[name]
		data, err := p.Float32Data()
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %v", name, err)
		}
		ckpt.Weights = append(ckpt.Weights, WeightTensor{
			Name:  name,
			Shape: append([]int{}, p.Shape...),
			Data:  append([]float32{}, data...),
		})
	}
	return ckpt, nil
}

// Save writes the checkpoint to name inside the saver's directory. The write
// goes through a temporary file so a crash never leaves a truncated
// checkpoint behind.
func (s *Saver) Save(ckpt *Checkpoint, name string) error {
	data, err := json.Marshal(ckpt)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %v", err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write checkpoint: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize checkpoint: %v", err)
	}
	return nil
}

// Load reads a checkpoint by name from the saver's directory.
func (s *Saver) Load(name string) (*Checkpoint, error) {
	return LoadFile(filepath.Join(s.dir, name))
}

// LoadFile reads a checkpoint from an arbitrary path.
func LoadFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %v", err)
	}
	var ckpt Checkpoint
	if err := json.Unmarshal(data, &ckpt); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %v", path, err)
	}
	return &ckpt, nil
}

// RestoreInto copies checkpoint weights into the matching named parameters.
// A parameter name missing from the checkpoint is an error unless its first
// dotted component appears in skip, which lets a pretrained backbone seed a
// model whose head is trained from scratch. Checkpoint weights with no
// matching parameter are ignored.
func RestoreInto(ckpt *Checkpoint, params map[string]*tensor.Tensor, skip ...string) error {
	weights := make(map[string]*WeightTensor, len(ckpt.Weights))
	for i := range ckpt.Weights {
		weights[ckpt.Weights[i].Name] = &ckpt.Weights[i]
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}

	for name, p := range params {
		w, ok := weights[name]
		if !ok {
			if family, _, _ := strings.Cut(name, "."); skipped[family] {
				continue
			}
			return fmt.Errorf("checkpoint has no weight for parameter %q", name)
		}
		if w.Shape != nil && !shapesEqual(w.Shape, p.Shape) {
			return fmt.Errorf("parameter %q: checkpoint shape %v does not match model shape %v",
				name, w.Shape, p.Shape)
		}
		if err := p.SetData(append([]float32{}, w.Data...)); err != nil {
			return fmt.Errorf("parameter %q: %v", name, err)
		}
	}
	return nil
}

func shapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
