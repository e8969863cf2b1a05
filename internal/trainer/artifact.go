package trainer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Artifact is a trained model plus the provenance needed to audit it.
type Artifact struct {
	ID          string    `json:"id"`
	TrainedAt   time.Time `json:"trained_at"`
	TrainedRows int       `json:"trained_rows"`
	ValScore    float64   `json:"val_score"`
	Model       *GBDT     `json:"model"`
}

// NewArtifact wraps a trained model with a fresh id and timestamp.
func NewArtifact(model *GBDT, trainedRows int, valScore float64) *Artifact {
	return &Artifact{
		ID:          uuid.NewString(),
		TrainedAt:   time.Now().UTC(),
		TrainedRows: trainedRows,
		ValScore:    valScore,
		Model:       model,
	}
}

// Save writes the artifact as JSON. The write goes through a temp file and
// rename so a crash never leaves a truncated model on disk.
func (a *Artifact) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return eris.Wrap(err, "trainer: marshal artifact")
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return eris.Wrap(err, "trainer: create temp artifact")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrap(err, "trainer: write artifact")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "trainer: close artifact")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrap(err, "trainer: rename artifact")
	}
	return nil
}

// LoadArtifact reads a previously saved model artifact.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "trainer: read artifact %s", path)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, eris.Wrapf(err, "trainer: decode artifact %s", path)
	}
	if a.Model == nil {
		return nil, eris.Errorf("trainer: artifact %s has no model", path)
	}
	return &a, nil
}
