package trainer

import (
	"math"
	"math/rand"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State of the retrain decision loop.
type State string

const (
	StateStable     State = "STABLE"
	StateRetraining State = "RETRAINING"
)

// ErrBelowThreshold is returned when a freshly trained model fails to clear
// the score threshold. It is fatal to the run: automated pipelines must halt
// rather than deploy a degraded model.
var ErrBelowThreshold = eris.New("trainer: retrained model below score threshold")

// GateConfig tunes the retrain decision.
type GateConfig struct {
	Threshold    float64
	RecentWindow int
	TrainWindow  int
	ValFraction  float64
	Seed         int64
}

// DefaultGateConfig returns the production gate settings.
func DefaultGateConfig() GateConfig {
	return GateConfig{
		Threshold:    0.9,
		RecentWindow: 100,
		TrainWindow:  10000,
		ValFraction:  0.25,
		Seed:         42,
	}
}

// Decision is the outcome of one pass through the gate.
type Decision struct {
	State State
	// Score is the recent-window score of the current model, or the
	// validation score of the new model when State is RETRAINING.
	Score       float64
	TrainedRows int
	Model       *GBDT
}

// Gate scores the current model against recent data and retrains when the
// score drops below the threshold.
type Gate struct {
	cfg GateConfig
	log *zap.Logger
}

// NewGate builds a gate with the given config.
func NewGate(cfg GateConfig) *Gate {
	return &Gate{cfg: cfg, log: zap.L()}
}

// Evaluate runs one pass of the decision loop.
//
// recentFeatures/recentLabels are the most recent rows of the dataset's
// feature matrix; trainFeatures/trainLabels the larger historical slice used
// only when retraining. current may be nil (no deployed model yet), which
// forces a retrain.
//
// The threshold boundary is inclusive: a model scoring exactly at the
// threshold stays STABLE.
func (g *Gate) Evaluate(current Model, recentFeatures [][]float64, recentLabels []float64, trainFeatures [][]float64, trainLabels []float64) (*Decision, error) {
	if current != nil {
		score := current.Score(recentFeatures, recentLabels)
		g.log.Info("scored current model",
			zap.Float64("score", score),
			zap.Int("recent_rows", len(recentFeatures)),
			zap.Float64("threshold", g.cfg.Threshold))
		if !math.IsNaN(score) && score >= g.cfg.Threshold {
			return &Decision{State: StateStable, Score: score}, nil
		}
	} else {
		g.log.Info("no deployed model, retraining")
	}

	return g.retrain(trainFeatures, trainLabels)
}

func (g *Gate) retrain(features [][]float64, labels []float64) (*Decision, error) {
	trainX, trainY, valX, valY := split(features, labels, g.cfg.ValFraction, g.cfg.Seed)
	if len(trainX) == 0 || len(valX) == 0 {
		return nil, eris.Errorf("trainer: %d rows is too few to split for training", len(features))
	}

	params := DefaultGBDTParams()
	params.Seed = g.cfg.Seed
	model, err := Fit(trainX, trainY, params)
	if err != nil {
		return nil, err
	}

	score := model.Score(valX, valY)
	g.log.Info("retrained model",
		zap.Float64("val_score", score),
		zap.Int("train_rows", len(trainX)),
		zap.Int("val_rows", len(valX)))

	if math.IsNaN(score) || score < g.cfg.Threshold {
		return nil, eris.Wrapf(ErrBelowThreshold, "score %.4f < %.4f", score, g.cfg.Threshold)
	}

	return &Decision{
		State:       StateRetraining,
		Score:       score,
		TrainedRows: len(trainX),
		Model:       model,
	}, nil
}

// split shuffles rows with a fixed seed and carves off the validation
// fraction, keeping retraining reproducible run to run.
func split(features [][]float64, labels []float64, valFraction float64, seed int64) (trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) {
	rng := rand.New(rand.NewSource(seed))
	idx := rng.Perm(len(features))

	nVal := int(valFraction * float64(len(features)))
	for i, j := range idx {
		if i < nVal {
			valX = append(valX, features[j])
			valY = append(valY, labels[j])
		} else {
			trainX = append(trainX, features[j])
			trainY = append(trainY, labels[j])
		}
	}
	return trainX, trainY, valX, valY
}
