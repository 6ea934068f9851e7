package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lox/gritting/internal/gritting"
)

const (
	kindClassifier = "classifier"
	kindRegressor  = "regressor"
	leafFeature    = -1
)

// Forest artifacts are exported tree ensembles. A node with feature -1 is a
// leaf; otherwise samples with x[feature] <= threshold go left.
type forestFile struct {
	Kind      string `json:"kind"`
	NFeatures int    `json:"n_features"`
	Trees     []tree `json:"trees"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

type node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

func (t tree) leaf(f gritting.Features) node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature == leafFeature {
			return n
		}
		if f[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Classifier averages per-tree class probabilities. Leaf values are
// [negative, positive] counts or probabilities.
type Classifier struct {
	trees []tree
}

// Infer averages the per-tree class probabilities.
func (c *Classifier) Infer(f gritting.Features) gritting.Decision {
	var sum float64
	for _, t := range c.trees {
		v := t.leaf(f).Value
		total := v[0] + v[1]
		if total > 0 {
			sum += v[1] / total
		}
	}
	p := sum / float64(len(c.trees))
	return gritting.Decision{Grit: p > 0.5, Confidence: p}
}

// Regressor averages per-tree leaf values.
type Regressor struct {
	trees []tree
}

// Infer averages the per-tree predictions.
func (r *Regressor) Infer(f gritting.Features) float64 {
	var sum float64
	for _, t := range r.trees {
		sum += t.leaf(f).Value[0]
	}
	return sum / float64(len(r.trees))
}

// ParseClassifier decodes and checks a classifier forest.
func ParseClassifier(data []byte) (*Classifier, error) {
	ff, err := parseForest(data, kindClassifier)
	if err != nil {
		return nil, err
	}
	return &Classifier{trees: ff.Trees}, nil
}

// ParseRegressor decodes and checks a regressor forest.
func ParseRegressor(data []byte) (*Regressor, error) {
	ff, err := parseForest(data, kindRegressor)
	if err != nil {
		return nil, err
	}
	return &Regressor{trees: ff.Trees}, nil
}

func parseForest(data []byte, kind string) (*forestFile, error) {
	var ff forestFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("unmarshal forest: %w", err)
	}
	if ff.Kind != kind {
		return nil, fmt.Errorf("forest kind %q, want %q", ff.Kind, kind)
	}
	if ff.NFeatures != gritting.NumFeatures {
		return nil, fmt.Errorf("forest trained on %d features, want %d", ff.NFeatures, gritting.NumFeatures)
	}
	if len(ff.Trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	for i, t := range ff.Trees {
		if err := validateTree(t, kind); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return &ff, nil
}

// validateTree guarantees traversal terminates and never indexes out of
// range: children always point forward.
func validateTree(t tree, kind string) error {
	if len(t.Nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Feature == leafFeature {
			switch kind {
			case kindClassifier:
				if len(n.Value) != 2 || n.Value[0] < 0 || n.Value[1] < 0 {
					return fmt.Errorf("node %d: classifier leaf needs 2 non-negative values", i)
				}
			case kindRegressor:
				if len(n.Value) == 0 {
					return fmt.Errorf("node %d: regressor leaf has no value", i)
				}
			}
			continue
		}
		if n.Feature < 0 || n.Feature >= gritting.NumFeatures {
			return fmt.Errorf("node %d: feature index %d out of range", i, n.Feature)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d: child %d out of range", i, child)
			}
		}
	}
	return nil
}
