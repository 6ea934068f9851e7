package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/lox/gritting/internal/gritting"
)

// DefaultPrefix is where the training job writes its artifacts.
const DefaultPrefix = "models/gritting"

// Artifact suffixes appended to the prefix. Each file is JSON, optionally
// zstd-compressed with a further ".zst" extension.
var ArtifactSuffixes = []string{
	"_decision_model.json",
	"_amount_model.json",
	"_encoders.json",
	"_feature_cols.json",
}

// ErrFeatureMismatch is returned when the trained column order differs from
// the feature vector built for inference.
var ErrFeatureMismatch = errors.New("feature columns do not match")

// ErrEmptyEncoding is returned when the encoders artifact has no
// precipitation table.
var ErrEmptyEncoding = errors.New("precipitation encoding is empty")

type encodersFile struct {
	PrecipitationType map[string]int `json:"precipitation_type"`
}

// Load reads the decision model, amount model, precipitation encoding and
// feature column list written by the training job under prefix. An encoding
// that lacks some labels still loads; see PrecipitationEncoding.Missing.
func Load(prefix string) (*gritting.Models, error) {
	cols, err := readArtifact(prefix + "_feature_cols.json")
	if err != nil {
		return nil, err
	}
	if err := checkFeatureColumns(cols); err != nil {
		return nil, err
	}

	data, err := readArtifact(prefix + "_decision_model.json")
	if err != nil {
		return nil, err
	}
	decision, err := ParseClassifier(data)
	if err != nil {
		return nil, fmt.Errorf("decision model: %w", err)
	}

	data, err = readArtifact(prefix + "_amount_model.json")
	if err != nil {
		return nil, err
	}
	amount, err := ParseRegressor(data)
	if err != nil {
		return nil, fmt.Errorf("amount model: %w", err)
	}

	data, err = readArtifact(prefix + "_encoders.json")
	if err != nil {
		return nil, err
	}
	var enc encodersFile
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("unmarshal encoders: %w", err)
	}
	if len(enc.PrecipitationType) == 0 {
		return nil, fmt.Errorf("encoders: %w", ErrEmptyEncoding)
	}
	encoding := gritting.PrecipitationEncoding(enc.PrecipitationType)

	return &gritting.Models{
		Decision: decision,
		Amount:   amount,
		Encoding: encoding,
	}, nil
}

func checkFeatureColumns(data []byte) error {
	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		return fmt.Errorf("unmarshal feature columns: %w", err)
	}
	if len(cols) != gritting.NumFeatures {
		return fmt.Errorf("%w: got %d columns, want %d", ErrFeatureMismatch, len(cols), gritting.NumFeatures)
	}
	for i, name := range gritting.FeatureNames {
		if cols[i] != name {
			return fmt.Errorf("%w: column %d is %q, want %q", ErrFeatureMismatch, i, cols[i], name)
		}
	}
	return nil
}

// readArtifact reads path, falling back to path+".zst".
func readArtifact(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	f, zerr := os.Open(path + ".zst")
	if zerr != nil {
		if errors.Is(zerr, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return nil, fmt.Errorf("open %s.zst: %w", path, zerr)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader %s.zst: %w", path, err)
	}
	defer dec.Close()

	data, err = io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress %s.zst: %w", path, err)
	}
	return data, nil
}
