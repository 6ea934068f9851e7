package gritting

import (
	"errors"
	"fmt"

	"github.com/lox/gritting/internal/models"
)

// ErrInvalidEncoding is returned when a precipitation label has no code.
var ErrInvalidEncoding = errors.New("precipitation type missing from encoding")

// PrecipitationEncoding maps precipitation labels to the integer codes the
// models were trained with. It must be the training-time table; a
// regenerated table shifts codes without any error.
type PrecipitationEncoding map[string]int

// Code returns the trained code for p.
func (e PrecipitationEncoding) Code(p models.PrecipType) (int, error) {
	code, ok := e[string(p)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidEncoding, p)
	}
	return code, nil
}

// Missing lists the labels of the model vocabulary that have no code.
// Predictions for those labels fall back to code 0.
func (e PrecipitationEncoding) Missing() []models.PrecipType {
	var missing []models.PrecipType
	for _, p := range models.PrecipTypes {
		if _, ok := e[string(p)]; !ok {
			missing = append(missing, p)
		}
	}
	return missing
}
