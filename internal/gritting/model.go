package gritting

// Model is a trained inference endpoint over the fixed feature vector.
type Model[Out any] interface {
	Infer(f Features) Out
}

// ModelFunc adapts a plain function to Model.
type ModelFunc[Out any] func(f Features) Out

// Infer calls fn(f).
func (fn ModelFunc[Out]) Infer(f Features) Out {
	return fn(f)
}

// Decision is the classifier output. Confidence is the probability of the
// positive (grit) class.
type Decision struct {
	Grit       bool
	Confidence float64
}

// DecisionModel decides whether a route needs gritting.
type DecisionModel = Model[Decision]

// AmountModel predicts salt mass in kg.
type AmountModel = Model[float64]

// Models is the read-only artifact set loaded at startup.
type Models struct {
	Decision DecisionModel
	Amount   AmountModel
	Encoding PrecipitationEncoding
}

// Loaded reports whether every artifact is present. A nil set is not loaded.
func (m *Models) Loaded() bool {
	return m != nil && m.Decision != nil && m.Amount != nil && m.Encoding != nil
}
