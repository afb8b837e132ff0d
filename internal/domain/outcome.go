package domain

// OutcomeKind tags a FetchOutcome.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomePartial OutcomeKind = "partial_failure"
	OutcomeFailure OutcomeKind = "failure"
)

// FetchOutcome is the tagged result of one adapter invocation. A failure is
// never dropped on the floor; the aggregator surfaces it as a warning on the
// overall response.
type FetchOutcome struct {
	Kind         OutcomeKind
	Observations []Observation
	Reason       error // cause for partial_failure and failure, verbatim
}

// Success wraps a fully successful fetch.
func Success(obs []Observation) FetchOutcome {
	return FetchOutcome{Kind: OutcomeSuccess, Observations: obs}
}

// PartialFailure wraps a fetch that produced some observations but hit a
// failure along the way.
func PartialFailure(obs []Observation, reason error) FetchOutcome {
	return FetchOutcome{Kind: OutcomePartial, Observations: obs, Reason: reason}
}

// Failure wraps a fetch that produced nothing.
func Failure(reason error) FetchOutcome {
	return FetchOutcome{Kind: OutcomeFailure, Reason: reason}
}

// Failed reports whether the fetch produced no usable observations.
func (o FetchOutcome) Failed() bool {
	return o.Kind == OutcomeFailure
}
