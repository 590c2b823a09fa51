package environment

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r1"
	ts "rlworks.org/dqn/timestep"
)

// IntervalLimit implements the Ender interface to end episodes when
// specific state features leave legal intervals
type IntervalLimit struct {
	legalIntervals []r1.Interval

	// featureIndices[i] is the index of the state feature which must
	// stay within legalIntervals[i]
	featureIndices []int
}

// NewIntervalLimit creates and returns a new interval limit. Episodes
// end when the state feature at featureIndices[i] leaves
// legalIntervals[i] for any i.
func NewIntervalLimit(legalIntervals []r1.Interval,
	featureIndices []int) *IntervalLimit {
	if len(legalIntervals) != len(featureIndices) {
		panic(fmt.Sprintf("new: must give one feature index per legal "+
			"interval \n\twant(%v)\n\thave(%v)", len(legalIntervals),
			len(featureIndices)))
	}
	return &IntervalLimit{legalIntervals, featureIndices}
}

// End determines whether or not the current episode should be ended,
// returning a boolean to indicate episode termination. If the episode
// should be ended, End will modify the timestep so that its StepType
// field is timestep.Last
func (i *IntervalLimit) End(t *ts.TimeStep) bool {
	for j, index := range i.featureIndices {
		feature := t.Observation.AtVec(index)
		if feature < i.legalIntervals[j].Min ||
			feature > i.legalIntervals[j].Max {
			t.StepType = ts.Last
			return true
		}
	}
	return false
}
