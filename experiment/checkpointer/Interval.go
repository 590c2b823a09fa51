package checkpointer

import (
	"time"

	ts "rlworks.org/dqn/timestep"
)

// interval implements checkpointing on a wall clock schedule
type interval struct {
	period   time.Duration
	lastSave time.Time
	object   Serializable
	filename func() string

	now func() time.Time // Injectable for testing
}

// NewInterval returns a checkpointer that saves its object whenever at
// least period has elapsed since the previous save. The first
// checkpoint is written period after construction.
func NewInterval(period time.Duration, object Serializable,
	filename func() string) Checkpointer {
	return &interval{
		period:   period,
		lastSave: time.Now(),
		object:   object,
		filename: filename,
		now:      time.Now,
	}
}

// Checkpoint saves the Checkpointer's tracked object if the
// checkpointing period has elapsed
func (i *interval) Checkpoint(ts.TimeStep) error {
	if i.now().Sub(i.lastSave) < i.period {
		return nil
	}

	if err := Save(i.object, i.filename()); err != nil {
		return err
	}
	i.lastSave = i.now()
	return nil
}
