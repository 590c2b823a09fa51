// Package checkpointer implements periodic saving of serializable
// objects to disk so that long-running experiments can be resumed.
package checkpointer

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	ts "rlworks.org/dqn/timestep"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Checkpointer checkpoints/saves serializable objects based on
// timestep.TimeSteps
type Checkpointer interface {
	Checkpoint(ts.TimeStep) error
}

// Save gob encodes object into the file at path, creating any missing
// parent directories
func Save(object Serializable, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save: could not create directory: %v", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: could not create file: %v", err)
	}
	defer file.Close()

	if err := gob.NewEncoder(file).Encode(object); err != nil {
		return fmt.Errorf("save: could not encode object: %v", err)
	}
	return nil
}

// Restore gob decodes the file at path into object. The object must
// have the same concrete type as the object that was saved.
func Restore(object Serializable, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("restore: could not open file: %v", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(object); err != nil {
		return fmt.Errorf("restore: could not decode object: %v", err)
	}
	return nil
}
