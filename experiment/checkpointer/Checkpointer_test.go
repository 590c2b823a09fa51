package checkpointer

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ts "rlworks.org/dqn/timestep"
)

// counter is a Serializable that records how many times it was saved
type counter struct {
	Value int
	saves int
}

func (c *counter) GobEncode() ([]byte, error) {
	c.saves++
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c.Value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *counter) GobDecode(in []byte) error {
	return gob.NewDecoder(bytes.NewReader(in)).Decode(&c.Value)
}

func step(number int) ts.TimeStep {
	return ts.TimeStep{StepType: ts.Mid, Number: number}
}

func TestSaveRestore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints", "object.bin")

	saved := &counter{Value: 42}
	if err := Save(saved, path); err != nil {
		t.Fatalf("could not save object: %v", err)
	}

	restored := &counter{}
	if err := Restore(restored, path); err != nil {
		t.Fatalf("could not restore object: %v", err)
	}
	if restored.Value != 42 {
		t.Errorf("expected restored value 42, got %v", restored.Value)
	}
}

func TestNStepCheckpointsOnInterval(t *testing.T) {
	object := &counter{}
	name := filepath.Join(t.TempDir(), "object")
	c := NewNStep(10, object, FilenameEnumerator(0, name, ".bin"))

	for i := 1; i <= 35; i++ {
		if err := c.Checkpoint(step(i)); err != nil {
			t.Fatalf("could not checkpoint: %v", err)
		}
	}

	// Steps 10, 20, and 30 fall on the interval
	if object.saves != 3 {
		t.Errorf("expected 3 saves, got %v", object.saves)
	}
}

func TestIntervalCheckpointsOnSchedule(t *testing.T) {
	object := &counter{}
	name := filepath.Join(t.TempDir(), "object")
	c := NewInterval(time.Hour, object,
		FilenameEnumerator(0, name, ".bin")).(*interval)

	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Checkpoint(step(1)); err != nil {
		t.Fatalf("could not checkpoint: %v", err)
	}
	if object.saves != 0 {
		t.Fatal("checkpointed before the period elapsed")
	}

	now = now.Add(61 * time.Minute)
	if err := c.Checkpoint(step(2)); err != nil {
		t.Fatalf("could not checkpoint: %v", err)
	}
	if object.saves != 1 {
		t.Fatalf("expected 1 save after the period elapsed, got %v",
			object.saves)
	}

	// The schedule restarts from the last save
	now = now.Add(30 * time.Minute)
	if err := c.Checkpoint(step(3)); err != nil {
		t.Fatalf("could not checkpoint: %v", err)
	}
	if object.saves != 1 {
		t.Errorf("expected no new save within the period, got %v",
			object.saves)
	}
}

func TestFileTimer(t *testing.T) {
	filename := FileTimer("data", ".bin")

	got := filename()
	if !strings.HasPrefix(got, "data-") || !strings.HasSuffix(got, ".bin") {
		t.Fatalf("unexpected filename %v", got)
	}

	// The portion between the prefix and extension is the wall-clock
	// timestamp at which the name was generated
	stamp := strings.TrimSuffix(strings.TrimPrefix(got, "data-"), ".bin")
	if _, err := time.Parse(timestampLayout, stamp); err != nil {
		t.Errorf("filename timestamp does not parse: %v", err)
	}
}

func TestFilenameEnumerator(t *testing.T) {
	filename := FilenameEnumerator(5, "data", ".bin")
	if got := filename(); got != "data6.bin" {
		t.Errorf("expected data6.bin, got %v", got)
	}
	if got := filename(); got != "data7.bin" {
		t.Errorf("expected data7.bin, got %v", got)
	}
}
