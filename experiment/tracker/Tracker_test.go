package tracker

import (
	"path/filepath"
	"testing"

	ts "rlworks.org/dqn/timestep"
)

func step(t ts.StepType, reward float64, number int) ts.TimeStep {
	return ts.TimeStep{StepType: t, Reward: reward, Number: number}
}

func TestReturnAccumulatesPerEpisode(t *testing.T) {
	r := NewReturn(filepath.Join(t.TempDir(), "returns.bin")).(*Return)

	// Two episodes: returns 3 and -1
	r.Track(step(ts.First, 0, 0))
	r.Track(step(ts.Mid, 1, 1))
	r.Track(step(ts.Last, 2, 2))

	r.Track(step(ts.First, 0, 0))
	r.Track(step(ts.Last, -1, 1))

	// A third, unfinished episode is not recorded
	r.Track(step(ts.First, 0, 0))
	r.Track(step(ts.Mid, 5, 1))

	returns := r.Returns()
	if len(returns) != 2 {
		t.Fatalf("expected 2 episodic returns, got %v", len(returns))
	}
	if returns[0] != 3.0 || returns[1] != -1.0 {
		t.Errorf("expected returns [3 -1], got %v", returns)
	}
}

func TestReturnSaveLoad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "returns.bin")
	r := NewReturn(filename)

	r.Track(step(ts.First, 0, 0))
	r.Track(step(ts.Last, 2, 1))

	if err := r.Save(); err != nil {
		t.Fatalf("could not save returns: %v", err)
	}

	data, err := LoadData(filename)
	if err != nil {
		t.Fatalf("could not load returns: %v", err)
	}
	if len(data) != 1 || data[0] != 2.0 {
		t.Errorf("expected loaded returns [2], got %v", data)
	}
}

func TestEpisodeLength(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "lengths.bin")
	e := NewEpisodeLength(filename)

	e.Track(step(ts.First, 0, 0))
	e.Track(step(ts.Mid, 1, 1))
	e.Track(step(ts.Last, 1, 2))

	e.Track(step(ts.First, 0, 0))
	e.Track(step(ts.Last, 1, 1))

	if err := e.Save(); err != nil {
		t.Fatalf("could not save episode lengths: %v", err)
	}

	data, err := LoadData(filename)
	if err != nil {
		t.Fatalf("could not load episode lengths: %v", err)
	}
	if len(data) != 2 || data[0] != 2.0 || data[1] != 1.0 {
		t.Errorf("expected lengths [2 1], got %v", data)
	}
}
