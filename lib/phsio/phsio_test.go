package phsio

import (
	"io"
	"math"
	"path/filepath"
	"testing"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/pdg"
)

// closeEnough compares floats that have been through a float32 or a
// seven-digit ASCII representation.
func closeEnough(x, y float64) bool {
	return math.Abs(x-y) <= 1e-6*(1+math.Abs(y))
}

// samePhysics checks the fields every format stores. Auxiliary properties
// differ per format and are checked by the per-format tests.
func samePhysics(p, q *Particle) bool {
	return p.Type == q.Type &&
		closeEnough(p.E, q.E) &&
		closeEnough(p.X, q.X) && closeEnough(p.Y, q.Y) &&
		closeEnough(p.Z, q.Z) &&
		closeEnough(p.U, q.U) && closeEnough(p.V, q.V) &&
		closeEnough(p.W, q.W) &&
		closeEnough(p.Weight, q.Weight) &&
		p.NewHistory == q.NewHistory
}

// testBeam returns a small beam with three histories spread over five
// particles, exercising both signs of W and several species.
func testBeam() []Particle {
	return []Particle{
		{Type: pdg.Photon, E: 1.25, X: 0.5, Y: -0.25, Z: 0,
			U: 0.25, V: 0.25, W: thirdCosine(0.25, 0.25),
			Weight: 1, NewHistory: true},
		{Type: pdg.Electron, E: 0.5, X: -1.5, Y: 2, Z: 0,
			U: 0, V: 0.5, W: -thirdCosine(0, 0.5),
			Weight: 0.5, NewHistory: false},
		{Type: pdg.Photon, E: 6, X: 0, Y: 0, Z: 0,
			U: 0, V: 0, W: 1,
			Weight: 2, NewHistory: true},
		{Type: pdg.Positron, E: 2.5, X: 3, Y: -3, Z: 0,
			U: -0.5, V: 0, W: thirdCosine(0.5, 0),
			Weight: 1, NewHistory: true},
		{Type: pdg.Photon, E: 0.125, X: 1, Y: 1, Z: 0,
			U: 0.5, V: -0.5, W: -thirdCosine(0.5, 0.5),
			Weight: 0.25, NewHistory: false},
	}
}

// writeBeam pushes a beam through a writer and closes it.
func writeBeam(t *testing.T, w Writer, beam []Particle) {
	t.Helper()
	for i := range beam {
		if err := w.Write(beam[i]); err != nil {
			t.Fatalf("Expected Write() of particle %d to succeed, but "+
				"got error '%s'.", i, err.Error())
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}
}

// readBeam drains a reader to io.EOF.
func readBeam(t *testing.T, r Reader) []Particle {
	t.Helper()
	out := []Particle{}
	for {
		p, err := r.Next()
		if err == io.EOF {
			return out
		} else if err != nil {
			t.Fatalf("Expected Next() of particle %d to succeed, but "+
				"got error '%s'.", len(out), err.Error())
		}
		out = append(out, p)
	}
}

func TestParticleProperties(t *testing.T) {
	p := Particle{}
	if _, ok := p.GetInt(Latch); ok {
		t.Errorf("Expected GetInt() on a fresh particle to report " +
			"absence, but it found a value.")
	}

	p.SetInt(Latch, 77)
	p.SetFloat(ZLast, -2.5)
	p.SetBool(MultiPasser, true)

	if v, ok := p.GetInt(Latch); !ok || v != 77 {
		t.Errorf("Expected GetInt(Latch) = 77, got %d (present = %v).",
			v, ok)
	}
	if v, ok := p.GetFloat(ZLast); !ok || v != -2.5 {
		t.Errorf("Expected GetFloat(ZLast) = -2.5, got %g (present = %v).",
			v, ok)
	}
	if v, ok := p.GetBool(MultiPasser); !ok || !v {
		t.Errorf("Expected GetBool(MultiPasser) = true, got %v "+
			"(present = %v).", v, ok)
	}
}

func TestPseudoParticle(t *testing.T) {
	p := PseudoParticle(7)
	if p.Type != pdg.PseudoParticle {
		t.Errorf("Expected PseudoParticle(7).Type = PseudoParticle, "+
			"got %s.", p.Type)
	}
	if p.Weight != -7 {
		t.Errorf("Expected PseudoParticle(7).Weight = -7, got %g.",
			p.Weight)
	}
	if n, ok := p.GetInt(IncrementalHistories); !ok || n != 7 {
		t.Errorf("Expected PseudoParticle(7) to carry "+
			"IncrementalHistories = 7, got %d (present = %v).", n, ok)
	}
	if !p.NewHistory {
		t.Errorf("Expected PseudoParticle(7) to start a new history.")
	}
}

func TestReaderStateCounting(t *testing.T) {
	s := &readerState{}

	first := Particle{}
	s.note(&first)
	if s.histories != 1 {
		t.Errorf("Expected the first particle to start a history even "+
			"with its flag unset, but the history count is %d.",
			s.histories)
	}

	cont := Particle{}
	s.note(&cont)
	if s.histories != 1 {
		t.Errorf("Expected a continuation particle to leave the history "+
			"count at 1, got %d.", s.histories)
	}

	marked := Particle{NewHistory: true}
	s.note(&marked)
	if s.histories != 2 {
		t.Errorf("Expected a marked particle to advance the history "+
			"count to 2, got %d.", s.histories)
	}

	jump := Particle{NewHistory: true}
	jump.SetInt(IncrementalHistories, 5)
	s.note(&jump)
	if s.histories != 7 {
		t.Errorf("Expected an IncrementalHistories = 5 particle to "+
			"advance the history count to 7, got %d.", s.histories)
	}

	if s.read != 4 {
		t.Errorf("Expected 4 particles read, got %d.", s.read)
	}
}

func TestWriterCapacity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tiny.egsphsp1")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	ew := w.(*egsWriter)
	ew.state.max = 2

	beam := testBeam()
	if err := w.Write(beam[0]); err != nil {
		t.Fatalf("Expected the first Write() to succeed, but got error "+
			"'%s'.", err.Error())
	}
	if err := w.Write(beam[1]); err != nil {
		t.Fatalf("Expected the second Write() to succeed, but got error "+
			"'%s'.", err.Error())
	}

	err = w.Write(beam[2])
	if err == nil {
		t.Fatalf("Expected the third Write() to fail once the record " +
			"counter is full, but it succeeded.")
	} else if !e.IsCapacityExceeded(err) {
		t.Errorf("Expected a CapacityExceeded error, got '%s'.",
			err.Error())
	}
	if w.ParticlesWritten() != 2 {
		t.Errorf("Expected the failed Write() to leave the particle "+
			"count at 2, got %d.", w.ParticlesWritten())
	}

	if err := w.Close(); err != nil {
		t.Errorf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}
}

func TestClosedHandle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "closed.egsphsp1")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	writeBeam(t, w, testBeam())

	if err := w.Close(); err != nil {
		t.Errorf("Expected a second Close() to be a no-op, but got "+
			"error '%s'.", err.Error())
	}
	if err := w.Write(testBeam()[0]); !e.IsClosedHandle(err) {
		t.Errorf("Expected Write() after Close() to fail with "+
			"ClosedHandle, got '%v'.", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}
	if err := r.Close(); err != nil {
		t.Errorf("Expected a second Close() to be a no-op, but got "+
			"error '%s'.", err.Error())
	}
	if _, err := r.Next(); !e.IsClosedHandle(err) {
		t.Errorf("Expected Next() after Close() to fail with "+
			"ClosedHandle, got '%v'.", err)
	}
	if err := r.Rewind(); !e.IsClosedHandle(err) {
		t.Errorf("Expected Rewind() after Close() to fail with "+
			"ClosedHandle, got '%v'.", err)
	}
}
