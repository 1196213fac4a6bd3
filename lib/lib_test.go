package lib

import (
	"path/filepath"
	"testing"

	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/phsio"
)

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.dat")
	dst := filepath.Join(dir, "dst.dat")

	w, err := Create(src)
	if err != nil {
		t.Fatalf("Expected Create() to succeed, but got error '%s'.",
			err.Error())
	}
	for i := 0; i < 4; i++ {
		p := phsio.Particle{Type: pdg.Photon, E: float64(i) + 1,
			W: 1, Weight: 1, NewHistory: i%2 == 0}
		if err := w.Write(p); err != nil {
			t.Fatalf("Expected Write() to succeed, but got error '%s'.",
				err.Error())
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}

	r, err := Open(src)
	if err != nil {
		t.Fatalf("Expected Open() to succeed, but got error '%s'.",
			err.Error())
	}
	out, err := Create(dst)
	if err != nil {
		t.Fatalf("Expected Create() to succeed, but got error '%s'.",
			err.Error())
	}

	n, err := Copy(out, r)
	if err != nil {
		t.Fatalf("Expected Copy() to succeed, but got error '%s'.",
			err.Error())
	}
	if n != 4 {
		t.Errorf("Expected Copy() to move 4 particles, got %d.", n)
	}
	if out.HistoriesWritten() != 2 {
		t.Errorf("Expected 2 histories written, got %d.",
			out.HistoriesWritten())
	}

	if err := r.Close(); err != nil {
		t.Errorf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}
	if err := out.Close(); err != nil {
		t.Errorf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}
}
