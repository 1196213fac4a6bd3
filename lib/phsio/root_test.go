package phsio

import (
	"path/filepath"
	"testing"

	e "github.com/phasespace/phsp/lib/error"
)

func TestROOTTOPASSchemaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.root")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	if w.Format().Name != "ROOT" {
		t.Fatalf("Expected the ROOT codec for '%s', got '%s'.",
			path, w.Format().Name)
	}

	beam := testBeam()
	writeBeam(t, w, beam)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	if n, ok := r.ParticleCount(); !ok || n != int64(len(beam)) {
		t.Errorf("Expected the tree to hold %d entries, got %d "+
			"(known = %v).", len(beam), n, ok)
	}
	if _, ok := r.HistoryCount(); ok {
		t.Errorf("Expected the format to store no history count, but " +
			"it reported one.")
	}

	got := readBeam(t, r)
	if len(got) != len(beam) {
		t.Fatalf("Expected %d particles, got %d.", len(beam), len(got))
	}
	for i := range beam {
		if !samePhysics(&got[i], &beam[i]) {
			t.Errorf("%d) Expected particle %+v, got %+v.",
				i, beam[i], got[i])
		}
	}
	if r.HistoriesRead() != 3 {
		t.Errorf("Expected 3 histories read, got %d.", r.HistoriesRead())
	}
}

func TestROOTOpenGATESchemaRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gate.root")
	cfg := Config{"schema": "opengate"}

	w, err := NewWriter(path, WithConfig(cfg))
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}

	beam := testBeam()
	writeBeam(t, w, beam)

	r, err := NewReader(path, WithConfig(cfg))
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	got := readBeam(t, r)
	if len(got) != len(beam) {
		t.Fatalf("Expected %d particles, got %d.", len(beam), len(got))
	}
	for i := range beam {
		// The schema stores no history flags, so only the physical
		// fields survive.
		p, q := got[i], beam[i]
		q.NewHistory = p.NewHistory
		if !samePhysics(&p, &q) {
			t.Errorf("%d) Expected particle %+v, got %+v.",
				i, beam[i], got[i])
		}
	}
}

func TestROOTEmptyHistoriesViaEventID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.root")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}

	beam := testBeam()
	if err := w.Write(beam[0]); err != nil {
		t.Fatalf("Expected Write() to succeed, but got error '%s'.",
			err.Error())
	}
	if err := w.Write(PseudoParticle(10)); err != nil {
		t.Fatalf("Expected writing a pseudo-particle to succeed, but "+
			"got error '%s'.", err.Error())
	}
	if err := w.Write(beam[2]); err != nil {
		t.Fatalf("Expected Write() to succeed, but got error '%s'.",
			err.Error())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Expected Close() to succeed, but got error '%s'.",
			err.Error())
	}
	if w.HistoriesWritten() != 12 {
		t.Errorf("Expected 12 histories written, got %d.",
			w.HistoriesWritten())
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	got := readBeam(t, r)
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries (the pseudo-particle leaves "+
			"none), got %d.", len(got))
	}
	if n, ok := got[1].GetInt(IncrementalHistories); !ok || n != 11 {
		t.Errorf("Expected the Event_ID gap to surface as "+
			"IncrementalHistories = 11, got %d (present = %v).", n, ok)
	}
	if r.HistoriesRead() != 12 {
		t.Errorf("Expected 12 histories read, got %d.",
			r.HistoriesRead())
	}
}

func TestROOTRejectsCompression(t *testing.T) {
	dir := t.TempDir()

	_, err := NewWriter(filepath.Join(dir, "beam.root.zst"),
		WithFormat("ROOT"))
	if err == nil {
		t.Fatalf("Expected creating a compressed ROOT file to fail, " +
			"but it succeeded.")
	} else if !e.IsInvalidConfiguration(err) {
		t.Errorf("Expected an InvalidConfiguration error, got '%s'.",
			err.Error())
	}
}

func TestROOTRewind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.root")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	writeBeam(t, w, testBeam())

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	first := readBeam(t, r)
	if err := r.Rewind(); err != nil {
		t.Fatalf("Expected Rewind() to succeed, but got error '%s'.",
			err.Error())
	}
	second := readBeam(t, r)

	if len(first) != len(second) {
		t.Fatalf("Expected both passes to yield %d particles, got %d.",
			len(first), len(second))
	}
	for i := range first {
		if !samePhysics(&first[i], &second[i]) {
			t.Errorf("%d) Expected the second pass to repeat %+v, "+
				"got %+v.", i, first[i], second[i])
		}
	}
}
