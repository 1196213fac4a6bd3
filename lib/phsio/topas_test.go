package phsio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phasespace/phsp/lib/pdg"
)

func TestTOPASBinaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.phsp")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	if w.Format().Name != "TOPAS" {
		t.Fatalf("Expected the TOPAS codec for '%s', got '%s'.",
			path, w.Format().Name)
	}

	beam := testBeam()
	writeBeam(t, w, beam)
	if w.HistoriesWritten() != 3 {
		t.Errorf("Expected 3 histories written, got %d.",
			w.HistoriesWritten())
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	if n, ok := r.ParticleCount(); !ok || n != int64(len(beam)) {
		t.Errorf("Expected the header to count %d particles, got %d "+
			"(known = %v).", len(beam), n, ok)
	}
	if n, ok := r.HistoryCount(); !ok || n != 3 {
		t.Errorf("Expected the header to count 3 histories, got %d "+
			"(known = %v).", n, ok)
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
}

func TestTOPASEmptyHistories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.phsp")

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
		t.Errorf("Expected 12 histories written (1 + 10 empty + 1), "+
			"got %d.", w.HistoriesWritten())
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	if n, ok := r.HistoryCount(); !ok || n != 12 {
		t.Errorf("Expected the header to count 12 histories, got %d "+
			"(known = %v).", n, ok)
	}

	got := readBeam(t, r)
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d.", len(got))
	}
	if got[1].Type != pdg.PseudoParticle {
		t.Fatalf("Expected the middle record to be a pseudo-particle, "+
			"got %s.", got[1].Type)
	}
	if n, ok := got[1].GetInt(IncrementalHistories); !ok || n != 10 {
		t.Errorf("Expected the pseudo-particle to carry "+
			"IncrementalHistories = 10, got %d (present = %v).", n, ok)
	}
	if r.HistoriesRead() != 12 {
		t.Errorf("Expected 12 histories read, got %d.",
			r.HistoriesRead())
	}
}

func TestTOPASASCIIRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.phsp")

	w, err := NewWriter(path, WithConfig(Config{"variant": "ascii"}))
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}

	beam := testBeam()
	writeBeam(t, w, beam)

	r, err := NewReader(path)
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
		if !samePhysics(&got[i], &beam[i]) {
			t.Errorf("%d) Expected particle %+v, got %+v.",
				i, beam[i], got[i])
		}
	}
}

func TestTOPASLimitedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.phsp")

	w, err := NewWriter(path, WithConfig(Config{"variant": "limited"}))
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}

	beam := testBeam()
	writeBeam(t, w, beam)

	r, err := NewReader(path)
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
		if !samePhysics(&got[i], &beam[i]) {
			t.Errorf("%d) Expected particle %+v, got %+v.",
				i, beam[i], got[i])
		}
	}
}

func TestTOPASLimitedRejectsPseudo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sparse.phsp")

	w, err := NewWriter(path, WithConfig(Config{"variant": "limited"}))
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	defer w.Close()

	if err := w.Write(PseudoParticle(3)); err == nil {
		t.Errorf("Expected writing a pseudo-particle to a limited file " +
			"to fail, but it succeeded.")
	}
}

func TestTOPASHeaderText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.phsp")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	writeBeam(t, w, testBeam())

	raw, err := os.ReadFile(topasHeaderPath(path))
	if err != nil {
		t.Fatalf("Expected the header file to exist, but got error "+
			"'%s'.", err.Error())
	}
	text := string(raw)

	wants := []string{
		"TOPAS Binary Phase Space",
		"Number of Original Histories: 3",
		"Number of Original Histories that Reached Phase Space: 3",
		"Number of Scored Particles: 5",
		"Number of Bytes per Particle: 34",
		"Number of gamma: 3",
		"Number of e-: 1",
		"Number of e+: 1",
	}
	for i := range wants {
		if !strings.Contains(text, wants[i]) {
			t.Errorf("%d) Expected the header to contain '%s', but it "+
				"does not.", i, wants[i])
		}
	}
}

func TestTOPASVariantDetection(t *testing.T) {
	dir := t.TempDir()

	variants := []string{"binary", "ascii", "limited"}
	for i := range variants {
		path := filepath.Join(dir, variants[i]+".phsp")
		w, err := NewWriter(path,
			WithConfig(Config{"variant": variants[i]}))
		if err != nil {
			t.Fatalf("%d) Expected NewWriter() to succeed, but got "+
				"error '%s'.", i, err.Error())
		}
		writeBeam(t, w, testBeam())

		h, err := parseTOPASHeader(topasHeaderPath(path))
		if err != nil {
			t.Fatalf("%d) Expected the header to parse, but got error "+
				"'%s'.", i, err.Error())
		}
		if h.variant.String() != variants[i] {
			t.Errorf("%d) Expected the header to declare the %s "+
				"variant, got %s.", i, variants[i], h.variant)
		}
	}
}
