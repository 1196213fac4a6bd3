package phsio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/latch"
	"github.com/phasespace/phsp/lib/pdg"
)

func TestEGSRoundTripMode0(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	if w.Format().Name != "EGS" {
		t.Fatalf("Expected the EGS codec for '%s', got '%s'.",
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
		if _, ok := got[i].GetInt(Latch); !ok {
			t.Errorf("%d) Expected every EGS particle to carry a LATCH "+
				"property, but this one does not.", i)
		}
	}
	if r.HistoriesRead() != 3 {
		t.Errorf("Expected 3 histories read, got %d.", r.HistoriesRead())
	}
}

func TestEGSRoundTripMode2(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path, WithConfig(Config{"mode": "MODE2"}))
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}

	beam := testBeam()
	zlast := []float64{-10, -5, 0, 5, 12.5}
	for i := range beam {
		beam[i].SetFloat(ZLast, zlast[i])
	}
	writeBeam(t, w, beam)

	r, err := NewReader(path, WithConfig(Config{"z": "40"}))
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	got := readBeam(t, r)
	if len(got) != len(beam) {
		t.Fatalf("Expected %d particles, got %d.", len(beam), len(got))
	}
	for i := range got {
		if got[i].Z != 40 {
			t.Errorf("%d) Expected the configured plane z = 40, got %g.",
				i, got[i].Z)
		}
		if v, ok := got[i].GetFloat(ZLast); !ok || !closeEnough(v, zlast[i]) {
			t.Errorf("%d) Expected ZLast = %g, got %g (present = %v).",
				i, zlast[i], v, ok)
		}
	}
}

func TestEGSMode2RequiresZLast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path, WithConfig(Config{"mode": "MODE2"}))
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	defer w.Close()

	if err := w.Write(testBeam()[0]); err == nil {
		t.Errorf("Expected writing a particle without ZLast to a MODE2 " +
			"file to fail, but it succeeded.")
	}
}

func TestEGSRejectsUnsupportedSpecies(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	defer w.Close()

	p := testBeam()[0]
	p.Type = pdg.Proton
	if err := w.Write(p); err == nil {
		t.Errorf("Expected writing a proton to an EGS file to fail, " +
			"but it succeeded.")
	}
}

func TestEGSRejectsCompressedWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1.zst")

	_, err := NewWriter(path)
	if err == nil {
		t.Fatalf("Expected creating a compressed EGS file to fail, " +
			"but it succeeded.")
	} else if !e.IsInvalidConfiguration(err) {
		t.Errorf("Expected an InvalidConfiguration error, got '%s'.",
			err.Error())
	}
}

func TestEGSRewind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path)
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

	first := readBeam(t, r)
	if err := r.Rewind(); err != nil {
		t.Fatalf("Expected Rewind() to succeed, but got error '%s'.",
			err.Error())
	}
	if r.ParticlesRead() != 0 {
		t.Errorf("Expected Rewind() to reset the particle count, got %d.",
			r.ParticlesRead())
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

func TestEGSManualHistoryCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path, WithConfig(Config{"history-count": "1000"}))
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

	if n, ok := r.HistoryCount(); !ok || n != 1000 {
		t.Errorf("Expected the configured history count 1000, got %d "+
			"(known = %v).", n, ok)
	}
}

func TestEGSSecondaryFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}

	beam := testBeam()
	// Bits 24-28 of LATCH mark secondaries under the comprehensive
	// conventions.
	word := latch.Pack(latch.Fields{SecondaryBits: 2})
	beam[1].SetInt(Latch, int32(word))
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
	if v, ok := got[1].GetBool(Secondary); !ok || !v {
		t.Errorf("Expected the tagged particle to read back as a "+
			"secondary, got %v (present = %v).", v, ok)
	}
	if _, ok := got[0].GetBool(Secondary); ok {
		t.Errorf("Expected the untagged particle to carry no secondary " +
			"flag, but one was read back.")
	}
}

func TestEGSIgnoreHeaderCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "beam.egsphsp1")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatalf("Expected NewWriter() to succeed, but got error '%s'.",
			err.Error())
	}
	beam := testBeam()
	writeBeam(t, w, beam)

	// Corrupt the header's particle count the way a truncated run does.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected to read the file back, but got error '%s'.",
			err.Error())
	}
	binary.LittleEndian.PutUint32(data[5:9], 999)
	if err := os.WriteFile(path, data, 0666); err != nil {
		t.Fatalf("Expected to rewrite the file, but got error '%s'.",
			err.Error())
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	if n, ok := r.ParticleCount(); !ok || n != 999 {
		t.Errorf("Expected the trusting reader to report the header "+
			"count 999, got %d (known = %v).", n, ok)
	}
	r.Close()

	r, err = NewReader(path, WithConfig(Config{
		"ignore-header-count": "true",
	}))
	if err != nil {
		t.Fatalf("Expected NewReader() to succeed, but got error '%s'.",
			err.Error())
	}
	defer r.Close()

	if n, ok := r.ParticleCount(); !ok || n != int64(len(beam)) {
		t.Errorf("Expected the count recomputed from the file size to "+
			"be %d, got %d (known = %v).", len(beam), n, ok)
	}

	got := readBeam(t, r)
	if len(got) != len(beam) {
		t.Fatalf("Expected %d particles, got %d.", len(beam), len(got))
	}
}
