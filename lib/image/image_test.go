package image

import (
	"strings"
	"testing"

	"github.com/phasespace/phsp/lib/eq"
	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/phsio"
)

func TestImageBinning(t *testing.T) {
	im, err := New(AxisZ, 2, Square(1))
	if err != nil {
		t.Fatalf("Expected New() to succeed, but got error '%s'.",
			err.Error())
	}

	particles := []phsio.Particle{
		{Type: pdg.Photon, X: -0.5, Y: -0.5, Weight: 1},
		{Type: pdg.Photon, X: 0.5, Y: -0.5, Weight: 2},
		{Type: pdg.Photon, X: 0.5, Y: 0.5, Weight: 4},
		{Type: pdg.Photon, X: 0.5, Y: 0.5, Weight: 8},
		{Type: pdg.Photon, X: 5, Y: 0, Weight: 100},
	}
	for i := range particles {
		im.Add(&particles[i])
	}

	exp := []float64{1, 2, 0, 12}
	if !eq.Float64s(exp, im.Cells) {
		t.Errorf("Expected cell values %g, got %g.", exp, im.Cells)
	}
	if im.Outside != 1 {
		t.Errorf("Expected 1 particle outside the bounds, got %d.",
			im.Outside)
	}
	if im.WeightSum() != 15 {
		t.Errorf("Expected a weight sum of 15, got %g.", im.WeightSum())
	}
	if im.Peak() != 12 {
		t.Errorf("Expected a peak of 12, got %g.", im.Peak())
	}
}

func TestImageBelowLowerBound(t *testing.T) {
	im, err := New(AxisZ, 2, Square(1))
	if err != nil {
		t.Fatalf("Expected New() to succeed, but got error '%s'.",
			err.Error())
	}

	// Coordinates within one bin width below the lower bound must count
	// as outside, not truncate into the edge cells.
	particles := []phsio.Particle{
		{Type: pdg.Photon, X: -1.0001, Y: 0, Weight: 7},
		{Type: pdg.Photon, X: 0, Y: -1.5, Weight: 7},
		{Type: pdg.Photon, X: -1.0001, Y: -1.0001, Weight: 7},
	}
	for i := range particles {
		im.Add(&particles[i])
	}

	if im.Outside != int64(len(particles)) {
		t.Errorf("Expected %d particles outside the bounds, got %d.",
			len(particles), im.Outside)
	}
	if !eq.Float64s([]float64{0, 0, 0, 0}, im.Cells) {
		t.Errorf("Expected empty cells, got %g.", im.Cells)
	}
	if im.WeightSum() != 0 {
		t.Errorf("Expected a weight sum of 0, got %g.", im.WeightSum())
	}
}

func TestImageIgnoresPseudoParticles(t *testing.T) {
	im, err := New(AxisZ, 2, Square(1))
	if err != nil {
		t.Fatalf("Expected New() to succeed, but got error '%s'.",
			err.Error())
	}

	p := phsio.PseudoParticle(5)
	im.Add(&p)
	if im.WeightSum() != 0 {
		t.Errorf("Expected pseudo-particles to accumulate nothing, "+
			"got a weight sum of %g.", im.WeightSum())
	}
}

func TestImageFluence(t *testing.T) {
	// A 2-bin image over [-1, 1] x [-1, 1] has 1 cm^2 bins, so fluence
	// equals weight.
	im, err := New(AxisZ, 2, Square(1))
	if err != nil {
		t.Fatalf("Expected New() to succeed, but got error '%s'.",
			err.Error())
	}
	p := phsio.Particle{Type: pdg.Photon, X: -0.5, Y: -0.5, Weight: 3}
	im.Add(&p)
	im.Fluence()
	if im.Cells[0] != 3 {
		t.Errorf("Expected a fluence of 3 in 1 cm^2 bins, got %g.",
			im.Cells[0])
	}
}

func TestImageAxes(t *testing.T) {
	p := phsio.Particle{X: 1, Y: 2, Z: 3}

	tests := []struct {
		axis   Axis
		c1, c2 float64
	}{
		{AxisX, 2, 3},
		{AxisY, 1, 3},
		{AxisZ, 1, 2},
	}
	for i := range tests {
		c1, c2 := tests[i].axis.project(&p)
		if c1 != tests[i].c1 || c2 != tests[i].c2 {
			t.Errorf("%d) Expected axis %s to project onto (%g, %g), "+
				"got (%g, %g).", i, tests[i].axis,
				tests[i].c1, tests[i].c2, c1, c2)
		}
	}
}

func TestImageWriteTo(t *testing.T) {
	im, err := New(AxisZ, 2, Square(1))
	if err != nil {
		t.Fatalf("Expected New() to succeed, but got error '%s'.",
			err.Error())
	}
	p := phsio.Particle{Type: pdg.Photon, X: 0.5, Y: 0.5, Weight: 7}
	im.Add(&p)

	b := &strings.Builder{}
	if _, err := im.WriteTo(b); err != nil {
		t.Fatalf("Expected WriteTo() to succeed, but got error '%s'.",
			err.Error())
	}

	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("Expected a comment line plus 2 rows, got %d lines.",
			len(lines))
	}
	if !strings.HasPrefix(lines[0], "#") {
		t.Errorf("Expected the first line to be a comment, got '%s'.",
			lines[0])
	}
	if lines[1] != "0 0" || lines[2] != "0 7" {
		t.Errorf("Expected the rows '0 0' and '0 7', got '%s' and "+
			"'%s'.", lines[1], lines[2])
	}
}

func TestParseAxis(t *testing.T) {
	for i, s := range []string{"x", "y", "z", "X", "Z"} {
		if _, err := ParseAxis(s); err != nil {
			t.Errorf("%d) Expected ParseAxis(%q) to succeed, but got "+
				"error '%s'.", i, s, err.Error())
		}
	}
	if _, err := ParseAxis("w"); err == nil {
		t.Errorf("Expected ParseAxis(\"w\") to fail, but it succeeded.")
	}
}

func TestImageRejectsBadGeometry(t *testing.T) {
	if _, err := New(AxisZ, 0, Square(1)); err == nil {
		t.Errorf("Expected a zero-bin image to be rejected, but it " +
			"was accepted.")
	}
	if _, err := New(AxisZ, 4, Bounds{1, 1, -1, 1}); err == nil {
		t.Errorf("Expected empty bounds to be rejected, but they " +
			"were accepted.")
	}
}
