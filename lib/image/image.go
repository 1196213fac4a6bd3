/*package image bins a phase space onto a planar fluence image: a 2D
histogram of statistical weight over the two coordinates perpendicular to a
chosen axis. The CLI's image mode writes these out as text matrices that
plotting tools can ingest directly.
*/
package image

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/phsio"
)

// Axis names the projection axis. The image covers the plane perpendicular
// to it: AxisZ images (x, y), AxisY images (x, z), and AxisX images (y, z).
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// ParseAxis converts a CLI axis name into an Axis.
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("the axis must be one of x, y, and z, not '%s'",
		s)
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	}
	return "z"
}

// project returns the two in-plane coordinates of p for the axis.
func (a Axis) project(p *phsio.Particle) (float64, float64) {
	switch a {
	case AxisX:
		return p.Y, p.Z
	case AxisY:
		return p.X, p.Z
	}
	return p.X, p.Y
}

// Bounds is the in-plane extent of an image, in cm.
type Bounds struct {
	Min1, Max1 float64
	Min2, Max2 float64
}

// Square is shorthand for a centered square extent of the given half-width.
func Square(halfWidth float64) Bounds {
	return Bounds{-halfWidth, halfWidth, -halfWidth, halfWidth}
}

// Image is a weight histogram over a square grid of bins. Cells is
// row-major with the first in-plane coordinate varying fastest.
type Image struct {
	Axis   Axis
	Bins   int
	Bounds Bounds
	Cells  []float64

	// Outside counts the particles whose in-plane position fell off the
	// image.
	Outside int64

	weightSum float64
}

// New returns an empty image. Bins must be positive and the bounds
// non-degenerate.
func New(axis Axis, bins int, bounds Bounds) (*Image, error) {
	if bins <= 0 {
		return nil, fmt.Errorf("an image needs a positive bin count, "+
			"not %d", bins)
	}
	if bounds.Max1 <= bounds.Min1 || bounds.Max2 <= bounds.Min2 {
		return nil, fmt.Errorf("the image bounds [%g, %g] x [%g, %g] "+
			"have no area", bounds.Min1, bounds.Max1,
			bounds.Min2, bounds.Max2)
	}
	return &Image{
		Axis: axis, Bins: bins, Bounds: bounds,
		Cells: make([]float64, bins*bins),
	}, nil
}

// Add folds one particle into the image. Pseudo-particles and particles
// outside the bounds accumulate nothing.
func (im *Image) Add(p *phsio.Particle) {
	if p.Type == pdg.PseudoParticle {
		return
	}
	c1, c2 := im.Axis.project(p)

	// Floor, not int(), so coordinates just below the lower bound land at
	// index -1 instead of truncating to 0.
	b := im.Bounds
	i := int(math.Floor(float64(im.Bins) * (c1 - b.Min1) / (b.Max1 - b.Min1)))
	j := int(math.Floor(float64(im.Bins) * (c2 - b.Min2) / (b.Max2 - b.Min2)))
	if i < 0 || i >= im.Bins || j < 0 || j >= im.Bins {
		im.Outside++
		return
	}

	im.Cells[j*im.Bins+i] += p.Weight
	im.weightSum += p.Weight
}

// Accumulate drains a reader into the image, returning the number of
// particles consumed.
func (im *Image) Accumulate(r phsio.Reader) (int64, error) {
	n := int64(0)
	for {
		p, err := r.Next()
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, err
		}
		im.Add(&p)
		n++
	}
}

// Fluence converts the accumulated weights into per-area fluence by
// dividing every cell by the bin area in cm^2.
func (im *Image) Fluence() {
	b := im.Bounds
	area := (b.Max1 - b.Min1) / float64(im.Bins) *
		(b.Max2 - b.Min2) / float64(im.Bins)
	floats.Scale(1/area, im.Cells)
}

// WeightSum is the total weight inside the bounds.
func (im *Image) WeightSum() float64 { return im.weightSum }

// Peak returns the largest cell value, or zero for an empty image.
func (im *Image) Peak() float64 {
	if len(im.Cells) == 0 || im.weightSum == 0 {
		return 0
	}
	return floats.Max(im.Cells)
}

// MeanStdDev returns the mean and standard deviation of the cell values.
func (im *Image) MeanStdDev() (mean, std float64) {
	return stat.MeanStdDev(im.Cells, nil)
}

// WriteTo writes the image as a whitespace-separated text matrix, one row
// of cells per line, preceded by a comment line describing the geometry.
func (im *Image) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	n := int64(0)

	count := func(m int, err error) error {
		n += int64(m)
		return err
	}

	b := im.Bounds
	if err := count(fmt.Fprintf(bw,
		"# fluence image, axis %s, %d x %d bins over "+
			"[%g, %g] x [%g, %g] cm\n",
		im.Axis, im.Bins, im.Bins,
		b.Min1, b.Max1, b.Min2, b.Max2)); err != nil {
		return n, err
	}

	for j := 0; j < im.Bins; j++ {
		row := im.Cells[j*im.Bins : (j+1)*im.Bins]
		for i := range row {
			s := strconv.FormatFloat(row[i], 'g', -1, 64)
			if i > 0 {
				s = " " + s
			}
			if err := count(bw.WriteString(s)); err != nil {
				return n, err
			}
		}
		if err := count(bw.WriteString("\n")); err != nil {
			return n, err
		}
	}

	if err := bw.Flush(); err != nil {
		return n, err
	}
	return n, nil
}
