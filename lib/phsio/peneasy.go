package phsio

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/ilb"
	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/units"
)

// The penEasy phase space format: plain ASCII, one particle per line, with
// a fixed two-line comment header and no trailing metadata. Each line holds
//
//	KPAR E X Y Z U V W WGHT DeltaN ILB1 ILB2 ILB3 ILB4 ILB5
//
// where KPAR is the PENELOPE species code (1 electron, 2 photon,
// 3 positron, 4 proton), E is kinetic energy in eV, positions are in cm,
// and DeltaN is the number of source histories elapsed since the previous
// record, so any DeltaN > 0 starts a new history. The five ILB slots
// record particle provenance; see the ilb package.
//
// The header stores no particle or history count, so ParticleCount and
// HistoryCount report nothing and the only way to learn either is to
// consume the stream.
//
// The codec takes no config keys. Fixed-values policy: the codec trusts
// the caller; every field is stored in every record regardless of any
// declared constants.

const peneasyFileHeader = "# [PHASE SPACE FILE FORMAT penEasy " +
	"v.2008-05-15]\n# KPAR : E : X : Y : Z : U : V : W : WGHT : DeltaN " +
	": ILB(1..5)\n"

func newPenEasyFormat() *Format {
	f := &Format{
		Name:        "penEasy",
		Extension:   ".dat",
		Description: "penEasy ASCII phase space",
		extensions:  []string{".dat"},
		sniff: func(path string, head []byte) bool {
			return bytes.HasPrefix(head,
				[]byte("# [PHASE SPACE FILE FORMAT penEasy"))
		},
	}
	f.open = func(path string, cfg Config) (Reader, error) {
		return openPenEasy(f, path, cfg)
	}
	f.create = func(path string, cfg Config, fixed FixedValues) (Writer, error) {
		return createPenEasy(f, path, cfg, fixed)
	}
	return f
}

func peneasyKPAR(t pdg.Type) (int, bool) {
	switch t {
	case pdg.Electron:
		return 1, true
	case pdg.Photon:
		return 2, true
	case pdg.Positron:
		return 3, true
	case pdg.Proton:
		return 4, true
	}
	return 0, false
}

func peneasyTypeFor(kpar int) (pdg.Type, bool) {
	switch kpar {
	case 1:
		return pdg.Electron, true
	case 2:
		return pdg.Photon, true
	case 3:
		return pdg.Positron, true
	case 4:
		return pdg.Proton, true
	}
	return pdg.Unsupported, false
}

// peneasyILBProps pairs each line column with its particle property, in
// slot order.
var peneasyILBProps = [ilb.NumSlots]IntProperty{
	ILB1, ILB2, ILB3, ILB4, ILB5,
}

type peneasyReader struct {
	state  readerState
	format *Format
	lines  *lineStream
}

var _ Reader = &peneasyReader{}

func openPenEasy(f *Format, path string, cfg Config) (Reader, error) {
	r := &peneasyReader{state: readerState{path: path}, format: f}
	if err := r.openData(); err != nil {
		return nil, err
	}
	return r, nil
}

// openData opens the stream and steps over the comment header. The header
// is two '#' lines; any further leading comment lines are tolerated.
func (r *peneasyReader) openData() error {
	rc, err := openStream(r.state.path)
	if err != nil {
		return err
	}
	r.lines = newLineStream(r.state.path, rc)
	return nil
}

func (r *peneasyReader) Format() *Format { return r.format }

func (r *peneasyReader) Next() (Particle, error) {
	if err := r.state.start("Next"); err != nil {
		return Particle{}, err
	}
	if r.state.eof {
		return Particle{}, io.EOF
	}

	var line string
	var offset int64
	for {
		var err error
		line, offset, err = r.lines.next()
		if err == io.EOF {
			r.state.eof = true
			return Particle{}, io.EOF
		} else if err != nil {
			return Particle{}, err
		}
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			break
		}
	}

	fields := strings.Fields(line)
	if len(fields) < 15 {
		return Particle{}, &e.DecodeError{Path: r.state.path,
			Offset: offset,
			Err: fmt.Errorf("the line has %d columns, but a penEasy "+
				"record needs 15", len(fields))}
	}

	badColumn := func(i int) error {
		return &e.DecodeError{Path: r.state.path, Offset: offset,
			Err: fmt.Errorf("column %d holds '%s', which is not a "+
				"number", i+1, fields[i])}
	}

	kpar, err := strconv.Atoi(fields[0])
	if err != nil {
		return Particle{}, badColumn(0)
	}
	typ, ok := peneasyTypeFor(kpar)
	if !ok {
		return Particle{}, &e.DecodeError{Path: r.state.path,
			Offset: offset,
			Err: fmt.Errorf("the KPAR code %d is invalid; penEasy uses "+
				"codes 1 through 4", kpar)}
	}

	var fs [8]float64
	for i := range fs {
		if fs[i], err = strconv.ParseFloat(fields[1+i], 64); err != nil {
			return Particle{}, badColumn(1 + i)
		}
	}
	var is [6]int64
	for i := range is {
		if is[i], err = strconv.ParseInt(fields[9+i], 10, 32); err != nil {
			return Particle{}, badColumn(9 + i)
		}
	}

	dn := int32(is[0])
	p := Particle{
		Type: typ, E: fs[0] * units.EV,
		X: fs[1] * units.Cm, Y: fs[2] * units.Cm, Z: fs[3] * units.Cm,
		U: fs[4], V: fs[5], W: fs[6],
		Weight: fs[7], NewHistory: dn > 0,
	}
	if dn > 0 {
		p.SetInt(IncrementalHistories, dn)
	}
	var slots ilb.Array
	for i, prop := range peneasyILBProps {
		slots[i] = int32(is[1+i])
		if is[1+i] != 0 {
			p.SetInt(prop, int32(is[1+i]))
		}
	}
	if ilb.IsSecondary(slots) {
		p.SetBool(Secondary, true)
	}

	r.state.note(&p)
	return p, nil
}

func (r *peneasyReader) ParticleCount() (int64, bool) { return 0, false }
func (r *peneasyReader) HistoryCount() (int64, bool)  { return 0, false }

func (r *peneasyReader) ParticlesRead() int64 { return r.state.read }
func (r *peneasyReader) HistoriesRead() int64 { return r.state.histories }

func (r *peneasyReader) Rewind() error {
	if err := r.state.start("Rewind"); err != nil {
		return err
	}
	if err := r.lines.close(); err != nil {
		return err
	}
	if err := r.openData(); err != nil {
		return err
	}
	r.state.eof = false
	r.state.read, r.state.histories = 0, 0
	return nil
}

func (r *peneasyReader) Close() error {
	if r.state.closed {
		return nil
	}
	r.state.closed = true
	return r.lines.close()
}

type peneasyWriter struct {
	state  writerState
	format *Format
	wc     io.WriteCloser
}

var _ Writer = &peneasyWriter{}

func createPenEasy(f *Format, path string, cfg Config, fixed FixedValues) (Writer, error) {
	wc, err := createStream(path)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(wc, peneasyFileHeader); err != nil {
		wc.Close()
		return nil, err
	}
	return &peneasyWriter{
		state:  writerState{path: path, max: math.MaxInt64},
		format: f,
		wc:     wc,
	}, nil
}

func (w *peneasyWriter) Format() *Format     { return w.format }
func (w *peneasyWriter) MaxParticles() int64 { return w.state.max }

func (w *peneasyWriter) ParticlesWritten() int64 { return w.state.written }
func (w *peneasyWriter) HistoriesWritten() int64 { return w.state.histories }

func (w *peneasyWriter) Write(p Particle) error {
	if err := w.state.start("Write"); err != nil {
		return err
	}
	if err := w.state.room(); err != nil {
		return err
	}

	kpar, ok := peneasyKPAR(p.Type)
	if !ok {
		return fmt.Errorf("penEasy phase space files can only hold "+
			"electrons, photons, positrons, and protons, not %ss", p.Type)
	}

	dn := int32(0)
	if n, ok := p.GetInt(IncrementalHistories); ok {
		dn = n
	} else if p.NewHistory {
		dn = 1
	}

	var slots [ilb.NumSlots]int32
	for i, prop := range peneasyILBProps {
		if v, ok := p.GetInt(prop); ok {
			slots[i] = v
		}
	}

	line := fmt.Sprintf(
		"%d %14.7e %14.7e %14.7e %14.7e %14.7e %14.7e %14.7e %14.7e "+
			"%d %d %d %d %d %d\n",
		kpar, p.E/units.EV,
		p.X/units.Cm, p.Y/units.Cm, p.Z/units.Cm,
		p.U, p.V, p.W, p.Weight,
		dn, slots[0], slots[1], slots[2], slots[3], slots[4])
	if _, err := io.WriteString(w.wc, line); err != nil {
		return err
	}

	w.state.note(&p)
	return nil
}

func (w *peneasyWriter) Close() error {
	if w.state.closed {
		return nil
	}
	w.state.closed = true
	return w.wc.Close()
}
