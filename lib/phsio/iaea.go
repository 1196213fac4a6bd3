package phsio

import (
	"fmt"
	"io"
	"math"
	"strings"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/units"
)

// The IAEA phase space format (IAEA TECDOC-1633). Records are
// variable-layout: the header's RECORD_CONTENTS flags say which of x, y, z,
// u, v, and weight each record stores; unstored fields are file-wide
// constants from RECORD_CONSTANT. Each record is a 1-byte signed species
// code (1 photon, 2 electron, 3 positron, 4 neutron, 5 proton; a negative
// code flips the third direction cosine), a float32 kinetic energy whose
// sign marks history starts, the stored fields as float32, then the
// declared extra floats and extra int32 longs. Units are cm and MeV, the
// internal units, so no scaling happens here.
//
// Config keys (writer only): "title", "index", "byte-order" (1234 or
// 4321), and the extra-slot toggles "store-ilb", "store-latch",
// "store-incremental-histories", "store-xlast", "store-ylast",
// "store-zlast", each enabled with the value "true".
//
// Fixed-values policy: this codec validates. A declared constant moves the
// field out of every record and into the header, so a particle carrying a
// different value cannot be represented; Write rejects it rather than
// silently storing a file whose header lies.

func newIAEAFormat() *Format {
	f := &Format{
		Name:        "IAEA",
		Extension:   ".IAEAphsp",
		Description: "IAEA phase space (.IAEAphsp with .IAEAheader)",
		extensions:  []string{".iaeaphsp", ".iaeaheader"},
		sniff: func(path string, head []byte) bool {
			return fileExists(IAEAHeaderPath(path))
		},
	}
	f.open = func(path string, cfg Config) (Reader, error) {
		return openIAEA(f, path, cfg)
	}
	f.create = func(path string, cfg Config, fixed FixedValues) (Writer, error) {
		return createIAEA(f, path, cfg, fixed)
	}
	return f
}

// iaeaDataPath maps either half of the file pair onto the binary data file.
func iaeaDataPath(path string) string {
	base, suffix := CompressionSuffix(path)
	if strings.HasSuffix(strings.ToLower(base), ".iaeaheader") {
		return base[:len(base)-len(".IAEAheader")] + ".IAEAphsp" + suffix
	}
	return path
}

type iaeaReader struct {
	state  readerState
	format *Format
	header *iaeaHeader
	stream *recordStream
}

var _ Reader = &iaeaReader{}

func openIAEA(f *Format, path string, cfg Config) (Reader, error) {
	dataPath := iaeaDataPath(path)
	header, err := parseIAEAHeader(IAEAHeaderPath(dataPath))
	if err != nil {
		return nil, &e.MalformedHeader{Path: path, Err: err}
	}

	rc, err := openStream(dataPath)
	if err != nil {
		return nil, err
	}

	return &iaeaReader{
		state:  readerState{path: dataPath},
		format: f,
		header: header,
		stream: newRecordStream(dataPath, rc, header.recordLength),
	}, nil
}

func (r *iaeaReader) Format() *Format { return r.format }

func (r *iaeaReader) Next() (Particle, error) {
	if err := r.state.start("Next"); err != nil {
		return Particle{}, err
	}
	if r.state.eof {
		return Particle{}, io.EOF
	}

	b, err := r.stream.next()
	if err == io.EOF {
		r.state.eof = true
		return Particle{}, io.EOF
	} else if err != nil {
		return Particle{}, err
	}
	start := r.stream.offset - int64(len(b))

	h := r.header
	c := &cursor{b: b, order: h.order}

	code := c.i8()
	wNegative := code < 0
	if wNegative {
		code = -code
	}
	typ, ok := iaeaTypeFor(code)
	if !ok {
		return Particle{}, &e.DecodeError{Path: r.state.path, Offset: start,
			Err: fmt.Errorf("the species code %d is not defined", code)}
	}

	energy := float64(c.f32())
	newHistory := energy < 0
	if newHistory {
		energy = -energy
	}

	read := func(field int) float64 {
		if h.stored[field] {
			return float64(c.f32())
		}
		return h.constants[field]
	}
	x, y, z := read(iaeaX), read(iaeaY), read(iaeaZ)
	u, v := read(iaeaU), read(iaeaV)
	var w float64
	if h.stored[iaeaW] {
		w = thirdCosine(u, v)
		if wNegative {
			w = -w
		}
	} else {
		w = h.constants[iaeaW]
	}
	weight := read(iaeaWeight)

	p := Particle{
		Type: typ, E: energy * units.MeV,
		X: x * units.Cm, Y: y * units.Cm, Z: z * units.Cm,
		U: u, V: v, W: w,
		Weight: weight, NewHistory: newHistory,
	}
	for _, code := range h.extraFloats {
		p.SetFloat(iaeaExtraFloatProps[code], float64(c.f32()))
	}
	for _, code := range h.extraLongs {
		p.SetInt(iaeaExtraLongProps[code], c.i32())
	}

	r.state.note(&p)
	return p, nil
}

func (r *iaeaReader) ParticleCount() (int64, bool) {
	return r.header.nParticles, true
}

func (r *iaeaReader) HistoryCount() (int64, bool) {
	return r.header.origHistories, true
}

func (r *iaeaReader) ParticlesRead() int64 { return r.state.read }
func (r *iaeaReader) HistoriesRead() int64 { return r.state.histories }

func (r *iaeaReader) Rewind() error {
	if err := r.state.start("Rewind"); err != nil {
		return err
	}

	rc, err := openStream(r.state.path)
	if err != nil {
		return err
	}
	if err := r.stream.close(); err != nil {
		rc.Close()
		return err
	}
	r.stream = newRecordStream(r.state.path, rc, r.header.recordLength)
	r.state.eof = false
	r.state.read, r.state.histories = 0, 0
	return nil
}

func (r *iaeaReader) Close() error {
	if r.state.closed {
		return nil
	}
	r.state.closed = true
	return r.stream.close()
}

type iaeaWriter struct {
	state  writerState
	format *Format
	header *iaeaHeader
	out    io.WriteCloser
	buf    []byte
}

var _ Writer = &iaeaWriter{}

func createIAEA(f *Format, path string, cfg Config, fixed FixedValues) (Writer, error) {
	dataPath := iaeaDataPath(path)
	header := defaultIAEAHeader(IAEAHeaderPath(dataPath))

	header.title = cfg.Get("title", header.title)
	header.index = cfg.Get("index", header.index)
	if s := cfg.Get("byte-order", ""); s != "" {
		code, err := cfgInt(cfg, "byte-order", 0)
		if err != nil {
			return nil, err
		}
		order, err := byteOrderFor(int(code))
		if err != nil {
			return nil, &e.InvalidConfiguration{Option: "byte-order",
				Reason: err.Error()}
		}
		header.order = order
	}

	fix := func(field int, has bool, value float64) {
		if has {
			header.stored[field] = false
			header.constants[field] = value
		}
	}
	fix(iaeaX, fixed.HasX, fixed.X)
	fix(iaeaY, fixed.HasY, fixed.Y)
	fix(iaeaZ, fixed.HasZ, fixed.Z)
	fix(iaeaU, fixed.HasU, fixed.U)
	fix(iaeaV, fixed.HasV, fixed.V)
	fix(iaeaW, fixed.HasW, fixed.W)
	fix(iaeaWeight, fixed.HasWeight, fixed.Weight)

	if cfg.Get("store-xlast", "") == "true" {
		header.extraFloats = append(header.extraFloats, iaeaExtraFloatXLast)
	}
	if cfg.Get("store-ylast", "") == "true" {
		header.extraFloats = append(header.extraFloats, iaeaExtraFloatYLast)
	}
	if cfg.Get("store-zlast", "") == "true" {
		header.extraFloats = append(header.extraFloats, iaeaExtraFloatZLast)
	}
	if cfg.Get("store-incremental-histories", "") == "true" {
		header.extraLongs = append(header.extraLongs, iaeaExtraLongIncHistory)
	}
	if cfg.Get("store-latch", "") == "true" {
		header.extraLongs = append(header.extraLongs, iaeaExtraLongLatch)
	}
	if cfg.Get("store-ilb", "") == "true" {
		header.extraLongs = append(header.extraLongs,
			iaeaExtraLongILB1, iaeaExtraLongILB2, iaeaExtraLongILB3,
			iaeaExtraLongILB4, iaeaExtraLongILB5)
	}

	header.recordLength = header.computedRecordLength()

	out, err := createStream(dataPath)
	if err != nil {
		return nil, err
	}

	return &iaeaWriter{
		state:  writerState{path: dataPath, max: math.MaxInt64},
		format: f,
		header: header,
		out:    out,
		buf:    make([]byte, header.recordLength),
	}, nil
}

func (w *iaeaWriter) Format() *Format     { return w.format }
func (w *iaeaWriter) MaxParticles() int64 { return w.state.max }

func (w *iaeaWriter) ParticlesWritten() int64 { return w.state.written }
func (w *iaeaWriter) HistoriesWritten() int64 { return w.state.histories }

func (w *iaeaWriter) Write(p Particle) error {
	if err := w.state.start("Write"); err != nil {
		return err
	}
	if err := w.state.room(); err != nil {
		return err
	}

	h := w.header
	code, ok := iaeaTypeCode(p.Type)
	if !ok {
		return fmt.Errorf("IAEA phase space files cannot hold %ss", p.Type)
	}
	if p.W < 0 {
		code = -code
	}

	values := [iaeaNumFields]float64{
		p.X / units.Cm, p.Y / units.Cm, p.Z / units.Cm,
		p.U, p.V, p.W, p.Weight,
	}
	for i := 0; i < iaeaNumFields; i++ {
		if h.stored[i] {
			continue
		}
		if values[i] != h.constants[i] {
			return fmt.Errorf("the header declares %s constant at %g, but "+
				"this particle carries %g; a constant field cannot vary "+
				"within one IAEA file", iaeaFieldNames[i], h.constants[i],
				values[i])
		}
	}

	energy := p.E / units.MeV
	if p.NewHistory {
		energy = -energy
	}

	c := &cursor{b: w.buf, order: h.order}
	c.putI8(code)
	c.putF32(float32(energy))
	for i := 0; i < iaeaNumFields; i++ {
		if i == iaeaW || !h.stored[i] {
			continue
		}
		c.putF32(float32(values[i]))
	}
	for _, code := range h.extraFloats {
		v, _ := p.GetFloat(iaeaExtraFloatProps[code])
		c.putF32(float32(v))
	}
	for _, code := range h.extraLongs {
		v, ok := p.GetInt(iaeaExtraLongProps[code])
		if !ok && code == iaeaExtraLongIncHistory {
			if p.NewHistory {
				v = 1
			}
		}
		c.putI32(v)
	}

	if _, err := w.out.Write(w.buf); err != nil {
		return err
	}

	h.acc.Add(p.Type, p.E/units.MeV, p.Weight,
		p.X/units.Cm, p.Y/units.Cm, p.Z/units.Cm)
	w.state.note(&p)
	return nil
}

func (w *iaeaWriter) Close() error {
	if w.state.closed {
		return nil
	}
	w.state.closed = true

	if err := w.out.Close(); err != nil {
		return err
	}

	h := w.header
	h.nParticles = w.state.written
	h.origHistories = w.state.histories
	h.checksum = h.nParticles * int64(h.recordLength)
	return h.write()
}
