package phsio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/latch"
	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/units"
)

// The EGS phase space format, used by BEAMnrc and friends. Little-endian
// throughout. Two variants exist: MODE0 with 28-byte records and MODE2 with
// 32-byte records that append the z of the particle's last interaction.
// The header occupies the first record slot:
//
//	bytes 0-4    "MODE0" or "MODE2"
//	bytes 5-8    particle count (uint32)
//	bytes 9-12   photon count (uint32)
//	bytes 13-16  maximum kinetic energy, MeV (float32)
//	bytes 17-20  minimum electron kinetic energy, MeV (float32)
//	bytes 21-24  incident history count (float32)
//	rest         zero padding out to the record length
//
// Records hold LATCH, energy, x, y, u, v, weight as 4-byte values, plus
// zlast in MODE2. The format squeezes three things into sign bits: a
// negative energy marks a new history, the sign of the weight carries the
// sign of the third direction cosine, and electron and positron energies
// are stored as total energy rather than kinetic. There is no z; the
// scoring plane's z is declared out of band.
//
// Config keys: "mode" (MODE0 or MODE2, writer only, default MODE0), "z"
// (the plane z in cm assigned to every particle read, default 0),
// "history-count" (writer only, overrides the incident history count
// written to the header, for sources that know it better than the stream
// does).
//
// Fixed-values policy: the codec trusts the caller. Z is inherently fixed;
// a declared Z constant is recorded nowhere in the file and mismatched
// per-particle z values are silently dropped, which is what the reference
// tooling does as well.

const (
	egsMode0RecLen = 28
	egsMode2RecLen = 32

	// The header's particle counter is a uint32.
	egsMaxParticles = int64(math.MaxUint32)
)

func newEGSFormat() *Format {
	f := &Format{
		Name:        "EGS",
		Extension:   ".egsphsp1",
		Description: "EGS/BEAMnrc phase space (MODE0 or MODE2)",
		extensions:  []string{".egsphsp", ".egsphsp*"},
		sniff: func(path string, head []byte) bool {
			return len(head) >= 5 &&
				(string(head[:5]) == "MODE0" || string(head[:5]) == "MODE2")
		},
	}
	f.open = func(path string, cfg Config) (Reader, error) {
		return openEGS(f, path, cfg)
	}
	f.create = func(path string, cfg Config, fixed FixedValues) (Writer, error) {
		return createEGS(f, path, cfg, fixed)
	}
	return f
}

type egsHeader struct {
	mode2        bool
	nParticles   uint32
	nPhotons     uint32
	maxKE        float32
	minElectronE float32
	nHistories   float32
}

func (h *egsHeader) recLen() int {
	if h.mode2 {
		return egsMode2RecLen
	}
	return egsMode0RecLen
}

func (h *egsHeader) toBytes() []byte {
	b := make([]byte, h.recLen())
	c := &cursor{b: b, order: binary.LittleEndian}
	if h.mode2 {
		c.putBytes([]byte("MODE2"))
	} else {
		c.putBytes([]byte("MODE0"))
	}
	c.putU32(h.nParticles)
	c.putU32(h.nPhotons)
	c.putF32(h.maxKE)
	c.putF32(h.minElectronE)
	c.putF32(h.nHistories)
	return b
}

func parseEGSHeader(b []byte) (*egsHeader, error) {
	h := &egsHeader{}
	switch string(b[:5]) {
	case "MODE0":
	case "MODE2":
		h.mode2 = true
	default:
		return nil, fmt.Errorf("the first five bytes are %q, but an EGS "+
			"phase space file must start with 'MODE0' or 'MODE2'", b[:5])
	}

	c := &cursor{b: b, i: 5, order: binary.LittleEndian}
	h.nParticles = c.u32()
	h.nPhotons = c.u32()
	h.maxKE = c.f32()
	h.minElectronE = c.f32()
	h.nHistories = c.f32()
	return h, nil
}

type egsReader struct {
	state   readerState
	format  *Format
	header  *egsHeader
	stream  *recordStream
	planeZ  float64
	count   int64
	countOK bool
}

var _ Reader = &egsReader{}

func openEGS(f *Format, path string, cfg Config) (Reader, error) {
	rc, err := openStream(path)
	if err != nil {
		return nil, err
	}

	head := make([]byte, egsMode0RecLen)
	if _, err := io.ReadFull(rc, head); err != nil {
		rc.Close()
		return nil, &e.MalformedHeader{Path: path, Err: err}
	}
	header, err := parseEGSHeader(head)
	if err != nil {
		rc.Close()
		return nil, &e.MalformedHeader{Path: path, Err: err}
	}

	planeZ, err := cfgFloat(cfg, "z", 0)
	if err != nil {
		rc.Close()
		return nil, err
	}

	r := &egsReader{
		state:   readerState{path: path},
		format:  f,
		header:  header,
		planeZ:  planeZ,
		count:   int64(header.nParticles),
		countOK: true,
	}
	if cfg.Get("ignore-header-count", "") != "" {
		// The header count is not to be trusted, so recompute it from
		// the file size. The header fills the first record slot. A
		// compressed stream has no usable size, so the count is unknown
		// there.
		r.countOK = false
		if _, suffix := CompressionSuffix(path); suffix == "" {
			if info, err := os.Stat(path); err == nil {
				r.count = info.Size()/int64(header.recLen()) - 1
				r.countOK = true
			}
		}
	}

	// The header fills one record slot, so the remainder of that slot must
	// be skipped before the first particle.
	r.stream = newRecordStream(path, rc, header.recLen())
	r.stream.offset = int64(len(head))
	if err := r.stream.skip(header.recLen() - len(head)); err != nil {
		rc.Close()
		return nil, &e.MalformedHeader{Path: path, Err: err}
	}
	return r, nil
}

func (r *egsReader) Format() *Format { return r.format }

func (r *egsReader) Next() (Particle, error) {
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

	c := &cursor{b: b, order: binary.LittleEndian}
	word := c.u32()
	energy := float64(c.f32())
	x := float64(c.f32()) * units.Cm
	y := float64(c.f32()) * units.Cm
	u := float64(c.f32())
	v := float64(c.f32())
	weight := float64(c.f32())

	w := thirdCosine(u, v)
	if weight < 0 {
		w, weight = -w, -weight
	}

	newHistory := energy < 0
	if newHistory {
		energy = -energy
	}

	fields := latch.Unpack(word)
	typ, ok := latch.TypeFor(fields.Charge)
	if !ok {
		return Particle{}, &e.DecodeError{
			Path: r.state.path, Offset: r.stream.offset - int64(len(b)),
			Err: fmt.Errorf("the LATCH charge field holds the invalid "+
				"value %d", fields.Charge),
		}
	}
	if typ == pdg.Electron || typ == pdg.Positron {
		energy -= units.ElectronRestMass
	}

	p := Particle{
		Type: typ, E: energy * units.MeV,
		X: x, Y: y, Z: r.planeZ,
		U: u, V: v, W: w,
		Weight: weight, NewHistory: newHistory,
	}
	p.SetInt(Latch, int32(word))
	p.SetBool(MultiPasser, fields.MultiPasser)
	if latch.IsSecondary(word) {
		p.SetBool(Secondary, true)
	}
	if r.header.mode2 {
		p.SetFloat(ZLast, float64(c.f32())*units.Cm)
	}

	r.state.note(&p)
	return p, nil
}

func (r *egsReader) ParticleCount() (int64, bool) {
	return r.count, r.countOK
}

func (r *egsReader) HistoryCount() (int64, bool) {
	return int64(r.header.nHistories), true
}

func (r *egsReader) ParticlesRead() int64 { return r.state.read }
func (r *egsReader) HistoriesRead() int64 { return r.state.histories }

func (r *egsReader) Rewind() error {
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

	recLen := r.header.recLen()
	r.stream = newRecordStream(r.state.path, rc, recLen)
	if err := r.stream.skip(recLen); err != nil {
		return err
	}
	r.state.eof = false
	r.state.read, r.state.histories = 0, 0
	return nil
}

func (r *egsReader) Close() error {
	if r.state.closed {
		return nil
	}
	r.state.closed = true
	return r.stream.close()
}

type egsWriter struct {
	state  writerState
	format *Format
	header *egsHeader
	f      *os.File
	buf    []byte

	manualHistories bool
}

var _ Writer = &egsWriter{}

func createEGS(f *Format, path string, cfg Config, fixed FixedValues) (Writer, error) {
	if _, suffix := CompressionSuffix(path); suffix != "" {
		return nil, &e.InvalidConfiguration{Option: suffix,
			Reason: "EGS files patch their header in place on Close, " +
				"which a compressed stream cannot support"}
	}

	header := &egsHeader{minElectronE: float32(math.Inf(1))}
	switch mode := cfg.Get("mode", "MODE0"); mode {
	case "MODE0":
	case "MODE2":
		header.mode2 = true
	default:
		return nil, &e.InvalidConfiguration{Option: "mode",
			Reason: fmt.Sprintf("'%s' is not an EGS mode; use MODE0 or "+
				"MODE2", mode)}
	}

	manual := false
	if s := cfg.Get("history-count", ""); s != "" {
		n, err := cfgFloat(cfg, "history-count", 0)
		if err != nil {
			return nil, err
		}
		header.nHistories = float32(n)
		manual = true
	}

	out, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	// Reserve the header's record slot. The real header lands here during
	// Close, once the counts are known.
	if _, err := out.Write(make([]byte, header.recLen())); err != nil {
		out.Close()
		return nil, err
	}

	return &egsWriter{
		state:           writerState{path: path, max: egsMaxParticles},
		format:          f,
		header:          header,
		f:               out,
		buf:             make([]byte, header.recLen()),
		manualHistories: manual,
	}, nil
}

func (w *egsWriter) Format() *Format     { return w.format }
func (w *egsWriter) MaxParticles() int64 { return w.state.max }

func (w *egsWriter) ParticlesWritten() int64 { return w.state.written }
func (w *egsWriter) HistoriesWritten() int64 { return w.state.histories }

func (w *egsWriter) Write(p Particle) error {
	if err := w.state.start("Write"); err != nil {
		return err
	}
	if err := w.state.room(); err != nil {
		return err
	}

	charge, ok := latch.ChargeFor(p.Type)
	if !ok {
		return fmt.Errorf("EGS phase space files can only hold photons, "+
			"electrons, and positrons, not %ss", p.Type)
	}

	word := uint32(0)
	if raw, ok := p.GetInt(Latch); ok {
		word = uint32(raw)
	}
	fields := latch.Unpack(word)
	fields.Charge = charge
	if mp, ok := p.GetBool(MultiPasser); ok {
		fields.MultiPasser = mp
	}
	word = latch.Pack(fields)

	kinetic := p.E / units.MeV
	if kinetic > float64(w.header.maxKE) {
		w.header.maxKE = float32(kinetic)
	}
	if p.Type == pdg.Electron && kinetic < float64(w.header.minElectronE) {
		w.header.minElectronE = float32(kinetic)
	}

	energy := kinetic
	if p.Type == pdg.Electron || p.Type == pdg.Positron {
		energy += units.ElectronRestMass
	}
	if p.NewHistory {
		energy = -energy
	}

	weight := p.Weight
	if p.W < 0 {
		weight = -weight
	}

	c := &cursor{b: w.buf, order: binary.LittleEndian}
	c.putU32(word)
	c.putF32(float32(energy))
	c.putF32(float32(p.X / units.Cm))
	c.putF32(float32(p.Y / units.Cm))
	c.putF32(float32(p.U))
	c.putF32(float32(p.V))
	c.putF32(float32(weight))
	if w.header.mode2 {
		zlast, ok := p.GetFloat(ZLast)
		if !ok {
			return fmt.Errorf("MODE2 EGS files store the z of each " +
				"particle's last interaction, but this particle carries " +
				"no ZLast property")
		}
		c.putF32(float32(zlast / units.Cm))
	}

	if _, err := w.f.Write(w.buf); err != nil {
		return err
	}

	w.header.nParticles++
	if p.Type == pdg.Photon {
		w.header.nPhotons++
	}
	w.state.note(&p)
	return nil
}

func (w *egsWriter) Close() error {
	if w.state.closed {
		return nil
	}
	w.state.closed = true

	if !w.manualHistories ||
		float64(w.state.histories) > float64(w.header.nHistories) {
		w.header.nHistories = float32(w.state.histories)
	}
	if math.IsInf(float64(w.header.minElectronE), 1) {
		w.header.minElectronE = 0
	}

	if _, err := w.f.WriteAt(w.header.toBytes(), 0); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
