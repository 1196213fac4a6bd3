/*package phsio reads and writes phase space files: records of simulated
particles crossing a scoring surface, as produced by radiation-transport
codes. Several mutually incompatible formats are in circulation; this
package exposes all of them through one Particle type and one pair of
Reader/Writer interfaces, with a registry that picks the right codec from a
file name or an explicit format name.

Adding support for a new format requires implementing the Reader and Writer
interfaces for it and registering a Format descriptor.

Readers and writers are not safe for concurrent use of a single instance.
Separate instances are independent and may be used from separate goroutines.
*/
package phsio

import (
	"math"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/pdg"
)

// IntProperty keys the optional integer metadata a record can carry.
type IntProperty int

const (
	// Latch is the EGS LATCH word. See the latch package for its layout.
	Latch IntProperty = iota
	// ILB1 through ILB5 are the PENELOPE provenance slots. See the ilb
	// package.
	ILB1
	ILB2
	ILB3
	ILB4
	ILB5
	// IncrementalHistories is the number of source histories, including
	// empty ones, that elapsed since the previous record. A value n > 0
	// implies the record starts a new history.
	IncrementalHistories
	// GenericInt is an uninterpreted user value.
	GenericInt
)

// FloatProperty keys the optional float metadata a record can carry.
type FloatProperty int

const (
	// XLast, YLast, ZLast are the position of the particle's last
	// interaction. EGS MODE2 files store ZLast; IAEA files may store any of
	// the three.
	XLast FloatProperty = iota
	YLast
	ZLast
	// GenericFloat is an uninterpreted user value.
	GenericFloat
)

// BoolProperty keys the optional boolean metadata a record can carry.
type BoolProperty int

const (
	// MultiPasser is set when the particle crossed the scoring plane more
	// than once.
	MultiPasser BoolProperty = iota
	// Secondary is set when the particle was created during transport
	// rather than by the source.
	Secondary
	// GenericBool is an uninterpreted user value.
	GenericBool
)

// Particle is one phase space record in internal units: centimeters for
// positions and MeV for kinetic energy. U, V, W are direction cosines. The
// engine does not check that they form a unit vector; that is the
// producer's job.
type Particle struct {
	Type       pdg.Type
	E          float64
	X, Y, Z    float64
	U, V, W    float64
	Weight     float64
	NewHistory bool

	// The maps below are nil for particles with no auxiliary metadata. Use
	// the Set*/Get* methods so the nil case is handled uniformly.
	Ints   map[IntProperty]int32
	Floats map[FloatProperty]float64
	Bools  map[BoolProperty]bool
}

// SetInt attaches an integer property to p.
func (p *Particle) SetInt(k IntProperty, v int32) {
	if p.Ints == nil {
		p.Ints = map[IntProperty]int32{}
	}
	p.Ints[k] = v
}

// SetFloat attaches a float property to p.
func (p *Particle) SetFloat(k FloatProperty, v float64) {
	if p.Floats == nil {
		p.Floats = map[FloatProperty]float64{}
	}
	p.Floats[k] = v
}

// SetBool attaches a boolean property to p.
func (p *Particle) SetBool(k BoolProperty, v bool) {
	if p.Bools == nil {
		p.Bools = map[BoolProperty]bool{}
	}
	p.Bools[k] = v
}

// GetInt looks up an integer property.
func (p *Particle) GetInt(k IntProperty) (int32, bool) {
	v, ok := p.Ints[k]
	return v, ok
}

// GetFloat looks up a float property.
func (p *Particle) GetFloat(k FloatProperty) (float64, bool) {
	v, ok := p.Floats[k]
	return v, ok
}

// GetBool looks up a boolean property.
func (p *Particle) GetBool(k BoolProperty) (bool, bool) {
	v, ok := p.Bools[k]
	return v, ok
}

// PseudoParticle builds the marker record the TOPAS format uses for a run
// of n histories that produced no scored particles.
func PseudoParticle(n int32) Particle {
	p := Particle{Type: pdg.PseudoParticle, Weight: -float64(n),
		NewHistory: true}
	p.SetInt(IncrementalHistories, n)
	return p
}

// Config is an opaque bag of format-specific options. The engine passes it
// through to the chosen codec without interpreting it; unknown keys for a
// given codec are InvalidConfiguration errors there. Values are strings and
// each codec documents how it parses its own.
type Config map[string]string

// Get returns the value for key, or def if the key is absent. A nil Config
// behaves as empty.
func (c Config) Get(key, def string) string {
	if v, ok := c[key]; ok {
		return v
	}
	return def
}

// FixedValues declares that some particle fields are constant for an entire
// written file, letting formats with compact headers omit them from every
// record. Whether a codec checks each written particle against the declared
// constants or trusts the caller is a per-format policy documented on that
// codec.
type FixedValues struct {
	HasX, HasY, HasZ bool
	HasU, HasV, HasW bool
	HasWeight        bool
	X, Y, Z          float64
	U, V, W          float64
	Weight           float64
}

// FixZ is shorthand for the single most common declaration: a scoring plane
// at constant z.
func FixZ(z float64) FixedValues { return FixedValues{HasZ: true, Z: z} }

// Reader is a sequential pass over one open phase space file. Next returns
// io.EOF after the last record and keeps returning it on further calls.
// After Close, every operation fails with a ClosedHandle error. Close is
// idempotent and may be called before the stream is exhausted.
type Reader interface {
	// Format identifies the codec serving this reader.
	Format() *Format
	// Next decodes one record and advances the stream.
	Next() (Particle, error)
	// ParticleCount returns the total record count as declared by the
	// file's header. The second return is false when the format does not
	// store a count; the only way to learn it then is to consume the
	// stream and use ParticlesRead.
	ParticleCount() (int64, bool)
	// HistoryCount is the header-declared history total, with the same
	// two-tier contract as ParticleCount.
	HistoryCount() (int64, bool)
	// ParticlesRead is the number of records decoded so far.
	ParticlesRead() int64
	// HistoriesRead is the number of history starts seen so far.
	HistoriesRead() int64
	// Rewind returns the stream to the first record. Codecs over
	// non-seekable sources return an InvalidConfiguration error and the
	// caller must reopen instead.
	Rewind() error
	Close() error
}

// Writer appends particles to one phase space file. Close flushes, patches
// the header with final counts where the format requires it, and releases
// the file; it is idempotent. Abandoning a Writer without calling Close
// leaves an unfinalized file for header-patching formats.
type Writer interface {
	// Format identifies the codec serving this writer.
	Format() *Format
	// Write appends one record.
	Write(p Particle) error
	// MaxParticles is the most records the format can represent. Write
	// fails with CapacityExceeded, leaving the file untouched, once this
	// many records are present.
	MaxParticles() int64
	// ParticlesWritten is the number of records accepted so far.
	ParticlesWritten() int64
	// HistoriesWritten is the number of history starts accepted so far.
	HistoriesWritten() int64
	Close() error
}

// readerState carries the bookkeeping shared by every codec's Reader.
type readerState struct {
	path      string
	closed    bool
	eof       bool
	read      int64
	histories int64
}

// start guards an operation against use after Close.
func (s *readerState) start(op string) error {
	if s.closed {
		return &e.ClosedHandle{Path: s.path, Op: op}
	}
	return nil
}

// note updates the counters for one decoded particle. The first record of a
// stream always starts a history even if its flag is unset, and a record
// carrying an IncrementalHistories value n accounts for n history starts at
// once.
func (s *readerState) note(p *Particle) {
	first := s.read == 0
	s.read++
	if n, ok := p.GetInt(IncrementalHistories); ok && n > 0 {
		s.histories += int64(n)
		return
	}
	if p.NewHistory || first {
		s.histories++
	}
}

type writerState struct {
	path      string
	closed    bool
	written   int64
	histories int64
	max       int64
}

func (s *writerState) start(op string) error {
	if s.closed {
		return &e.ClosedHandle{Path: s.path, Op: op}
	}
	return nil
}

// room fails once the format's record counter would overflow.
func (s *writerState) room() error {
	if s.written >= s.max {
		return &e.CapacityExceeded{Path: s.path, Max: s.max}
	}
	return nil
}

func (s *writerState) note(p *Particle) {
	first := s.written == 0
	s.written++
	if n, ok := p.GetInt(IncrementalHistories); ok && n > 0 {
		s.histories += int64(n)
		return
	}
	if p.NewHistory || first {
		s.histories++
	}
}

// thirdCosine recovers |w| from u and v assuming a unit direction vector.
func thirdCosine(u, v float64) float64 {
	uuvv := u*u + v*v
	if uuvv > 1 {
		uuvv = 1
	}
	return math.Sqrt(1 - uuvv)
}
