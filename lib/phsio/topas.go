package phsio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/stats"
	"github.com/phasespace/phsp/lib/units"
)

// The TOPAS phase space format: a .phsp data file paired with a .header
// text file. Three variants share the extension and are told apart by the
// header's first line:
//
//	"TOPAS Binary Phase Space"   binary, 34-byte little-endian records
//	"TOPAS ASCII Phase Space"    one whitespace-separated line per record
//	"$TITLE:"                    "limited" binary, 29-byte records
//
// A binary record holds x, y, z (cm), u, v, kinetic energy (MeV), and
// weight as float32, the PDG species code as int32, and two flag bytes: the
// sign of the third direction cosine and the new-history mark. A record
// with PDG code zero and a negative weight stands in for round(-weight)
// source histories that produced no particles at all. ASCII lines carry the
// same ten columns in the same order. The limited variant reuses the IAEA
// species codes and sign conventions: a negative code flips the third
// cosine, a negative energy marks a new history, and empty histories cannot
// be represented.
//
// Config keys: "variant" (binary, ascii, or limited; writer only, default
// binary) and "history-count" (writer only, overrides the original history
// count when the source knows it better than the stream does).
//
// Fixed-values policy: the codec trusts the caller. Every field is stored
// in every record regardless of any declared constants.

const (
	topasBinaryRecLen  = 34
	topasLimitedRecLen = 29
)

type topasVariant int

const (
	topasBinary topasVariant = iota
	topasASCII
	topasLimited
)

func (v topasVariant) String() string {
	switch v {
	case topasASCII:
		return "ascii"
	case topasLimited:
		return "limited"
	}
	return "binary"
}

func newTOPASFormat() *Format {
	f := &Format{
		Name:        "TOPAS",
		Extension:   ".phsp",
		Description: "TOPAS phase space (binary, ASCII, or limited)",
		extensions:  []string{".phsp"},
		sniff: func(path string, head []byte) bool {
			return fileExists(topasHeaderPath(path))
		},
	}
	f.open = func(path string, cfg Config) (Reader, error) {
		return openTOPAS(f, path, cfg)
	}
	f.create = func(path string, cfg Config, fixed FixedValues) (Writer, error) {
		return createTOPAS(f, path, cfg, fixed)
	}
	return f
}

// topasHeaderPath maps a data path onto its companion header path,
// ignoring any compression suffix on the data file.
func topasHeaderPath(path string) string {
	base, _ := CompressionSuffix(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".header"
}

// topasGeant4Name returns the Geant4 species name the header's statistics
// tables are keyed by.
func topasGeant4Name(t pdg.Type) (string, bool) {
	switch t {
	case pdg.Photon:
		return "gamma", true
	case pdg.Electron:
		return "e-", true
	case pdg.Positron:
		return "e+", true
	case pdg.Neutron:
		return "neutron", true
	case pdg.Proton:
		return "proton", true
	}
	return "", false
}

// topasColumns names the ten standard record columns in file order. The
// width codes are the ones binary headers prefix each name with.
var topasColumns = []struct {
	code string
	name string
}{
	{"f4", "Position X [cm]"},
	{"f4", "Position Y [cm]"},
	{"f4", "Position Z [cm]"},
	{"f4", "Direction Cosine X"},
	{"f4", "Direction Cosine Y"},
	{"f4", "Energy [MeV]"},
	{"f4", "Weight"},
	{"i4", "Particle Type (in PDG Format)"},
	{"b1", "Flag to tell if Third Direction Cosine is Negative (1 means true)"},
	{"b1", "Flag to tell if this is the First Scored Particle from this History (1 means true)"},
}

const topasLimitedTitle = "TOPAS Phase Space in \"limited\" format. " +
	"Should only be used when it is necessary to read or write from " +
	"restrictive older codes."

type topasHeader struct {
	path    string
	variant topasVariant

	origHistories int64
	// representedHistories is the subset of origHistories that put at
	// least one particle into the file.
	representedHistories int64
	nParticles           int64
	recordLength         int

	acc *stats.Accumulator
}

func parseTOPASHeader(path string) (*topasHeader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(string(raw), "\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("the header file is empty")
	}

	h := &topasHeader{path: path}
	first := lines[0]
	switch {
	case strings.Contains(first, "$TITLE:"):
		h.variant = topasLimited
		h.recordLength = topasLimitedRecLen
	case strings.Contains(first, "TOPAS ASCII"):
		h.variant = topasASCII
	case strings.Contains(first, "TOPAS Binary"):
		h.variant = topasBinary
		h.recordLength = topasBinaryRecLen
	default:
		return nil, fmt.Errorf("the first header line, %q, names no "+
			"known TOPAS variant", strings.TrimSpace(first))
	}

	if h.variant == topasLimited {
		return h, h.parseLimited(lines)
	}
	return h, h.parseFull(lines)
}

// parseLimited reads the $SECTION-style header of the limited variant.
// Each section tag is followed by its value on the next line.
func (h *topasHeader) parseLimited(lines []string) error {
	value := func(i int) (int64, error) {
		for j := i + 1; j < len(lines); j++ {
			s := strings.TrimSpace(lines[j])
			if s == "" {
				continue
			}
			return strconv.ParseInt(strings.Fields(s)[0], 10, 64)
		}
		return 0, fmt.Errorf("the section at line %d has no value", i+1)
	}

	for i, line := range lines {
		var err error
		switch {
		case strings.Contains(line, "$ORIG_HISTORIES:"):
			h.origHistories, err = value(i)
		case strings.Contains(line, "$PARTICLES:"):
			h.nParticles, err = value(i)
		case strings.Contains(line, "$RECORD_LENGTH:"):
			var n int64
			if n, err = value(i); err == nil {
				h.recordLength = int(n)
			}
		}
		if err != nil {
			return fmt.Errorf("the %s section is malformed: %w",
				strings.TrimSpace(line), err)
		}
	}
	if h.recordLength != topasLimitedRecLen {
		return fmt.Errorf("the header declares %d-byte records, but the "+
			"limited variant always uses %d-byte records",
			h.recordLength, topasLimitedRecLen)
	}

	// The limited header does not distinguish represented histories.
	h.representedHistories = h.origHistories
	return nil
}

// parseFull reads the prose-style header shared by the ascii and binary
// variants.
func (h *topasHeader) parseFull(lines []string) error {
	tail := func(line, prefix string) (int64, error) {
		s := strings.TrimSpace(strings.TrimPrefix(line, prefix))
		return strconv.ParseInt(s, 10, 64)
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		var err error
		switch {
		case strings.HasPrefix(line,
			"Number of Original Histories that Reached Phase Space:"):
			h.representedHistories, err = tail(line,
				"Number of Original Histories that Reached Phase Space:")
		case strings.HasPrefix(line, "Number of Original Histories:"):
			h.origHistories, err = tail(line,
				"Number of Original Histories:")
		case strings.HasPrefix(line, "Number of Scored Particles:"):
			h.nParticles, err = tail(line, "Number of Scored Particles:")
		case strings.HasPrefix(line, "Number of Bytes per Particle:"):
			var n int64
			if n, err = tail(line,
				"Number of Bytes per Particle:"); err == nil {
				h.recordLength = int(n)
			}
		}
		if err != nil {
			return fmt.Errorf("the header line %q does not end in an "+
				"integer: %w", line, err)
		}
	}

	if h.variant == topasBinary && h.recordLength < topasBinaryRecLen {
		return fmt.Errorf("the header declares %d-byte records, but a "+
			"TOPAS binary record needs at least %d bytes",
			h.recordLength, topasBinaryRecLen)
	}
	return nil
}

func (h *topasHeader) write() error {
	b := &strings.Builder{}
	switch h.variant {
	case topasLimited:
		fmt.Fprintf(b, "$TITLE:\n%s\n", topasLimitedTitle)
		b.WriteString("$RECORD_CONTENTS:\n")
		for _, field := range []string{"X", "Y", "Z", "U", "V", "W",
			"Weight"} {
			fmt.Fprintf(b, "    1     // %s is stored ?\n", field)
		}
		b.WriteString("    0     // Extra floats stored ?\n")
		b.WriteString("    0     // Extra longs stored ?\n")
		fmt.Fprintf(b, "$RECORD_LENGTH:\n%d\n", topasLimitedRecLen)
		fmt.Fprintf(b, "$ORIG_HISTORIES:\n%d\n", h.origHistories)
		fmt.Fprintf(b, "$PARTICLES:\n%d\n", h.nParticles)
		b.WriteString("$EXTRA_FLOATS:\n0\n")
		b.WriteString("$EXTRA_INTS:\n0\n")

	case topasBinary:
		b.WriteString("TOPAS Binary Phase Space\n\n")
		h.writeCounts(b)
		fmt.Fprintf(b, "Number of Bytes per Particle: %d\n",
			topasBinaryRecLen)
		b.WriteString("\nByte order of each record is as follows:\n")
		for _, col := range topasColumns {
			fmt.Fprintf(b, "%s: %s\n", col.code, col.name)
		}
		b.WriteString("\n")
		h.writeStats(b)

	case topasASCII:
		b.WriteString("TOPAS ASCII Phase Space\n\n")
		h.writeCounts(b)
		b.WriteString("\nColumns of data are as follows:\n")
		for i, col := range topasColumns {
			fmt.Fprintf(b, "%2d: %s\n", i+1, col.name)
		}
		b.WriteString("\n")
		h.writeStats(b)
	}

	return os.WriteFile(h.path, []byte(b.String()), 0644)
}

func (h *topasHeader) writeCounts(b *strings.Builder) {
	fmt.Fprintf(b, "Number of Original Histories: %d\n", h.origHistories)
	fmt.Fprintf(b, "Number of Original Histories that Reached Phase "+
		"Space: %d\n", h.representedHistories)
	fmt.Fprintf(b, "Number of Scored Particles: %d\n", h.nParticles)
}

// writeStats emits the per-species count and kinetic energy range tables
// that close an ascii or binary header.
func (h *topasHeader) writeStats(b *strings.Builder) {
	if h.acc == nil {
		return
	}
	named := []pdg.Type{}
	for _, t := range h.acc.Types() {
		if _, ok := topasGeant4Name(t); ok {
			named = append(named, t)
		}
	}

	for _, t := range named {
		name, _ := topasGeant4Name(t)
		fmt.Fprintf(b, "Number of %s: %d\n", name, h.acc.CountOf(t))
	}
	b.WriteString("\n")
	for _, t := range named {
		name, _ := topasGeant4Name(t)
		fmt.Fprintf(b, "Minimum Kinetic Energy of %s: %s MeV\n",
			name, topasFloat(h.acc.ByType[t].MinEnergy))
	}
	b.WriteString("\n")
	for _, t := range named {
		name, _ := topasGeant4Name(t)
		fmt.Fprintf(b, "Maximum Kinetic Energy of %s: %s MeV\n",
			name, topasFloat(h.acc.ByType[t].MaxEnergy))
	}
	b.WriteString("\n")
}

func topasFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

type topasReader struct {
	state  readerState
	format *Format
	header *topasHeader

	// Exactly one of records and lines is non-nil, depending on the
	// variant.
	records *recordStream
	lines   *lineStream
}

var _ Reader = &topasReader{}

func openTOPAS(f *Format, path string, cfg Config) (Reader, error) {
	headerPath := topasHeaderPath(path)
	header, err := parseTOPASHeader(headerPath)
	if err != nil {
		return nil, &e.MalformedHeader{Path: headerPath, Err: err}
	}

	r := &topasReader{
		state:  readerState{path: path},
		format: f,
		header: header,
	}
	if err := r.openData(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *topasReader) openData() error {
	rc, err := openStream(r.state.path)
	if err != nil {
		return err
	}
	if r.header.variant == topasASCII {
		r.lines = newLineStream(r.state.path, rc)
	} else {
		r.records = newRecordStream(r.state.path, rc,
			r.header.recordLength)
	}
	return nil
}

func (r *topasReader) Format() *Format { return r.format }

func (r *topasReader) Next() (Particle, error) {
	if err := r.state.start("Next"); err != nil {
		return Particle{}, err
	}
	if r.state.eof {
		return Particle{}, io.EOF
	}

	var p Particle
	var err error
	switch r.header.variant {
	case topasASCII:
		p, err = r.nextASCII()
	case topasLimited:
		p, err = r.nextLimited()
	default:
		p, err = r.nextBinary()
	}
	if err == io.EOF {
		r.state.eof = true
		return Particle{}, io.EOF
	} else if err != nil {
		return Particle{}, err
	}

	r.state.note(&p)
	return p, nil
}

func (r *topasReader) nextBinary() (Particle, error) {
	b, err := r.records.next()
	if err != nil {
		return Particle{}, err
	}
	offset := r.records.offset - int64(len(b))

	c := &cursor{b: b, order: binary.LittleEndian}
	x := float64(c.f32()) * units.Cm
	y := float64(c.f32()) * units.Cm
	z := float64(c.f32()) * units.Cm
	u := float64(c.f32())
	v := float64(c.f32())
	energy := float64(c.f32()) * units.MeV
	weight := float64(c.f32())
	code := c.i32()

	if code == 0 {
		if weight >= 0 {
			return Particle{}, &e.DecodeError{Path: r.state.path,
				Offset: offset,
				Err: fmt.Errorf("a record with PDG code zero stands for "+
					"-weight empty histories and must have a negative "+
					"weight, not %g", weight)}
		}
		p := Particle{Type: pdg.PseudoParticle, Weight: weight,
			NewHistory: true}
		p.SetInt(IncrementalHistories,
			int32(math.Round(-weight)))
		return p, nil
	}

	typ, err := pdg.FromPDG(code)
	if err != nil {
		return Particle{}, &e.DecodeError{Path: r.state.path,
			Offset: offset, Err: err}
	}

	w := thirdCosine(u, v)
	if c.bool() {
		w = -w
	}
	newHistory := c.bool()

	return Particle{
		Type: typ, E: energy,
		X: x, Y: y, Z: z,
		U: u, V: v, W: w,
		Weight: weight, NewHistory: newHistory,
	}, nil
}

func (r *topasReader) nextLimited() (Particle, error) {
	b, err := r.records.next()
	if err != nil {
		return Particle{}, err
	}
	offset := r.records.offset - int64(len(b))

	c := &cursor{b: b, order: binary.LittleEndian}
	code := c.i8()
	energy := float64(c.f32())
	x := float64(c.f32()) * units.Cm
	y := float64(c.f32()) * units.Cm
	z := float64(c.f32()) * units.Cm
	u := float64(c.f32())
	v := float64(c.f32())
	weight := float64(c.f32())

	newHistory := energy < 0
	if newHistory {
		energy = -energy
	}

	w := thirdCosine(u, v)
	if code < 0 {
		w, code = -w, -code
	}
	typ, ok := iaeaTypeFor(code)
	if !ok {
		return Particle{}, &e.DecodeError{Path: r.state.path,
			Offset: offset,
			Err: fmt.Errorf("the species code %d is invalid; limited "+
				"records use codes 1 through 5", code)}
	}

	return Particle{
		Type: typ, E: energy * units.MeV,
		X: x, Y: y, Z: z,
		U: u, V: v, W: w,
		Weight: weight, NewHistory: newHistory,
	}, nil
}

func (r *topasReader) nextASCII() (Particle, error) {
	line, offset, err := r.lines.next()
	if err != nil {
		return Particle{}, err
	}

	fields := strings.Fields(line)
	if len(fields) < 10 {
		return Particle{}, &e.DecodeError{Path: r.state.path,
			Offset: offset,
			Err: fmt.Errorf("the line has %d columns, but a TOPAS ASCII "+
				"record needs 10", len(fields))}
	}

	var fs [7]float64
	for i := range fs {
		if fs[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return Particle{}, &e.DecodeError{Path: r.state.path,
				Offset: offset,
				Err: fmt.Errorf("column %d holds '%s', which is not a "+
					"number", i+1, fields[i])}
		}
	}
	var is [3]int64
	for i := range is {
		if is[i], err = strconv.ParseInt(fields[7+i], 10, 32); err != nil {
			return Particle{}, &e.DecodeError{Path: r.state.path,
				Offset: offset,
				Err: fmt.Errorf("column %d holds '%s', which is not an "+
					"integer", 8+i, fields[7+i])}
		}
	}

	weight := fs[6]
	if is[0] == 0 {
		if weight >= 0 {
			return Particle{}, &e.DecodeError{Path: r.state.path,
				Offset: offset,
				Err: fmt.Errorf("a record with PDG code zero stands for "+
					"-weight empty histories and must have a negative "+
					"weight, not %g", weight)}
		}
		p := Particle{Type: pdg.PseudoParticle, Weight: weight,
			NewHistory: true}
		p.SetInt(IncrementalHistories, int32(math.Round(-weight)))
		return p, nil
	}

	typ, err := pdg.FromPDG(int32(is[0]))
	if err != nil {
		return Particle{}, &e.DecodeError{Path: r.state.path,
			Offset: offset, Err: err}
	}

	u, v := fs[3], fs[4]
	w := thirdCosine(u, v)
	if is[1] != 0 {
		w = -w
	}

	return Particle{
		Type: typ, E: fs[5] * units.MeV,
		X: fs[0] * units.Cm, Y: fs[1] * units.Cm, Z: fs[2] * units.Cm,
		U: u, V: v, W: w,
		Weight: weight, NewHistory: is[2] != 0,
	}, nil
}

func (r *topasReader) ParticleCount() (int64, bool) {
	return r.header.nParticles, true
}

func (r *topasReader) HistoryCount() (int64, bool) {
	return r.header.origHistories, true
}

func (r *topasReader) ParticlesRead() int64 { return r.state.read }
func (r *topasReader) HistoriesRead() int64 { return r.state.histories }

func (r *topasReader) Rewind() error {
	if err := r.state.start("Rewind"); err != nil {
		return err
	}
	if err := r.closeData(); err != nil {
		return err
	}
	if err := r.openData(); err != nil {
		return err
	}
	r.state.eof = false
	r.state.read, r.state.histories = 0, 0
	return nil
}

func (r *topasReader) closeData() error {
	if r.lines != nil {
		return r.lines.close()
	}
	return r.records.close()
}

func (r *topasReader) Close() error {
	if r.state.closed {
		return nil
	}
	r.state.closed = true
	return r.closeData()
}

type topasWriter struct {
	state  writerState
	format *Format
	header *topasHeader
	wc     io.WriteCloser
	buf    []byte

	manualHistories bool
	// realParticles excludes pseudo-particle markers; represented counts
	// the histories those real particles started.
	realParticles int64
	represented   int64
}

var _ Writer = &topasWriter{}

func createTOPAS(f *Format, path string, cfg Config, fixed FixedValues) (Writer, error) {
	variant := topasBinary
	switch v := strings.ToLower(cfg.Get("variant", "binary")); v {
	case "binary":
	case "ascii":
		variant = topasASCII
	case "limited":
		variant = topasLimited
	default:
		return nil, &e.InvalidConfiguration{Option: "variant",
			Reason: fmt.Sprintf("'%s' is not a TOPAS variant; use "+
				"binary, ascii, or limited", v)}
	}

	header := &topasHeader{
		path:    topasHeaderPath(path),
		variant: variant,
		acc:     stats.New(),
	}

	manual := false
	if s := cfg.Get("history-count", ""); s != "" {
		n, err := cfgInt(cfg, "history-count", 0)
		if err != nil {
			return nil, err
		}
		header.origHistories = n
		manual = true
	}

	wc, err := createStream(path)
	if err != nil {
		return nil, err
	}

	recLen := topasBinaryRecLen
	if variant == topasLimited {
		recLen = topasLimitedRecLen
	}
	return &topasWriter{
		state:           writerState{path: path, max: math.MaxInt64},
		format:          f,
		header:          header,
		wc:              wc,
		buf:             make([]byte, recLen),
		manualHistories: manual,
	}, nil
}

func (w *topasWriter) Format() *Format     { return w.format }
func (w *topasWriter) MaxParticles() int64 { return w.state.max }

func (w *topasWriter) ParticlesWritten() int64 { return w.state.written }
func (w *topasWriter) HistoriesWritten() int64 { return w.state.histories }

func (w *topasWriter) Write(p Particle) error {
	if err := w.state.start("Write"); err != nil {
		return err
	}
	if err := w.state.room(); err != nil {
		return err
	}

	var err error
	if p.Type == pdg.PseudoParticle {
		err = w.writePseudo(p)
	} else {
		switch w.header.variant {
		case topasASCII:
			err = w.writeASCII(p)
		case topasLimited:
			err = w.writeLimited(p)
		default:
			err = w.writeBinary(p)
		}
		if err == nil {
			if p.NewHistory || w.realParticles == 0 {
				w.represented++
			}
			w.realParticles++
			w.header.acc.Add(p.Type, p.E/units.MeV, p.Weight,
				p.X/units.Cm, p.Y/units.Cm, p.Z/units.Cm)
			w.header.nParticles++
		}
	}
	if err != nil {
		return err
	}

	w.state.note(&p)
	return nil
}

// writePseudo appends the empty-history marker record. Only the binary
// variant can hold one; ASCII files simply advance their history count and
// limited files cannot represent empty histories at all.
func (w *topasWriter) writePseudo(p Particle) error {
	if p.Weight >= 0 {
		return fmt.Errorf("a pseudo-particle's weight is the negated "+
			"count of the empty histories it stands for and must be "+
			"negative, not %g", p.Weight)
	}
	switch w.header.variant {
	case topasASCII:
		return nil
	case topasLimited:
		return fmt.Errorf("limited TOPAS files cannot represent runs of " +
			"empty histories; drop the pseudo-particle or use the " +
			"binary variant")
	}

	c := &cursor{b: w.buf, order: binary.LittleEndian}
	for i := 0; i < 6; i++ {
		c.putF32(0)
	}
	c.putF32(float32(p.Weight))
	c.putI32(0)
	c.putBool(false)
	c.putBool(true)
	if _, err := w.wc.Write(w.buf); err != nil {
		return err
	}
	w.header.nParticles++
	return nil
}

func (w *topasWriter) writeBinary(p Particle) error {
	c := &cursor{b: w.buf, order: binary.LittleEndian}
	c.putF32(float32(p.X / units.Cm))
	c.putF32(float32(p.Y / units.Cm))
	c.putF32(float32(p.Z / units.Cm))
	c.putF32(float32(p.U))
	c.putF32(float32(p.V))
	c.putF32(float32(p.E / units.MeV))
	c.putF32(float32(p.Weight))
	c.putI32(p.Type.PDG())
	c.putBool(p.W < 0)
	c.putBool(p.NewHistory)
	_, err := w.wc.Write(w.buf)
	return err
}

func (w *topasWriter) writeLimited(p Particle) error {
	code, ok := iaeaTypeCode(p.Type)
	if !ok {
		return fmt.Errorf("limited TOPAS files can only hold photons, "+
			"electrons, positrons, neutrons, and protons, not %ss",
			p.Type)
	}
	if p.W < 0 {
		code = -code
	}
	energy := p.E / units.MeV
	if p.NewHistory {
		energy = -energy
	}

	c := &cursor{b: w.buf, order: binary.LittleEndian}
	c.putI8(code)
	c.putF32(float32(energy))
	c.putF32(float32(p.X / units.Cm))
	c.putF32(float32(p.Y / units.Cm))
	c.putF32(float32(p.Z / units.Cm))
	c.putF32(float32(p.U))
	c.putF32(float32(p.V))
	c.putF32(float32(p.Weight))
	_, err := w.wc.Write(w.buf)
	return err
}

func (w *topasWriter) writeASCII(p Particle) error {
	wNeg, newHist := 0, 0
	if p.W < 0 {
		wNeg = 1
	}
	if p.NewHistory {
		newHist = 1
	}
	line := fmt.Sprintf(
		"%12s %12s %12s %12s %12s %12s %12s %12d %2d %2d\n",
		topasFloat(p.X/units.Cm), topasFloat(p.Y/units.Cm),
		topasFloat(p.Z/units.Cm), topasFloat(p.U), topasFloat(p.V),
		topasFloat(p.E/units.MeV), topasFloat(p.Weight),
		p.Type.PDG(), wNeg, newHist)
	_, err := io.WriteString(w.wc, line)
	return err
}

func (w *topasWriter) Close() error {
	if w.state.closed {
		return nil
	}
	w.state.closed = true

	if err := w.wc.Close(); err != nil {
		return err
	}

	if !w.manualHistories ||
		w.state.histories > w.header.origHistories {
		w.header.origHistories = w.state.histories
	}
	w.header.representedHistories = w.represented
	return w.header.write()
}
