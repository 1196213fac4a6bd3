package phsio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/stats"
)

// An IAEA phase space is a pair of files: a binary .IAEAphsp data file and
// an ASCII .IAEAheader companion describing its record layout. The header
// is a sequence of "$SECTION:" blocks; the ones that matter to the record
// layout are FILE_TYPE, CHECKSUM, RECORD_CONTENTS, RECORD_CONSTANT,
// RECORD_LENGTH, BYTE_ORDER, ORIG_HISTORIES, and PARTICLES. Everything
// else is free text that round-trips untouched.

// The seven potentially-stored record fields, in the order RECORD_CONTENTS
// lists them. W is special: its flag describes recoverability, not storage.
// When u and v are stored, w is recomputed from them and from the sign of
// the particle type code, and never occupies record bytes.
const (
	iaeaX = iota
	iaeaY
	iaeaZ
	iaeaU
	iaeaV
	iaeaW
	iaeaWeight
	iaeaNumFields
)

var iaeaFieldNames = [iaeaNumFields]string{
	"X", "Y", "Z", "U", "V", "W", "Weight",
}

// Extra-float type codes, as stored in RECORD_CONTENTS.
const (
	iaeaExtraFloatGeneric = 0
	iaeaExtraFloatXLast   = 1
	iaeaExtraFloatYLast   = 2
	iaeaExtraFloatZLast   = 3
)

// Extra-long type codes.
const (
	iaeaExtraLongGeneric     = 0
	iaeaExtraLongIncHistory  = 1
	iaeaExtraLongLatch       = 2
	iaeaExtraLongILB5        = 3
	iaeaExtraLongILB4        = 4
	iaeaExtraLongILB3        = 5
	iaeaExtraLongILB2        = 6
	iaeaExtraLongILB1        = 7
	iaeaNumExtraLongTypes    = 8
	iaeaNumExtraFloatTypes   = 4
)

var iaeaExtraFloatLabels = [iaeaNumExtraFloatTypes]string{
	"Generic float variable stored in the extrafloat array",
	"XLAST variable stored in the extrafloat array",
	"YLAST variable stored in the extrafloat array",
	"ZLAST variable stored in the extrafloat array",
}

var iaeaExtraLongLabels = [iaeaNumExtraLongTypes]string{
	"Generic integer variable stored in the extralong array",
	"Incremental history number stored in the extralong array",
	"LATCH EGS variable stored in the extralong array",
	"ILB5 PENELOPE variable stored in the extralong array",
	"ILB4 PENELOPE variable stored in the extralong array",
	"ILB3 PENELOPE variable stored in the extralong array",
	"ILB2 PENELOPE variable stored in the extralong array",
	"ILB1 PENELOPE variable stored in the extralong array",
}

var iaeaExtraFloatProps = [iaeaNumExtraFloatTypes]FloatProperty{
	GenericFloat, XLast, YLast, ZLast,
}

var iaeaExtraLongProps = [iaeaNumExtraLongTypes]IntProperty{
	GenericInt, IncrementalHistories, Latch, ILB5, ILB4, ILB3, ILB2, ILB1,
}

// iaeaTypeCode maps the on-file 1-byte species codes.
func iaeaTypeCode(t pdg.Type) (int8, bool) {
	switch t {
	case pdg.Photon:
		return 1, true
	case pdg.Electron:
		return 2, true
	case pdg.Positron:
		return 3, true
	case pdg.Neutron:
		return 4, true
	case pdg.Proton:
		return 5, true
	}
	return 0, false
}

func iaeaTypeFor(code int8) (pdg.Type, bool) {
	switch code {
	case 1:
		return pdg.Photon, true
	case 2:
		return pdg.Electron, true
	case 3:
		return pdg.Positron, true
	case 4:
		return pdg.Neutron, true
	case 5:
		return pdg.Proton, true
	}
	return pdg.Unsupported, false
}

func iaeaSectionNameFor(t pdg.Type) string {
	switch t {
	case pdg.Photon:
		return "PHOTONS"
	case pdg.Electron:
		return "ELECTRONS"
	case pdg.Positron:
		return "POSITRONS"
	case pdg.Neutron:
		return "NEUTRONS"
	case pdg.Proton:
		return "PROTONS"
	}
	return ""
}

type iaeaHeader struct {
	path string

	index    string
	title    string
	checksum int64

	order     binary.ByteOrder
	stored    [iaeaNumFields]bool
	constants [iaeaNumFields]float64

	extraFloats []int
	extraLongs  []int

	recordLength  int
	origHistories int64
	nParticles    int64

	acc *stats.Accumulator

	// Sections this library does not interpret, preserved verbatim so that
	// converting a file does not strip its provenance text.
	extra map[string]string
}

// IAEAHeaderPath returns the .IAEAheader companion for a data file path,
// stripping any compression suffix first.
func IAEAHeaderPath(dataPath string) string {
	base, _ := CompressionSuffix(dataPath)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[:i]
	}
	return base + ".IAEAheader"
}

// computedRecordLength is the record size implied by the stored-field flags
// and extra slots. W contributes nothing even when flagged.
func (h *iaeaHeader) computedRecordLength() int {
	n := 1 + 4 // type code + energy
	for i := 0; i < iaeaNumFields; i++ {
		if i == iaeaW {
			continue
		}
		if h.stored[i] {
			n += 4
		}
	}
	return n + 4*len(h.extraFloats) + 4*len(h.extraLongs)
}

func defaultIAEAHeader(path string) *iaeaHeader {
	h := &iaeaHeader{
		path:  path,
		index: "1000",
		title: "PHASESPACE in IAEA format",
		order: binary.LittleEndian,
		acc:   stats.New(),
		extra: map[string]string{},
	}
	for i := range h.stored {
		h.stored[i] = true
	}
	return h
}

// parseIAEAHeader reads and validates an .IAEAheader file.
func parseIAEAHeader(path string) (*iaeaHeader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sections, order, err := splitIAEASections(string(raw))
	if err != nil {
		return nil, err
	}

	h := &iaeaHeader{path: path, order: binary.LittleEndian,
		acc: stats.New(), extra: map[string]string{}}
	for i := range h.stored {
		h.stored[i] = true
	}

	if v, ok := sections["FILE_TYPE"]; ok {
		n, err := firstInt(v)
		if err != nil {
			return nil, fmt.Errorf("bad FILE_TYPE section: %v", err)
		}
		if n != 0 {
			return nil, fmt.Errorf("FILE_TYPE %d is a phase space "+
				"generator, which holds no particle records", n)
		}
	}
	if v, ok := sections["IAEA_INDEX"]; ok {
		h.index = strings.TrimSpace(v)
	}
	if v, ok := sections["TITLE"]; ok {
		h.title = strings.TrimSpace(v)
	}
	if v, ok := sections["CHECKSUM"]; ok {
		if h.checksum, err = firstInt64(v); err != nil {
			return nil, fmt.Errorf("bad CHECKSUM section: %v", err)
		}
	}
	if v, ok := sections["BYTE_ORDER"]; ok {
		code, err := firstInt(v)
		if err != nil {
			return nil, fmt.Errorf("bad BYTE_ORDER section: %v", err)
		}
		if h.order, err = byteOrderFor(code); err != nil {
			return nil, err
		}
	}
	if v, ok := sections["ORIG_HISTORIES"]; ok {
		if h.origHistories, err = firstInt64(v); err != nil {
			return nil, fmt.Errorf("bad ORIG_HISTORIES section: %v", err)
		}
	}
	if v, ok := sections["PARTICLES"]; ok {
		if h.nParticles, err = firstInt64(v); err != nil {
			return nil, fmt.Errorf("bad PARTICLES section: %v", err)
		}
	}

	v, ok := sections["RECORD_CONTENTS"]
	if !ok {
		return nil, fmt.Errorf("the header has no RECORD_CONTENTS section")
	}
	vals, err := intList(v)
	if err != nil {
		return nil, fmt.Errorf("bad RECORD_CONTENTS section: %v", err)
	}
	if len(vals) < 9 {
		return nil, fmt.Errorf("the RECORD_CONTENTS section holds %d "+
			"values, but at least 9 are needed", len(vals))
	}
	for i := 0; i < iaeaNumFields; i++ {
		h.stored[i] = vals[i] != 0
	}
	// Some producers mark W unstored even though it can be rebuilt from a
	// stored U and V. Treat it as recoverable in that case.
	if !h.stored[iaeaW] && h.stored[iaeaU] && h.stored[iaeaV] {
		h.stored[iaeaW] = true
	}
	nExtraFloats, nExtraLongs := vals[7], vals[8]
	if len(vals) < 9+nExtraFloats+nExtraLongs {
		return nil, fmt.Errorf("the RECORD_CONTENTS section declares %d "+
			"extra slots but lists %d type codes",
			nExtraFloats+nExtraLongs, len(vals)-9)
	}
	for i := 0; i < nExtraFloats; i++ {
		code := vals[9+i]
		if code < 0 || code >= iaeaNumExtraFloatTypes {
			return nil, fmt.Errorf("the extra float type code %d is not "+
				"defined", code)
		}
		h.extraFloats = append(h.extraFloats, code)
	}
	for i := 0; i < nExtraLongs; i++ {
		code := vals[9+nExtraFloats+i]
		if code < 0 || code >= iaeaNumExtraLongTypes {
			return nil, fmt.Errorf("the extra long type code %d is not "+
				"defined", code)
		}
		h.extraLongs = append(h.extraLongs, code)
	}

	if v, ok := sections["RECORD_CONSTANT"]; ok {
		consts, err := floatList(v)
		if err != nil {
			return nil, fmt.Errorf("bad RECORD_CONSTANT section: %v", err)
		}
		j := 0
		for i := 0; i < iaeaNumFields; i++ {
			if h.stored[i] {
				continue
			}
			if j >= len(consts) {
				return nil, fmt.Errorf("the RECORD_CONSTANT section holds "+
					"%d values, but %s is unstored and needs one",
					len(consts), iaeaFieldNames[i])
			}
			h.constants[i] = consts[j]
			j++
		}
	} else {
		for i := 0; i < iaeaNumFields; i++ {
			if !h.stored[i] {
				return nil, fmt.Errorf("the header stores no %s and has "+
					"no RECORD_CONSTANT section to supply it",
					iaeaFieldNames[i])
			}
		}
	}

	if v, ok := sections["RECORD_LENGTH"]; ok {
		if h.recordLength, err = firstInt(v); err != nil {
			return nil, fmt.Errorf("bad RECORD_LENGTH section: %v", err)
		}
	} else {
		h.recordLength = h.computedRecordLength()
	}
	// Some producers pad records past the declared contents, so a longer
	// RECORD_LENGTH is legal. The stream advances by the full length and
	// the padding bytes go unread.
	if want := h.computedRecordLength(); h.recordLength < want {
		return nil, fmt.Errorf("the RECORD_LENGTH section says %d bytes "+
			"per record, but the declared record contents already add "+
			"up to %d", h.recordLength, want)
	}
	if h.checksum != 0 && h.nParticles != 0 &&
		h.checksum != h.nParticles*int64(h.recordLength) {
		return nil, fmt.Errorf("the checksum %d does not equal particle "+
			"count times record length (%d * %d)", h.checksum,
			h.nParticles, h.recordLength)
	}

	for _, name := range order {
		if !iaeaKnownSection(name) {
			h.extra[name] = sections[name]
		}
	}
	return h, nil
}

func iaeaKnownSection(name string) bool {
	switch name {
	case "IAEA_INDEX", "TITLE", "FILE_TYPE", "CHECKSUM", "RECORD_CONTENTS",
		"RECORD_CONSTANT", "RECORD_LENGTH", "BYTE_ORDER", "ORIG_HISTORIES",
		"PARTICLES", "PHOTONS", "ELECTRONS", "POSITRONS", "NEUTRONS",
		"PROTONS", "STATISTICAL_INFORMATION_PARTICLES",
		"STATISTICAL_INFORMATION_GEOMETRY":
		return true
	}
	return false
}

// splitIAEASections cuts header text into named sections, returning them
// plus the order they appeared in.
func splitIAEASections(text string) (map[string]string, []string, error) {
	sections := map[string]string{}
	order := []string{}
	name := ""
	content := &strings.Builder{}

	flush := func() {
		if name != "" {
			sections[name] = strings.TrimRight(content.String(), "\n")
			order = append(order, name)
		}
		content.Reset()
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "$") {
			flush()
			name = strings.TrimSuffix(strings.TrimPrefix(trimmed, "$"), ":")
			if name == "" {
				return nil, nil, fmt.Errorf("a section marker line has " +
					"no section name")
			}
			continue
		}
		if name != "" {
			content.WriteString(line)
			content.WriteString("\n")
		}
	}
	flush()
	return sections, order, nil
}

// stripComment removes a trailing // comment from one value token line.
func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func tokensOf(section string) []string {
	out := []string{}
	for _, line := range strings.Split(section, "\n") {
		line = stripComment(line)
		if line == "" {
			continue
		}
		out = append(out, strings.Fields(line)...)
	}
	return out
}

func firstInt(section string) (int, error) {
	n, err := firstInt64(section)
	return int(n), err
}

func firstInt64(section string) (int64, error) {
	toks := tokensOf(section)
	if len(toks) == 0 {
		return 0, fmt.Errorf("the section is empty")
	}
	return strconv.ParseInt(toks[0], 10, 64)
}

func intList(section string) ([]int, error) {
	toks := tokensOf(section)
	out := make([]int, len(toks))
	for i := range toks {
		n, err := strconv.Atoi(toks[i])
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func floatList(section string) ([]float64, error) {
	toks := tokensOf(section)
	out := make([]float64, len(toks))
	for i := range toks {
		f, err := strconv.ParseFloat(toks[i], 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// write emits the header file. Counts and statistics come from the
// accumulator, so this runs during the writer's Close.
func (h *iaeaHeader) write() error {
	b := &strings.Builder{}
	section := func(name, body string) {
		fmt.Fprintf(b, "$%s:\n%s\n\n", name, body)
	}

	section("IAEA_INDEX", h.index)
	section("TITLE", h.title)
	section("FILE_TYPE", "0")
	section("CHECKSUM", strconv.FormatInt(h.checksum, 10))

	rc := &strings.Builder{}
	for i := 0; i < iaeaNumFields; i++ {
		flag := 0
		if h.stored[i] {
			flag = 1
		}
		fmt.Fprintf(rc, "    %d     // %s is stored ?\n", flag,
			iaeaFieldNames[i])
	}
	fmt.Fprintf(rc, "    %d     // Extra floats stored ?\n",
		len(h.extraFloats))
	fmt.Fprintf(rc, "    %d     // Extra longs stored ?\n",
		len(h.extraLongs))
	for i, code := range h.extraFloats {
		fmt.Fprintf(rc, "    %d     // %s [ %d] \n", code,
			iaeaExtraFloatLabels[code], i)
	}
	for i, code := range h.extraLongs {
		fmt.Fprintf(rc, "    %d     // %s [ %d] \n", code,
			iaeaExtraLongLabels[code], i)
	}
	section("RECORD_CONTENTS", strings.TrimRight(rc.String(), "\n"))

	cs := &strings.Builder{}
	for i := 0; i < iaeaNumFields; i++ {
		if h.stored[i] {
			continue
		}
		fmt.Fprintf(cs, "   %8.4f     // Constant %s\n", h.constants[i],
			iaeaFieldNames[i])
	}
	section("RECORD_CONSTANT", strings.TrimRight(cs.String(), "\n"))

	section("RECORD_LENGTH", strconv.Itoa(h.recordLength))
	code := 1234
	if h.order == binary.BigEndian {
		code = 4321
	}
	section("BYTE_ORDER", strconv.Itoa(code))
	section("ORIG_HISTORIES", strconv.FormatInt(h.origHistories, 10))
	section("PARTICLES", strconv.FormatInt(h.nParticles, 10))

	for _, t := range h.acc.Types() {
		if name := iaeaSectionNameFor(t); name != "" {
			section(name, strconv.FormatInt(h.acc.CountOf(t), 10))
		}
	}

	st := &strings.Builder{}
	for _, t := range h.acc.Types() {
		name := iaeaSectionNameFor(t)
		if name == "" {
			continue
		}
		ts := h.acc.ByType[t]
		fmt.Fprintf(st, "  %15.6g %10.4g %10.4g %10.4g    %10.4g  %10.4g   %s\n",
			ts.WeightSum, ts.MinWeight, ts.MaxWeight, ts.MeanEnergy(),
			ts.MinEnergy, ts.MaxEnergy, name)
	}
	st.WriteString("//        Weight        Wmin       Wmax       <E>" +
		"         Emin         Emax    Particle")
	section("STATISTICAL_INFORMATION_PARTICLES", st.String())

	if h.acc.Count() > 0 {
		g := &strings.Builder{}
		if h.stored[iaeaX] {
			fmt.Fprintf(g, "%g %g\n", h.acc.MinX, h.acc.MaxX)
		}
		if h.stored[iaeaY] {
			fmt.Fprintf(g, "%g %g\n", h.acc.MinY, h.acc.MaxY)
		}
		if h.stored[iaeaZ] {
			fmt.Fprintf(g, "%g %g\n", h.acc.MinZ, h.acc.MaxZ)
		}
		section("STATISTICAL_INFORMATION_GEOMETRY",
			strings.TrimRight(g.String(), "\n"))
	}

	names := make([]string, 0, len(h.extra))
	for name := range h.extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		section(name, h.extra[name])
	}

	return os.WriteFile(h.path, []byte(b.String()), 0666)
}
