package phsio

import (
	"errors"
	"fmt"
	"io"
	"math"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/riofs"
	"go-hep.org/x/hep/groot/rtree"

	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/units"
)

// The ROOT phase space format: a TTree inside a ROOT container file, one
// entry per particle. There is no single agreed-on branch layout, so the
// codec ships two schema presets:
//
//	topas     tree "ROOTOutput"; positions in cm; the third direction
//	          cosine is not stored, only its sign flag; the Event_ID
//	          branch carries a running history number, so gaps in it
//	          encode empty histories
//	opengate  tree "PhaseSpaceData"; positions in mm; all three
//	          direction cosines stored; no history bookkeeping at all
//
// Config keys: "schema" (topas or opengate, default topas) and "tree"
// (overrides the preset's tree name).
//
// Pseudo-particle markers are not written as entries. Under the topas
// schema they advance the Event_ID counter, which is how the format
// records empty histories; under the opengate schema the history count
// they carry cannot be represented and is dropped.
//
// Compressed paths are rejected in both directions: a ROOT container
// manages its own compression internally and must be seekable.
//
// Fixed-values policy: declared constants are ignored; every branch is
// filled for every entry.

type rootSchema struct {
	name string
	tree string

	energy, weight   string
	posX, posY, posZ string
	dirX, dirY, dirZ string
	wNegFlag         string
	pdgCode          string
	newHistory       string
	historyNumber    string

	posUnit    float64
	energyUnit float64
}

var rootTOPASSchema = &rootSchema{
	name: "topas",
	tree: "ROOTOutput",

	energy: "Energy__MeV_",
	weight: "Weight",
	posX:   "Position_X__cm_",
	posY:   "Position_Y__cm_",
	posZ:   "Position_Z__cm_",
	dirX:   "Direction_Cosine_X",
	dirY:   "Direction_Cosine_Y",
	wNegFlag: "Flag_to_tell_if_Third_Direction_Cosine_is_Negative" +
		"__1_means_true_",
	pdgCode: "Particle_Type__in_PDG_Format_",
	newHistory: "Flag_to_tell_if_this_is_the_First_Scored_Particle_" +
		"from_this_History__1_means_true_",
	historyNumber: "Event_ID",

	posUnit:    units.Cm,
	energyUnit: units.MeV,
}

var rootOpenGATESchema = &rootSchema{
	name: "opengate",
	tree: "PhaseSpaceData",

	energy:  "KineticEnergy",
	weight:  "Weight",
	posX:    "PrePositionLocal_X",
	posY:    "PrePositionLocal_Y",
	posZ:    "PrePositionLocal_Z",
	dirX:    "PreDirectionLocal_X",
	dirY:    "PreDirectionLocal_Y",
	dirZ:    "PreDirectionLocal_Z",
	pdgCode: "PDGCode",

	posUnit:    units.Mm,
	energyUnit: units.MeV,
}

func rootSchemaFor(cfg Config) (*rootSchema, error) {
	var s *rootSchema
	switch name := cfg.Get("schema", "topas"); name {
	case "topas":
		s = rootTOPASSchema
	case "opengate":
		s = rootOpenGATESchema
	default:
		return nil, &e.InvalidConfiguration{Option: "schema",
			Reason: fmt.Sprintf("'%s' is not a ROOT schema preset; use "+
				"topas or opengate", name)}
	}
	if tree := cfg.Get("tree", ""); tree != "" {
		// Copy so the preset itself stays untouched.
		override := *s
		override.tree = tree
		s = &override
	}
	return s, nil
}

func rootRejectCompression(path string) error {
	if _, suffix := CompressionSuffix(path); suffix != "" {
		return &e.InvalidConfiguration{Option: suffix,
			Reason: "ROOT containers are seekable and internally " +
				"compressed; an outer compression layer cannot be " +
				"supported"}
	}
	return nil
}

func newROOTFormat() *Format {
	f := &Format{
		Name:        "ROOT",
		Extension:   ".root",
		Description: "ROOT TTree phase space (TOPAS or OpenGATE schema)",
		extensions:  []string{".root"},
		sniff: func(path string, head []byte) bool {
			return len(head) >= 4 && string(head[:4]) == "root"
		},
	}
	f.open = func(path string, cfg Config) (Reader, error) {
		return openROOT(f, path, cfg)
	}
	f.create = func(path string, cfg Config, fixed FixedValues) (Writer, error) {
		return createROOT(f, path, cfg, fixed)
	}
	return f
}

// rootVars is the bind target for one tree entry. Branches the file does
// not have keep their defaults: weight 1 and every entry a new history,
// matching what producers that omit those branches mean by omitting them.
type rootVars struct {
	energy, weight   float64
	x, y, z          float64
	u, v, w          float64
	wNeg             bool
	pdgCode          int32
	newHistory       bool
	historyNumber    int32
	hasW, hasNewHist bool
	hasHistoryNumber bool
}

// errRootStop aborts the tree-walking callback when the reader is closed
// before the stream is exhausted.
var errRootStop = errors.New("stop")

type rootRec struct {
	p   Particle
	err error
}

type rootReader struct {
	state  readerState
	format *Format
	schema *rootSchema

	entries int64

	f    *riofs.File
	ch   chan rootRec
	stop chan struct{}
}

var _ Reader = &rootReader{}

func openROOT(f *Format, path string, cfg Config) (Reader, error) {
	if err := rootRejectCompression(path); err != nil {
		return nil, err
	}
	schema, err := rootSchemaFor(cfg)
	if err != nil {
		return nil, err
	}

	r := &rootReader{
		state:  readerState{path: path},
		format: f,
		schema: schema,
	}
	if err := r.startPump(); err != nil {
		return nil, err
	}
	return r, nil
}

// startPump opens the container and launches a goroutine that walks the
// tree, converting entries and feeding them through r.ch. The groot tree
// API is callback-driven; the pump adapts it to the pull-driven Next.
func (r *rootReader) startPump() error {
	f, err := groot.Open(r.state.path)
	if err != nil {
		return &e.MalformedHeader{Path: r.state.path, Err: err}
	}

	obj, err := f.Get(r.schema.tree)
	if err != nil {
		f.Close()
		return &e.MalformedHeader{Path: r.state.path,
			Err: fmt.Errorf("the file has no TTree named '%s': %w",
				r.schema.tree, err)}
	}
	t, ok := obj.(rtree.Tree)
	if !ok {
		f.Close()
		return &e.MalformedHeader{Path: r.state.path,
			Err: fmt.Errorf("the object '%s' is not a TTree",
				r.schema.tree)}
	}

	vars := &rootVars{weight: 1, newHistory: true}
	rvars := []rtree.ReadVar{
		{Name: r.schema.energy, Value: &vars.energy},
		{Name: r.schema.posX, Value: &vars.x},
		{Name: r.schema.posY, Value: &vars.y},
		{Name: r.schema.posZ, Value: &vars.z},
		{Name: r.schema.dirX, Value: &vars.u},
		{Name: r.schema.dirY, Value: &vars.v},
		{Name: r.schema.pdgCode, Value: &vars.pdgCode},
	}
	for _, required := range rvars {
		if t.Branch(required.Name) == nil {
			f.Close()
			return &e.MalformedHeader{Path: r.state.path,
				Err: fmt.Errorf("the tree '%s' has no branch named "+
					"'%s'", r.schema.tree, required.Name)}
		}
	}

	optional := func(name string, value interface{}, has *bool) {
		if name != "" && t.Branch(name) != nil {
			rvars = append(rvars, rtree.ReadVar{Name: name, Value: value})
			*has = true
		}
	}
	optional(r.schema.weight, &vars.weight, new(bool))
	optional(r.schema.dirZ, &vars.w, &vars.hasW)
	optional(r.schema.wNegFlag, &vars.wNeg, new(bool))
	optional(r.schema.newHistory, &vars.newHistory, &vars.hasNewHist)
	optional(r.schema.historyNumber, &vars.historyNumber,
		&vars.hasHistoryNumber)

	tr, err := rtree.NewReader(t, rvars)
	if err != nil {
		f.Close()
		return &e.MalformedHeader{Path: r.state.path, Err: err}
	}

	r.f = f
	r.entries = t.Entries()
	r.ch = make(chan rootRec, 64)
	r.stop = make(chan struct{})

	ch, stop := r.ch, r.stop
	schema := r.schema
	go func() {
		defer close(ch)
		defer tr.Close()

		lastHistory := int32(-1)
		err := tr.Read(func(ctx rtree.RCtx) error {
			p, perr := rootConvert(schema, vars, &lastHistory)
			if perr != nil {
				perr = &e.DecodeError{Path: r.state.path,
					Offset: ctx.Entry, Err: perr}
				select {
				case ch <- rootRec{err: perr}:
				case <-stop:
				}
				return errRootStop
			}
			select {
			case ch <- rootRec{p: p}:
				return nil
			case <-stop:
				return errRootStop
			}
		})
		if err != nil && !errors.Is(err, errRootStop) {
			select {
			case ch <- rootRec{err: err}:
			case <-stop:
			}
		}
	}()
	return nil
}

// rootConvert turns one bound entry into a Particle. lastHistory carries
// the previous entry's history number so that jumps in it become
// IncrementalHistories values.
func rootConvert(s *rootSchema, vars *rootVars, lastHistory *int32) (Particle, error) {
	typ, err := pdg.FromPDG(vars.pdgCode)
	if err != nil || typ == pdg.PseudoParticle {
		return Particle{}, fmt.Errorf("the PDG branch holds the "+
			"unsupported code %d", vars.pdgCode)
	}

	w := vars.w
	if !vars.hasW {
		w = thirdCosine(vars.u, vars.v)
		if vars.wNeg {
			w = -w
		}
	}

	p := Particle{
		Type: typ, E: vars.energy * s.energyUnit,
		X: vars.x * s.posUnit, Y: vars.y * s.posUnit,
		Z: vars.z * s.posUnit,
		U: vars.u, V: vars.v, W: w,
		Weight:     vars.weight,
		NewHistory: vars.newHistory,
	}
	if vars.hasHistoryNumber {
		dn := vars.historyNumber - *lastHistory
		*lastHistory = vars.historyNumber
		if dn > 0 {
			p.NewHistory = true
			p.SetInt(IncrementalHistories, dn)
		} else if !vars.hasNewHist {
			p.NewHistory = false
		}
	}
	return p, nil
}

func (r *rootReader) Format() *Format { return r.format }

func (r *rootReader) Next() (Particle, error) {
	if err := r.state.start("Next"); err != nil {
		return Particle{}, err
	}
	if r.state.eof {
		return Particle{}, io.EOF
	}

	rec, ok := <-r.ch
	if !ok {
		r.state.eof = true
		return Particle{}, io.EOF
	}
	if rec.err != nil {
		return Particle{}, rec.err
	}

	r.state.note(&rec.p)
	return rec.p, nil
}

func (r *rootReader) ParticleCount() (int64, bool) {
	return r.entries, true
}

func (r *rootReader) HistoryCount() (int64, bool) { return 0, false }

func (r *rootReader) ParticlesRead() int64 { return r.state.read }
func (r *rootReader) HistoriesRead() int64 { return r.state.histories }

func (r *rootReader) Rewind() error {
	if err := r.state.start("Rewind"); err != nil {
		return err
	}
	if err := r.shutdown(); err != nil {
		return err
	}
	if err := r.startPump(); err != nil {
		return err
	}
	r.state.eof = false
	r.state.read, r.state.histories = 0, 0
	return nil
}

// shutdown stops the pump goroutine and releases the container file.
func (r *rootReader) shutdown() error {
	close(r.stop)
	for range r.ch {
	}
	return r.f.Close()
}

func (r *rootReader) Close() error {
	if r.state.closed {
		return nil
	}
	r.state.closed = true
	return r.shutdown()
}

type rootWriter struct {
	state  writerState
	format *Format
	schema *rootSchema

	f  *riofs.File
	tw rtree.Writer

	vars rootVars
	// eventID mirrors the running Event_ID counter of the topas schema.
	eventID int32
}

var _ Writer = &rootWriter{}

func createROOT(f *Format, path string, cfg Config, fixed FixedValues) (Writer, error) {
	if err := rootRejectCompression(path); err != nil {
		return nil, err
	}
	schema, err := rootSchemaFor(cfg)
	if err != nil {
		return nil, err
	}

	out, err := groot.Create(path)
	if err != nil {
		return nil, err
	}

	w := &rootWriter{
		state:   writerState{path: path, max: math.MaxInt64},
		format:  f,
		schema:  schema,
		f:       out,
		eventID: -1,
	}

	wvars := []rtree.WriteVar{
		{Name: schema.posX, Value: &w.vars.x},
		{Name: schema.posY, Value: &w.vars.y},
		{Name: schema.posZ, Value: &w.vars.z},
		{Name: schema.dirX, Value: &w.vars.u},
		{Name: schema.dirY, Value: &w.vars.v},
		{Name: schema.energy, Value: &w.vars.energy},
		{Name: schema.weight, Value: &w.vars.weight},
		{Name: schema.pdgCode, Value: &w.vars.pdgCode},
	}
	if schema.dirZ != "" {
		wvars = append(wvars,
			rtree.WriteVar{Name: schema.dirZ, Value: &w.vars.w})
	}
	if schema.wNegFlag != "" {
		wvars = append(wvars,
			rtree.WriteVar{Name: schema.wNegFlag, Value: &w.vars.wNeg})
	}
	if schema.newHistory != "" {
		wvars = append(wvars, rtree.WriteVar{Name: schema.newHistory,
			Value: &w.vars.newHistory})
	}
	if schema.historyNumber != "" {
		wvars = append(wvars, rtree.WriteVar{Name: schema.historyNumber,
			Value: &w.vars.historyNumber})
	}

	tw, err := rtree.NewWriter(out, schema.tree, wvars)
	if err != nil {
		out.Close()
		return nil, err
	}
	w.tw = tw
	return w, nil
}

func (w *rootWriter) Format() *Format     { return w.format }
func (w *rootWriter) MaxParticles() int64 { return w.state.max }

func (w *rootWriter) ParticlesWritten() int64 { return w.state.written }
func (w *rootWriter) HistoriesWritten() int64 { return w.state.histories }

func (w *rootWriter) Write(p Particle) error {
	if err := w.state.start("Write"); err != nil {
		return err
	}
	if err := w.state.room(); err != nil {
		return err
	}

	if p.Type == pdg.PseudoParticle {
		// Empty histories leave no entry; under the topas schema the
		// Event_ID gap records them.
		if n, ok := p.GetInt(IncrementalHistories); ok && n > 0 {
			w.eventID += n
		}
		w.state.note(&p)
		return nil
	}

	dn := int32(0)
	if p.NewHistory {
		dn = 1
	}
	if n, ok := p.GetInt(IncrementalHistories); ok {
		dn = n
	}
	w.eventID += dn

	w.vars.energy = p.E / w.schema.energyUnit
	w.vars.x = p.X / w.schema.posUnit
	w.vars.y = p.Y / w.schema.posUnit
	w.vars.z = p.Z / w.schema.posUnit
	w.vars.u, w.vars.v, w.vars.w = p.U, p.V, p.W
	w.vars.wNeg = p.W < 0
	w.vars.weight = p.Weight
	w.vars.pdgCode = p.Type.PDG()
	w.vars.newHistory = p.NewHistory
	w.vars.historyNumber = w.eventID

	if _, err := w.tw.Write(); err != nil {
		return err
	}

	w.state.note(&p)
	return nil
}

func (w *rootWriter) Close() error {
	if w.state.closed {
		return nil
	}
	w.state.closed = true

	err := w.tw.Close()
	if err2 := w.f.Close(); err == nil {
		err = err2
	}
	return err
}
