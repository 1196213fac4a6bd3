// phsp is a command line tool for working with phase space files from
// radiation-transport simulations. It converts between the supported
// formats, combines and splits files along history boundaries, bins planar
// fluence images, and summarizes file contents.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/zeebo/blake3"
	"gopkg.in/gcfg.v1"

	"github.com/phasespace/phsp/lib"
	e "github.com/phasespace/phsp/lib/error"
	"github.com/phasespace/phsp/lib/format"
	"github.com/phasespace/phsp/lib/image"
	"github.com/phasespace/phsp/lib/pdg"
	"github.com/phasespace/phsp/lib/phsio"
	"github.com/phasespace/phsp/lib/stats"
	"github.com/phasespace/phsp/lib/units"
)

var cli struct {
	Config  string           `help:"Config file with convert defaults." type:"existingfile" optional:""`
	Version kong.VersionFlag `help:"Print the version and exit."`

	Convert convertCmd `cmd:"" help:"Convert a phase space file to another format."`
	Combine combineCmd `cmd:"" help:"Concatenate phase space files into one."`
	Split   splitCmd   `cmd:"" help:"Split a phase space file along history boundaries."`
	Image   imageCmd   `cmd:"" help:"Bin a planar fluence image from a phase space file."`
	Info    infoCmd    `cmd:"" help:"Summarize a phase space file."`
	Formats formatsCmd `cmd:"" help:"List the supported formats."`
}

// fileDefaults is the gcfg layout of the optional config file. Flags given
// on the command line always win over it.
type fileDefaults struct {
	Convert struct {
		InFormat  string `gcfg:"in-format"`
		OutFormat string `gcfg:"out-format"`
		FixZ      string `gcfg:"fix-z"`
	}
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("phsp"),
		kong.Description("A tool for converting, combining, splitting, "+
			"and summarizing phase space files."),
		kong.Vars{"version": lib.Version},
	)

	defaults := &fileDefaults{}
	if cli.Config != "" {
		if err := gcfg.ReadFileInto(defaults, cli.Config); err != nil {
			e.External("The config file '%s' could not be parsed: %s",
				cli.Config, err.Error())
		}
	}

	if err := ctx.Run(defaults); err != nil {
		e.External("%s", err.Error())
	}
}

// openOpts assembles reader/writer options out of the shared format and
// key=value flags.
func openOpts(name string, opt map[string]string) []phsio.Option {
	opts := []phsio.Option{}
	if name != "" {
		opts = append(opts, phsio.WithFormat(name))
	}
	if len(opt) > 0 {
		opts = append(opts, phsio.WithConfig(phsio.Config(opt)))
	}
	return opts
}

type convertCmd struct {
	In  string `arg:"" help:"Input phase space file." type:"existingfile"`
	Out string `arg:"" help:"Output phase space file."`

	InFormat  string            `help:"Input format name, when the extension is ambiguous."`
	OutFormat string            `help:"Output format name, when the extension is ambiguous."`
	InOpt     map[string]string `help:"Format-specific input options, as key=value."`
	OutOpt    map[string]string `help:"Format-specific output options, as key=value."`
	FixZ      *float64          `help:"Declare a constant scoring plane z in cm."`
}

func (c *convertCmd) Run(defaults *fileDefaults) error {
	if c.InFormat == "" {
		c.InFormat = defaults.Convert.InFormat
	}
	if c.OutFormat == "" {
		c.OutFormat = defaults.Convert.OutFormat
	}
	if c.FixZ == nil && defaults.Convert.FixZ != "" {
		z := 0.0
		if _, err := fmt.Sscanf(defaults.Convert.FixZ, "%g", &z); err != nil {
			return fmt.Errorf("the config file's fix-z value '%s' is "+
				"not a number", defaults.Convert.FixZ)
		}
		c.FixZ = &z
	}

	r, err := lib.Open(c.In, openOpts(c.InFormat, c.InOpt)...)
	if err != nil {
		return err
	}
	defer r.Close()

	wOpts := openOpts(c.OutFormat, c.OutOpt)
	if c.FixZ != nil {
		wOpts = append(wOpts, phsio.WithFixedValues(phsio.FixZ(*c.FixZ)))
	}
	w, err := lib.Create(c.Out, wOpts...)
	if err != nil {
		return err
	}

	n, err := lib.Copy(w, r)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("Converted %d particles in %d histories from %s to %s.\n",
		n, w.HistoriesWritten(), r.Format(), w.Format())
	return nil
}

type combineCmd struct {
	Out string   `arg:"" help:"Output phase space file."`
	In  []string `arg:"" help:"Input phase space files or path formats like 'run.{%d,1..512}.egsphsp1'."`

	OutFormat string            `help:"Output format name, when the extension is ambiguous."`
	OutOpt    map[string]string `help:"Format-specific output options, as key=value."`
}

func (c *combineCmd) Run(defaults *fileDefaults) error {
	inputs := []string{}
	for _, in := range c.In {
		if format.HasVars(in) {
			paths, err := format.ExpandPathFormat(in)
			if err != nil {
				return err
			}
			inputs = append(inputs, paths...)
		} else {
			inputs = append(inputs, in)
		}
	}

	w, err := lib.Create(c.Out, openOpts(c.OutFormat, c.OutOpt)...)
	if err != nil {
		return err
	}

	total := int64(0)
	for _, in := range inputs {
		r, err := lib.Open(in)
		if err != nil {
			w.Close()
			return err
		}
		n, err := lib.Copy(w, r)
		r.Close()
		if err != nil {
			w.Close()
			return fmt.Errorf("while combining '%s': %w", in, err)
		}
		total += n
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("Combined %d particles in %d histories from %d files "+
		"into %s.\n", total, w.HistoriesWritten(), len(inputs), c.Out)
	return nil
}

type splitCmd struct {
	In      string `arg:"" help:"Input phase space file." type:"existingfile"`
	Pattern string `arg:"" help:"Output path pattern containing a %d placeholder."`

	N         int               `help:"Number of output parts." default:"2"`
	OutFormat string            `help:"Output format name, when the extension is ambiguous."`
	OutOpt    map[string]string `help:"Format-specific output options, as key=value."`
}

func (c *splitCmd) Run(defaults *fileDefaults) error {
	if c.N < 1 {
		return fmt.Errorf("a split needs at least one part, not %d", c.N)
	}
	if !strings.Contains(c.Pattern, "%d") {
		return fmt.Errorf("the output pattern '%s' has no %%d "+
			"placeholder for the part number", c.Pattern)
	}

	r, err := lib.Open(c.In)
	if err != nil {
		return err
	}
	defer r.Close()

	// The part boundaries are history counts, so a counting pass runs
	// first. Formats that store a history count still need the pass: the
	// boundaries must fall between specific records.
	for {
		if _, err := r.Next(); err == io.EOF {
			break
		} else if err != nil {
			return err
		}
	}
	total := r.HistoriesRead()
	if err := r.Rewind(); err != nil {
		return err
	}

	perPart := total / int64(c.N)
	if total%int64(c.N) != 0 {
		perPart++
	}
	if perPart == 0 {
		perPart = 1
	}

	part, written := 0, int64(0)
	var w phsio.Writer
	nextPart := func() error {
		if w != nil {
			if err := w.Close(); err != nil {
				return err
			}
		}
		part++
		var err error
		w, err = lib.Create(fmt.Sprintf(c.Pattern, part),
			openOpts(c.OutFormat, c.OutOpt)...)
		return err
	}
	if err := nextPart(); err != nil {
		return err
	}

	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			w.Close()
			return err
		}

		// Parts only break where a history starts, so no history
		// straddles two files.
		if p.NewHistory && written > 0 &&
			w.HistoriesWritten() >= perPart && part < c.N {
			if err := nextPart(); err != nil {
				return err
			}
			written = 0
		}

		if err := w.Write(p); err != nil {
			w.Close()
			return err
		}
		written++
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("Split %d histories into %d parts.\n", total, part)
	return nil
}

type imageCmd struct {
	In  string `arg:"" help:"Input phase space file." type:"existingfile"`
	Out string `arg:"" help:"Output text matrix file."`

	Axis      string  `help:"Projection axis: x, y, or z." default:"z"`
	Bins      int     `help:"Bins per image side." default:"128"`
	HalfWidth float64 `help:"Image half-width in cm." default:"20"`
	Fluence   bool    `help:"Divide cells by bin area to get fluence per cm^2."`
	InFormat  string  `help:"Input format name, when the extension is ambiguous."`
}

func (c *imageCmd) Run(defaults *fileDefaults) error {
	axis, err := image.ParseAxis(c.Axis)
	if err != nil {
		return err
	}
	im, err := image.New(axis, c.Bins, image.Square(c.HalfWidth))
	if err != nil {
		return err
	}

	r, err := lib.Open(c.In, openOpts(c.InFormat, nil)...)
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := im.Accumulate(r)
	if err != nil {
		return err
	}
	if c.Fluence {
		im.Fluence()
	}

	f, err := os.Create(c.Out)
	if err != nil {
		return err
	}
	if _, err := im.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Binned %d particles (%d outside the bounds) onto a "+
		"%d x %d %s-axis image in %s.\n",
		n, im.Outside, c.Bins, c.Bins, axis, c.Out)
	return nil
}

type infoCmd struct {
	In string `arg:"" help:"Input phase space file." type:"existingfile"`

	InFormat string `help:"Input format name, when the extension is ambiguous."`
	Checksum bool   `help:"Print a BLAKE3 digest of the file contents."`
}

func (c *infoCmd) Run(defaults *fileDefaults) error {
	r, err := lib.Open(c.In, openOpts(c.InFormat, nil)...)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Printf("%s: %s\n", c.In, r.Format().Description)
	if n, ok := r.ParticleCount(); ok {
		fmt.Printf("  header particle count:  %d\n", n)
	}
	if n, ok := r.HistoryCount(); ok {
		fmt.Printf("  header history count:   %d\n", n)
	}

	acc := stats.New()
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return err
		}
		if p.Type == pdg.PseudoParticle {
			continue
		}
		acc.Add(p.Type, p.E/units.MeV, p.Weight,
			p.X/units.Cm, p.Y/units.Cm, p.Z/units.Cm)
	}
	fmt.Printf("  particles read:         %d\n", r.ParticlesRead())
	fmt.Printf("  histories read:         %d\n", r.HistoriesRead())

	for _, typ := range acc.Types() {
		ts := acc.ByType[typ]
		fmt.Printf("  %-9s %10d particles, E in [%g, %g] MeV, "+
			"<E> = %g MeV, weight sum %g\n",
			typ.String()+":", ts.Count, ts.MinEnergy, ts.MaxEnergy,
			ts.MeanEnergy(), ts.WeightSum)
	}
	if acc.Count() > 0 {
		fmt.Printf("  bounds: x [%g, %g], y [%g, %g], z [%g, %g] cm\n",
			acc.MinX, acc.MaxX, acc.MinY, acc.MaxY, acc.MinZ, acc.MaxZ)
	}

	if c.Checksum {
		digest, err := fileDigest(c.In)
		if err != nil {
			return err
		}
		fmt.Printf("  blake3: %s\n", digest)
	}
	return nil
}

// fileDigest hashes the raw bytes of path, compression layer included, so
// the digest identifies the file as stored.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

type formatsCmd struct{}

func (c *formatsCmd) Run(defaults *fileDefaults) error {
	for _, f := range phsio.Formats() {
		fmt.Printf("%-8s %-12s %s\n", f.Name, f.Extension, f.Description)
	}
	return nil
}
