package phsio

import (
	"io"
	"path/filepath"
	"strings"

	e "github.com/phasespace/phsp/lib/error"
)

// Format describes one supported phase space format and supplies the
// constructors for its codec. Descriptors are immutable after registration.
type Format struct {
	// Name is the identifier callers use to name the format explicitly.
	// Lookup by name is case-insensitive.
	Name string
	// Extension is the canonical file extension, with the leading dot.
	Extension string
	// Description is a one-line human-readable summary.
	Description string

	// extensions lists every extension the format claims, lowercase. A
	// trailing '*' matches any run of digits, which covers the numbered
	// EGS extensions .egsphsp1, .egsphsp2, and so on.
	extensions []string
	// sniff inspects the leading bytes of the data file, and the path for
	// formats identified by a companion header file. It is nil for formats
	// with nothing recognizable to sniff.
	sniff func(path string, head []byte) bool

	open   func(path string, cfg Config) (Reader, error)
	create func(path string, cfg Config, fixed FixedValues) (Writer, error)
}

func (f *Format) String() string { return f.Name }

// matchesExt reports whether ext (lowercase, leading dot) is one of the
// format's extensions.
func (f *Format) matchesExt(ext string) bool {
	for _, pat := range f.extensions {
		if strings.HasSuffix(pat, "*") {
			stem := pat[:len(pat)-1]
			if len(ext) > len(stem) && strings.HasPrefix(ext, stem) &&
				allDigits(ext[len(stem):]) {
				return true
			}
		} else if ext == pat {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Registry maps format names, extensions, and file contents onto codecs.
// The zero Registry is empty; the package-level functions use a default
// registry holding every built-in format. Registries must be fully
// populated before use and are safe for concurrent lookup afterwards.
type Registry struct {
	formats []*Format
}

// NewRegistry returns an empty registry, mainly useful for tests that need
// a controlled format table.
func NewRegistry() *Registry { return &Registry{} }

// Register appends f to the registry. Registration order is significant:
// when several formats claim the same extension, the one registered first
// wins. That tie-break is part of the resolution contract, not an accident
// of iteration order.
func (r *Registry) Register(f *Format) {
	r.formats = append(r.formats, f)
}

// Formats returns the registered descriptors in registration order.
func (r *Registry) Formats() []*Format {
	out := make([]*Format, len(r.formats))
	copy(out, r.formats)
	return out
}

// Lookup finds a format by name, case-insensitively.
func (r *Registry) Lookup(name string) (*Format, bool) {
	for _, f := range r.formats {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	return nil, false
}

// Resolve picks the format for path. An explicit name always wins and
// fails with UnknownFormat if it names nothing. Otherwise the file
// extension is matched case-insensitively against every registered format,
// then, for reads, the file contents are sniffed. Compression suffixes are
// stripped before the extension is examined.
func (r *Registry) Resolve(path, explicit string) (*Format, error) {
	if explicit != "" {
		f, ok := r.Lookup(explicit)
		if !ok {
			return nil, &e.UnknownFormat{Path: path, Name: explicit}
		}
		return f, nil
	}

	base, _ := CompressionSuffix(path)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != "" {
		for _, f := range r.formats {
			if f.matchesExt(ext) {
				return f, nil
			}
		}
	}
	return nil, &e.UnknownFormat{Path: path}
}

// resolveRead is Resolve plus content sniffing, used when opening existing
// files. Sniffing reads a short prefix through any compression layer.
func (r *Registry) resolveRead(path, explicit string) (*Format, error) {
	f, err := r.Resolve(path, explicit)
	if err == nil {
		return f, nil
	} else if explicit != "" {
		return nil, err
	}

	head, readErr := readHead(path)
	if readErr != nil {
		return nil, err
	}
	for _, f := range r.formats {
		if f.sniff != nil && f.sniff(path, head) {
			return f, nil
		}
	}
	return nil, err
}

func readHead(path string) ([]byte, error) {
	rc, err := openStream(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	head := make([]byte, 64)
	n, err := io.ReadFull(rc, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return head[:n], nil
}

// Option configures NewReader and NewWriter.
type Option func(*openOptions)

type openOptions struct {
	format string
	cfg    Config
	fixed  FixedValues
}

// WithFormat names the format explicitly instead of relying on the file
// extension or sniffing.
func WithFormat(name string) Option {
	return func(o *openOptions) { o.format = name }
}

// WithConfig passes format-specific options through to the codec.
func WithConfig(cfg Config) Option {
	return func(o *openOptions) { o.cfg = cfg }
}

// WithFixedValues declares write-time constant fields. Ignored by readers.
func WithFixedValues(fixed FixedValues) Option {
	return func(o *openOptions) { o.fixed = fixed }
}

// NewReader opens the phase space file at path for reading.
func (r *Registry) NewReader(path string, opts ...Option) (Reader, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}

	f, err := r.resolveRead(path, o.format)
	if err != nil {
		return nil, err
	}
	return f.open(path, o.cfg)
}

// NewWriter creates the phase space file at path for writing. Resolution
// happens before the file is created, so an unknown format never leaves a
// partial file behind.
func (r *Registry) NewWriter(path string, opts ...Option) (Writer, error) {
	o := &openOptions{}
	for _, opt := range opts {
		opt(o)
	}

	f, err := r.Resolve(path, o.format)
	if err != nil {
		return nil, err
	}
	return f.create(path, o.cfg, o.fixed)
}

// std holds the built-in formats. IAEA registers first so that it wins any
// extension tie, matching the precedence existing tooling expects.
var std = func() *Registry {
	r := NewRegistry()
	r.Register(newIAEAFormat())
	r.Register(newEGSFormat())
	r.Register(newTOPASFormat())
	r.Register(newPenEasyFormat())
	r.Register(newROOTFormat())
	return r
}()

// Formats returns the built-in format descriptors.
func Formats() []*Format { return std.Formats() }

// NewReader opens path using the default registry.
func NewReader(path string, opts ...Option) (Reader, error) {
	return std.NewReader(path, opts...)
}

// NewWriter creates path using the default registry.
func NewWriter(path string, opts ...Option) (Writer, error) {
	return std.NewWriter(path, opts...)
}

// Resolve picks a format for path using the default registry.
func Resolve(path, explicit string) (*Format, error) {
	return std.Resolve(path, explicit)
}
