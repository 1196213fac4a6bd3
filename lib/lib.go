/*package lib collects the small number of functions needed by the phsp
command line tool that don't belong to a more specific subpackage. Almost
all of the heavy lifting is done by lib/'s subpackages; external programs
will usually want lib/phsio directly.
*/
package lib

import (
	"io"

	"github.com/phasespace/phsp/lib/phsio"
)

// Version is the version of the software. This can potentially be used to
// differentiate between breaking changes to the command line interface.
var Version = "0.1.0"

// Open opens a phase space file for reading, resolving the format from the
// path and contents.
func Open(path string, opts ...phsio.Option) (phsio.Reader, error) {
	return phsio.NewReader(path, opts...)
}

// Create creates a phase space file for writing, resolving the format from
// the path.
func Create(path string, opts ...phsio.Option) (phsio.Writer, error) {
	return phsio.NewWriter(path, opts...)
}

// Copy streams every remaining particle from r to w and reports how many
// were moved. It stops at the first error, leaving w open either way.
func Copy(w phsio.Writer, r phsio.Reader) (int64, error) {
	n := int64(0)
	for {
		p, err := r.Next()
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, err
		}
		if err := w.Write(p); err != nil {
			return n, err
		}
		n++
	}
}
