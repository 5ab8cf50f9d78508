// Package artifact loads the binary artifacts of installed packages.
//
// Each installed package carries zero or more lib/<platform>/ groups of
// binaries. The extractor picks the group nearest the host platform and
// loads each file into memory, validating the PE signature up front.
// Exported symbol names are parsed lazily on first request.
package artifact

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quantlab/pkgref/pkg/errors"
	"github.com/quantlab/pkgref/pkg/pkgid"
)

// Info is one loaded binary artifact. The image stays in memory for the
// process lifetime; there is no unload.
type Info struct {
	// Name is the artifact's simple name, the file name without extension.
	Name string

	// Path is where the binary was loaded from.
	Path string

	// Identity is the package the artifact came from. Baseline artifacts
	// injected at startup carry a zero identity.
	Identity pkgid.Identity

	// Image is the raw binary contents.
	Image []byte

	symOnce sync.Once
	symbols []string
}

// Load reads and validates a binary artifact from disk.
func Load(path string, owner pkgid.Identity) (*Info, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArtifactLoad, err, "cannot read artifact %s", path)
	}
	if err := checkImage(image); err != nil {
		return nil, errors.Wrap(errors.ErrCodeArtifactLoad, err, "artifact %s is not a valid binary", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Info{Name: name, Path: path, Identity: owner, Image: image}, nil
}

// Symbols returns the names in the artifact's symbol table, parsed on
// first call. A binary with no table, or one the parser rejects, yields
// an empty list.
func (a *Info) Symbols() []string {
	a.symOnce.Do(func() {
		f, err := pe.NewFile(bytes.NewReader(a.Image))
		if err != nil {
			return
		}
		defer f.Close()
		for _, sym := range f.Symbols {
			a.symbols = append(a.symbols, sym.Name)
		}
	})
	return a.symbols
}

const dosHeaderSize = 0x40

// checkImage verifies the MZ magic and the PE signature the DOS header
// points at. Full header parsing is deferred to Symbols.
func checkImage(image []byte) error {
	if len(image) < dosHeaderSize {
		return errors.New(errors.ErrCodeArtifactLoad, "image truncated at %d bytes", len(image))
	}
	if image[0] != 'M' || image[1] != 'Z' {
		return errors.New(errors.ErrCodeArtifactLoad, "missing MZ magic")
	}
	offset := binary.LittleEndian.Uint32(image[0x3C:])
	if int64(offset)+4 > int64(len(image)) {
		return errors.New(errors.ErrCodeArtifactLoad, "PE header offset out of range")
	}
	if !bytes.Equal(image[offset:offset+4], []byte("PE\x00\x00")) {
		return errors.New(errors.ErrCodeArtifactLoad, "missing PE signature")
	}
	return nil
}
