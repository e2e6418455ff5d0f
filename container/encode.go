package container

import (
	"io"
	"os"

	"github.com/wippyai/scripthost/container/internal/binary"
	scerrors "github.com/wippyai/scripthost/errors"
)

// Encode writes modules to w in container format. Modules whose payload
// Decode would reject are refused before anything is written.
func Encode(w io.Writer, modules ...Module) error {
	buf := binary.NewWriter()
	for i, m := range modules {
		size := uint64(len(m.Data))
		if size == 0 || size > MaxModuleSize {
			return scerrors.ModuleSize("", i, size, MaxModuleSize)
		}
		if m.PreloadOnly {
			buf.Byte(1)
		} else {
			buf.Byte(0)
		}
		buf.WriteU64(size)
		buf.WriteBytes(m.Data)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile encodes modules into a new file at path, replacing any existing
// file.
func WriteFile(path string, modules ...Module) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return scerrors.FileOpen(path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Encode(f, modules...)
}
