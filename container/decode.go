package container

import (
	"errors"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/scripthost/container/internal/binary"
	scerrors "github.com/wippyai/scripthost/errors"
)

// MaxModuleSize is the largest accepted payload, 100 MiB.
const MaxModuleSize = 100 * 1024 * 1024

// Parse decodes the container stored at path. The file is closed before
// Parse returns. On error the returned Registry holds every module decoded
// before the failing record.
func Parse(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return &Registry{}, scerrors.FileOpen(path, err)
	}
	defer f.Close()

	return decode(f, path)
}

// Decode decodes a container from r. See Parse for partial results.
func Decode(r io.Reader) (*Registry, error) {
	return decode(r, "")
}

func decode(src io.Reader, path string) (*Registry, error) {
	reg := &Registry{}
	r := binary.NewReader(src)
	log := Logger()

	for index := 0; ; index++ {
		flag, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return reg, scerrors.New(scerrors.PhaseLoad, scerrors.KindContainerFormat).
				Path(path).Module(index).Cause(err).
				Detail("read module flag").Build()
		}

		size, err := r.ReadU64()
		if err != nil {
			return reg, scerrors.New(scerrors.PhaseLoad, scerrors.KindContainerFormat).
				Path(path).Module(index).Cause(err).
				Detail("incomplete module header").Build()
		}

		log.Debug("container record",
			zap.Int("index", index),
			zap.Bool("preload", flag != 0),
			zap.Uint64("size", size))

		if size == 0 || size > MaxModuleSize {
			return reg, scerrors.ModuleSize(path, index, size, MaxModuleSize)
		}

		data, err := r.ReadBytes(size)
		if err != nil {
			return reg, scerrors.New(scerrors.PhaseLoad, scerrors.KindContainerFormat).
				Path(path).Module(index).Cause(err).
				Detail("incomplete module payload: expected %d bytes", size).Build()
		}

		reg.append(Module{PreloadOnly: flag != 0, Data: data})
	}

	log.Debug("container decoded",
		zap.String("path", path),
		zap.Int("modules", reg.Len()))
	return reg, nil
}
