package media

import (
	"encoding/binary"
	"fmt"
)

// hostBigEndian is true when the host stores multi-byte samples big-endian.
var hostBigEndian = func() bool {
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], 0x0102)
	return b[0] == 0x01
}()

type sampleLabel struct {
	be, le string
}

var sampleLabels = map[AudioFormat]sampleLabel{
	AudioFormatU8:  {"u8", "u8"},
	AudioFormatS16: {"s16be", "s16le"},
	AudioFormatS32: {"s32be", "s32le"},
	AudioFormatF32: {"f32be", "f32le"},
	AudioFormatF64: {"f64be", "f64le"},
}

// SampleFormatLabel returns the raw-PCM format name a player needs to read
// samples of format f in host byte order. Planar formats must be converted
// to their packed equivalent by the caller.
func SampleFormatLabel(f AudioFormat) (string, error) {
	return sampleFormatLabel(f, hostBigEndian)
}

func sampleFormatLabel(f AudioFormat, bigEndian bool) (string, error) {
	l, ok := sampleLabels[f]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedSampleFormat, f.Name())
	}
	if bigEndian {
		return l.be, nil
	}
	return l.le, nil
}
