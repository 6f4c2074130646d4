package wav

import (
	"encoding/binary"
	"io"
)

func writeHeader(w io.Writer, h Header) error {
	return binary.Write(w, binary.LittleEndian, h)
}
