package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the journal frame format.
const (
	// MagicByte marks the start of a frame.
	MagicByte = 0xA5

	// HeaderSize is 1 byte magic, 1 byte opcode, 4 bytes length and 4 bytes CRC32.
	HeaderSize = 10

	// OpSetBlock frames carry one msgpack encoded Edit.
	OpSetBlock = 0x01
)

var (
	// ErrInvalidMagic means the stream lost synchronization or is not a journal.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch means the frame payload is corrupted.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame means the stream ended inside a frame, usually a write
	// cut short by a crash.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnknownOp is returned for frames with an opcode this version cannot apply.
	ErrUnknownOp = errors.New("unknown frame opcode")
)

// FrameWriter writes binary frames to an io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter wraps w. It should be buffered so header and payload reach
// the file in one write.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes one frame: [Magic(1)][Op(1)][Length(4)][CRC(4)][Payload(N)].
// Integers are little endian.
func (fw *FrameWriter) WriteFrame(op byte, payload []byte) error {
	var header [HeaderSize]byte
	header[0] = MagicByte
	header[1] = op
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	if _, err := fw.w.Write(header[:]); err != nil {
		return err
	}
	_, err := fw.w.Write(payload)
	return err
}

// ReadFrame reads and validates the next frame. It returns the opcode, the
// payload and the number of bytes consumed. io.EOF means the stream ended
// cleanly on a frame boundary.
func ReadFrame(r io.Reader) (op byte, payload []byte, n int, err error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, 0, io.EOF
		}
		return 0, nil, 0, ErrIncompleteFrame
	}
	if header[0] != MagicByte {
		return 0, nil, HeaderSize, ErrInvalidMagic
	}

	op = header[1]
	length := binary.LittleEndian.Uint32(header[2:6])
	expected := binary.LittleEndian.Uint32(header[6:10])

	payload = make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, HeaderSize, ErrIncompleteFrame
	}
	if crc32.ChecksumIEEE(payload) != expected {
		return 0, nil, HeaderSize + int(length), ErrChecksumMismatch
	}
	return op, payload, HeaderSize + int(length), nil
}
