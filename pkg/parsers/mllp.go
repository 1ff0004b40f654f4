package parsers

import "bytes"

// MLLP frame characters
const (
	StartBlock     = 0x0B
	EndBlock       = 0x1C
	CarriageReturn = 0x0D
)

// WrapMLLP adds the MLLP envelope to a message unless it already has one.
func WrapMLLP(message []byte) []byte {
	if len(message) == 0 || message[0] == StartBlock {
		return message
	}
	framed := make([]byte, 0, len(message)+3)
	framed = append(framed, StartBlock)
	framed = append(framed, message...)
	return append(framed, EndBlock, CarriageReturn)
}

// UnwrapMLLP removes the MLLP envelope from a message, if present.
func UnwrapMLLP(message []byte) []byte {
	message = bytes.TrimPrefix(message, []byte{StartBlock})
	message = bytes.TrimSuffix(message, []byte{EndBlock, CarriageReturn})
	return bytes.TrimSuffix(message, []byte{EndBlock})
}
