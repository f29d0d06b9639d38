package xob

import (
	"encoding/binary"
	"errors"
)

// Container framing errors.
var (
	ErrInvalidMagic = errors.New("xob: invalid magic, expected 'XOB9'")
	ErrTruncated    = errors.New("xob: truncated container data")
)

// Magic identifies an XOB9 container.
const Magic = "XOB9"

// Known chunk tags.
const (
	TagHeader    = "HEAD" // LOD descriptors, material names, submesh table
	TagLods      = "LODS" // per-LOD vertex and index streams
	TagCollision = "COLL" // collision mesh, passed through undecoded
	TagOctree    = "VOLM" // spatial octree, passed through undecoded
)

// Chunk is one tagged byte region of the container. Chunk sizes are
// stored big-endian while all payload fields are little-endian; the
// mixed endianness is part of the format.
type Chunk struct {
	Tag    string
	Offset int // payload offset within the container
	Data   []byte
}

// SplitChunks verifies the container magic and splits the remaining
// bytes into tagged chunks. A chunk whose declared size overruns the
// remaining data is clamped to what is actually present.
func SplitChunks(data []byte) ([]Chunk, error) {
	if len(data) < len(Magic) {
		return nil, ErrTruncated
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, ErrInvalidMagic
	}

	var chunks []Chunk
	off := len(Magic)
	for off+8 <= len(data) {
		tag := string(data[off : off+4])
		size := int(binary.BigEndian.Uint32(data[off+4 : off+8]))
		off += 8

		end := off + size
		if size < 0 || end < off || end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, Chunk{Tag: tag, Offset: off, Data: data[off:end]})
		off = end
	}
	return chunks, nil
}

// FindChunk returns the payload of the first chunk with the given tag.
func FindChunk(chunks []Chunk, tag string) ([]byte, bool) {
	for _, c := range chunks {
		if c.Tag == tag {
			return c.Data, true
		}
	}
	return nil, false
}
