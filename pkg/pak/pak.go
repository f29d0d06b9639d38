// Package pak provides reading functionality for Enfusion EPK1 archives.
package pak

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/Cyrex0/enfusion-unpacker/pkg/encoding"
)

const pakMagic = "EPK1"

// Compression methods used by table entries.
const (
	MethodStore uint8 = 0
	MethodZlib  uint8 = 1
	MethodLZ4   uint8 = 2
)

// Archive framing errors.
var (
	ErrInvalidMagic = errors.New("pak: invalid magic, expected 'EPK1'")
	ErrNotFound     = errors.New("pak: entry not found")
)

// Archive represents an opened EPK1 archive.
type Archive struct {
	file    *os.File
	header  Header
	entries map[string]*Entry
}

// Header contains the fixed-size EPK1 file header.
type Header struct {
	Magic       [4]byte
	Version     uint32
	EntryCount  uint32
	TableOffset uint32
}

// Entry describes one file in the archive table of contents. Offsets
// are absolute file positions.
type Entry struct {
	Path             string // normalized: forward slashes, lowercase
	Offset           uint32
	CompressedSize   uint32
	UncompressedSize uint32
	Method           uint8
}

// Open opens an EPK1 archive for reading.
func Open(path string) (*Archive, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	archive := &Archive{
		file:    file,
		entries: make(map[string]*Entry),
	}

	if err := archive.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if err := archive.readFileTable(); err != nil {
		file.Close()
		return nil, fmt.Errorf("reading file table: %w", err)
	}

	return archive, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.file != nil {
		return a.file.Close()
	}
	return nil
}

// Version returns the archive format version.
func (a *Archive) Version() uint32 { return a.header.Version }

// EntryCount returns the number of entries read from the table.
func (a *Archive) EntryCount() int { return len(a.entries) }

func (a *Archive) readHeader() error {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Read(a.file, binary.LittleEndian, &a.header); err != nil {
		return err
	}
	if string(a.header.Magic[:]) != pakMagic {
		return ErrInvalidMagic
	}
	if a.header.Version != 1 {
		return fmt.Errorf("unsupported EPK version: %d", a.header.Version)
	}
	return nil
}

func (a *Archive) readFileTable() error {
	if _, err := a.file.Seek(int64(a.header.TableOffset), io.SeekStart); err != nil {
		return err
	}
	tableData, err := io.ReadAll(a.file)
	if err != nil {
		return err
	}

	offset := 0
	for i := uint32(0); i < a.header.EntryCount; i++ {
		if offset+2 > len(tableData) {
			break
		}
		pathLen := int(binary.LittleEndian.Uint16(tableData[offset:]))
		offset += 2
		if offset+pathLen+13 > len(tableData) {
			break
		}
		rawPath := tableData[offset : offset+pathLen]
		offset += pathLen

		entry := &Entry{
			Path:             encoding.NormalizeArchivePath(encoding.Windows1252ToUTF8(rawPath)),
			Offset:           binary.LittleEndian.Uint32(tableData[offset:]),
			CompressedSize:   binary.LittleEndian.Uint32(tableData[offset+4:]),
			UncompressedSize: binary.LittleEndian.Uint32(tableData[offset+8:]),
			Method:           tableData[offset+12],
		}
		offset += 13
		a.entries[entry.Path] = entry
	}
	return nil
}

// List returns all entry paths in the archive.
func (a *Archive) List() []string {
	result := make([]string, 0, len(a.entries))
	for path := range a.entries {
		result = append(result, path)
	}
	return result
}

// Contains checks whether an entry exists.
func (a *Archive) Contains(path string) bool {
	_, ok := a.entries[encoding.NormalizeArchivePath(path)]
	return ok
}

// Stat returns the table entry for path.
func (a *Archive) Stat(path string) (Entry, bool) {
	entry, ok := a.entries[encoding.NormalizeArchivePath(path)]
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Read reads one entry and decompresses it according to its method.
func (a *Archive) Read(path string) ([]byte, error) {
	entry, ok := a.entries[encoding.NormalizeArchivePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	if _, err := a.file.Seek(int64(entry.Offset), io.SeekStart); err != nil {
		return nil, err
	}
	compressed := make([]byte, entry.CompressedSize)
	if _, err := io.ReadFull(a.file, compressed); err != nil {
		return nil, fmt.Errorf("reading entry %s: %w", path, err)
	}

	switch entry.Method {
	case MethodStore:
		return compressed, nil
	case MethodZlib:
		reader, err := zlib.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", path, err)
		}
		defer reader.Close()
		result := make([]byte, entry.UncompressedSize)
		if _, err := io.ReadFull(reader, result); err != nil {
			return nil, fmt.Errorf("decompressing entry %s: %w", path, err)
		}
		return result, nil
	case MethodLZ4:
		result := make([]byte, entry.UncompressedSize)
		n, err := lz4.UncompressBlock(compressed, result)
		if err != nil {
			return nil, fmt.Errorf("decompressing entry %s: %w", path, err)
		}
		return result[:n], nil
	default:
		return nil, fmt.Errorf("entry %s: unsupported compression method %d", path, entry.Method)
	}
}
