package pak

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"
)

// archiveFile is one entry fed to writeArchive. Paths are raw cp1252
// bytes exactly as they appear in the table of contents.
type archiveFile struct {
	path   string
	data   []byte
	method uint8
}

func compressPayload(t *testing.T, data []byte, method uint8) []byte {
	t.Helper()
	switch method {
	case MethodZlib:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			t.Fatalf("zlib write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("zlib close: %v", err)
		}
		return buf.Bytes()
	case MethodLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			t.Fatalf("lz4 compress: %v", err)
		}
		if n == 0 {
			t.Fatalf("lz4 rejected %d bytes as incompressible", len(data))
		}
		return dst[:n]
	default:
		return data
	}
}

// writeArchive builds an EPK1 archive on disk and returns its path.
func writeArchive(t *testing.T, files []archiveFile) string {
	t.Helper()

	const headerSize = 16

	var payload bytes.Buffer
	var table bytes.Buffer
	for _, f := range files {
		compressed := compressPayload(t, f.data, f.method)
		offset := uint32(headerSize + payload.Len())
		payload.Write(compressed)

		raw := []byte(f.path)
		binary.Write(&table, binary.LittleEndian, uint16(len(raw)))
		table.Write(raw)
		binary.Write(&table, binary.LittleEndian, offset)
		binary.Write(&table, binary.LittleEndian, uint32(len(compressed)))
		binary.Write(&table, binary.LittleEndian, uint32(len(f.data)))
		table.WriteByte(f.method)
	}

	var buf bytes.Buffer
	buf.WriteString("EPK1")
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(len(files)))
	binary.Write(&buf, binary.LittleEndian, uint32(headerSize+payload.Len()))
	buf.Write(payload.Bytes())
	buf.Write(table.Bytes())

	path := filepath.Join(t.TempDir(), "test.pak")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}
	return path
}

func testFiles() []archiveFile {
	return []archiveFile{
		{path: `Assets\Models\Rock.xob`, data: []byte("stored payload"), method: MethodStore},
		{path: `Assets\Models\Tree.xob`, data: bytes.Repeat([]byte("zlib body "), 50), method: MethodZlib},
		{path: "Caf\xe9\\Mesh.xob", data: bytes.Repeat([]byte("lz4 block "), 50), method: MethodLZ4},
	}
}

func TestOpen(t *testing.T) {
	path := writeArchive(t, testFiles())

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	if archive.Version() != 1 {
		t.Errorf("Version = %d, want 1", archive.Version())
	}
	if archive.EntryCount() != 3 {
		t.Errorf("EntryCount = %d, want 3", archive.EntryCount())
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.pak")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestOpen_InvalidMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pak")
	if err := os.WriteFile(path, []byte("NOPE\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Open(path)
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestOpen_UnsupportedVersion(t *testing.T) {
	path := writeArchive(t, testFiles())
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(raw[4:], 2)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Open(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported EPK version") {
		t.Fatalf("expected version error, got %v", err)
	}
}

func TestOpen_TruncatedTable(t *testing.T) {
	path := writeArchive(t, testFiles()[:1])
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Claim more entries than the table holds. Open keeps what it can parse.
	binary.LittleEndian.PutUint32(raw[8:], 5)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	if archive.EntryCount() != 1 {
		t.Errorf("EntryCount = %d, want 1", archive.EntryCount())
	}
}

func TestList(t *testing.T) {
	path := writeArchive(t, testFiles())

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	want := map[string]bool{
		"assets/models/rock.xob": false,
		"assets/models/tree.xob": false,
		"café/mesh.xob":          false,
	}
	for _, p := range archive.List() {
		if _, ok := want[p]; !ok {
			t.Errorf("unexpected entry %q", p)
			continue
		}
		want[p] = true
	}
	for p, seen := range want {
		if !seen {
			t.Errorf("missing entry %q", p)
		}
	}
}

func TestContains(t *testing.T) {
	path := writeArchive(t, testFiles())

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	// Lookups normalize case and separators.
	if !archive.Contains("assets/models/rock.xob") {
		t.Error("Contains returned false for existing entry")
	}
	if !archive.Contains(`Assets\Models\ROCK.XOB`) {
		t.Error("Contains should normalize case and backslashes")
	}
	if archive.Contains("nonexistent/file.xob") {
		t.Error("Contains returned true for missing entry")
	}
}

func TestStat(t *testing.T) {
	files := testFiles()
	path := writeArchive(t, files)

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	entry, ok := archive.Stat("assets/models/tree.xob")
	if !ok {
		t.Fatal("Stat returned false for existing entry")
	}
	if entry.Method != MethodZlib {
		t.Errorf("Method = %d, want %d", entry.Method, MethodZlib)
	}
	if entry.UncompressedSize != uint32(len(files[1].data)) {
		t.Errorf("UncompressedSize = %d, want %d", entry.UncompressedSize, len(files[1].data))
	}
	if entry.CompressedSize >= entry.UncompressedSize {
		t.Errorf("zlib entry did not shrink: %d >= %d", entry.CompressedSize, entry.UncompressedSize)
	}

	if _, ok := archive.Stat("missing.xob"); ok {
		t.Error("Stat returned true for missing entry")
	}
}

func TestRead(t *testing.T) {
	files := testFiles()
	path := writeArchive(t, files)

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	tests := []struct {
		name string
		path string
		want []byte
	}{
		{"store", "assets/models/rock.xob", files[0].data},
		{"zlib", "assets/models/tree.xob", files[1].data},
		{"lz4", "café/mesh.xob", files[2].data},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := archive.Read(tt.path)
			if err != nil {
				t.Fatalf("failed to read entry: %v", err)
			}
			if !bytes.Equal(data, tt.want) {
				t.Errorf("content mismatch: got %d bytes, want %d", len(data), len(tt.want))
			}
		})
	}
}

func TestRead_NotFound(t *testing.T) {
	path := writeArchive(t, testFiles())

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	_, err = archive.Read("no/such/entry.xob")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRead_UnknownMethod(t *testing.T) {
	path := writeArchive(t, []archiveFile{
		{path: "weird.bin", data: []byte("opaque"), method: 7},
	})

	archive, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer archive.Close()

	_, err = archive.Read("weird.bin")
	if err == nil || !strings.Contains(err.Error(), "unsupported compression method") {
		t.Fatalf("expected method error, got %v", err)
	}
}
