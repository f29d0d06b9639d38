//go:build ignore

// This program generates a small test PAK file for manual testing.
// Run with: go run generate.go
package main

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"

	"github.com/pierrec/lz4/v4"
)

func main() {
	// Test files to include
	files := []struct {
		name    string
		content []byte
		method  uint8
	}{
		{`Scripts\readme.txt`, []byte("Hello, EPK!"), 0},
		{`Assets\Models\rock.xob`, bytes.Repeat([]byte("XOB9 fake mesh data "), 40), 1},
		{`Assets\Models\tree.xob`, bytes.Repeat([]byte("more fake mesh data "), 40), 2},
	}

	f, err := os.Create("test.pak")
	if err != nil {
		panic(err)
	}
	defer f.Close()

	const headerSize = 16

	type entry struct {
		name   string
		offset uint32
		csize  uint32
		usize  uint32
		method uint8
	}
	var entries []entry

	var payload bytes.Buffer
	for _, file := range files {
		var compressed []byte
		switch file.method {
		case 1:
			var buf bytes.Buffer
			w := zlib.NewWriter(&buf)
			w.Write(file.content)
			w.Close()
			compressed = buf.Bytes()
		case 2:
			dst := make([]byte, lz4.CompressBlockBound(len(file.content)))
			n, err := lz4.CompressBlock(file.content, dst)
			if err != nil || n == 0 {
				panic("lz4 compression failed")
			}
			compressed = dst[:n]
		default:
			compressed = file.content
		}

		entries = append(entries, entry{
			name:   file.name,
			offset: uint32(headerSize + payload.Len()),
			csize:  uint32(len(compressed)),
			usize:  uint32(len(file.content)),
			method: file.method,
		})
		payload.Write(compressed)
	}

	// Header
	f.WriteString("EPK1")
	binary.Write(f, binary.LittleEndian, uint32(1))
	binary.Write(f, binary.LittleEndian, uint32(len(entries)))
	binary.Write(f, binary.LittleEndian, uint32(headerSize+payload.Len()))

	// Payloads, then table of contents
	f.Write(payload.Bytes())
	for _, e := range entries {
		binary.Write(f, binary.LittleEndian, uint16(len(e.name)))
		f.WriteString(e.name)
		binary.Write(f, binary.LittleEndian, e.offset)
		binary.Write(f, binary.LittleEndian, e.csize)
		binary.Write(f, binary.LittleEndian, e.usize)
		f.Write([]byte{e.method})
	}

	println("Generated test.pak with", len(entries), "entries")
}
