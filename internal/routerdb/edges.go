package routerdb

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/wegman-software/osmlr-go/internal/graph"
)

const (
	// edges.bin starts with magic (8 bytes) + edge count (uint32) + padding
	headerSize = 16
	// Each edge: distance (float32) + profile (uint32) + meta (uint32)
	recordSize = 12
)

var magic = [8]byte{'O', 'S', 'M', 'L', 'R', 'D', 'B', '1'}

// EdgeFile is a graph.Network backed by a memory-mapped edge table.
// Edge data of edge id lives at offset headerSize + id*recordSize.
type EdgeFile struct {
	mu       sync.RWMutex
	file     *os.File
	data     mmap.MMap
	count    uint32
	readonly bool
}

// writeEdges writes the edge table for edges to w
func writeEdges(w io.Writer, count uint32, edge func(i uint32) (graph.EdgeData, error)) error {
	bw := bufio.NewWriterSize(w, 1<<20)

	var header [headerSize]byte
	copy(header[:8], magic[:])
	binary.LittleEndian.PutUint32(header[8:], count)
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}

	var rec [recordSize]byte
	for i := uint32(0); i < count; i++ {
		data, err := edge(i)
		if err != nil {
			return err
		}
		putRecord(rec[:], data)
		if _, err := bw.Write(rec[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// OpenEdgeFile maps an existing edge table
func OpenEdgeFile(path string, readonly bool) (*EdgeFile, error) {
	flag, prot := os.O_RDWR, mmap.RDWR
	if readonly {
		flag, prot = os.O_RDONLY, mmap.RDONLY
	}

	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open edge file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat edge file: %w", err)
	}
	if info.Size() < headerSize {
		f.Close()
		return nil, fmt.Errorf("edge file %s is truncated", path)
	}

	data, err := mmap.Map(f, prot, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap edge file: %w", err)
	}

	if !bytes.Equal(data[:8], magic[:]) {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("edge file %s has an unknown format", path)
	}
	count := binary.LittleEndian.Uint32(data[8:])
	if int64(headerSize)+int64(count)*recordSize > int64(len(data)) {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("edge file %s holds fewer than %d edges", path, count)
	}

	return &EdgeFile{
		file:     f,
		data:     data,
		count:    count,
		readonly: readonly,
	}, nil
}

func putRecord(b []byte, data graph.EdgeData) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(data.Distance))
	binary.LittleEndian.PutUint32(b[4:], data.Profile)
	binary.LittleEndian.PutUint32(b[8:], data.MetaID)
}

func readRecord(b []byte) graph.EdgeData {
	return graph.EdgeData{
		Distance: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Profile:  binary.LittleEndian.Uint32(b[4:]),
		MetaID:   binary.LittleEndian.Uint32(b[8:]),
	}
}

// Edge implements graph.Network
func (e *EdgeFile) Edge(_ context.Context, id uint32) (graph.Edge, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if id >= e.count {
		return graph.Edge{}, fmt.Errorf("%w: %d", graph.ErrEdgeNotFound, id)
	}
	offset := headerSize + int(id)*recordSize
	return graph.Edge{ID: id, Data: readRecord(e.data[offset : offset+recordSize])}, nil
}

// UpdateEdgeData implements graph.Network. Changes reach the disk on Flush
// or Close.
func (e *EdgeFile) UpdateEdgeData(_ context.Context, id uint32, data graph.EdgeData) error {
	if e.readonly {
		return &graph.ReadonlyError{Store: "Network"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if id >= e.count {
		return fmt.Errorf("%w: %d", graph.ErrEdgeNotFound, id)
	}
	offset := headerSize + int(id)*recordSize
	putRecord(e.data[offset:offset+recordSize], data)
	return nil
}

// EdgeCount implements graph.Network
func (e *EdgeFile) EdgeCount(context.Context) (uint32, error) {
	return e.count, nil
}

// IsReadonly implements graph.Network
func (e *EdgeFile) IsReadonly() bool {
	return e.readonly
}

// Flush writes modified pages to disk
func (e *EdgeFile) Flush() error {
	if e.readonly {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.data == nil {
		return nil
	}
	return e.data.Flush()
}

// Close unmaps and closes the edge file
func (e *EdgeFile) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.data == nil {
		return nil
	}
	if err := e.data.Unmap(); err != nil {
		e.file.Close()
		return err
	}
	e.data = nil
	return e.file.Close()
}
