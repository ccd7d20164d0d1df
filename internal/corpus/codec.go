// Package corpus stores the fixed permutation sets every candidate is
// scored against and implements their on-disk binary layout.
//
// Layout (little-endian, version "PERMGEN1"):
//
//	uint64 magic 0x5045524D47454E31
//	uint64 N
//	uint64 T
//	uint64 master seed
//	int32  data[T][N]
package corpus

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
)

const (
	Magic      uint64 = 0x5045524D47454E31
	HeaderSize        = 32

	// DefaultMaxBytes bounds a single dataset payload.
	DefaultMaxBytes uint64 = 8 << 30

	chunkElems = 1 << 14
)

// Limits restricts how much memory Decode may allocate.
type Limits struct {
	MaxBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxBytes: DefaultMaxBytes}
}

// Header is the fixed record preceding the payload.
type Header struct {
	Magic      uint64
	N          uint64
	Trials     uint64
	MasterSeed uint64
}

// Encode writes ds using the pinned little-endian layout.
func Encode(w io.Writer, ds *Dataset) error {
	bw := bufio.NewWriter(w)
	header := Header{Magic: Magic, N: uint64(ds.N), Trials: uint64(ds.Trials), MasterSeed: ds.MasterSeed}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	buf := make([]byte, 0, chunkElems*4)
	for start := 0; start < len(ds.data); start += chunkElems {
		end := min(start+chunkElems, len(ds.data))
		buf = buf[:0]
		for _, v := range ds.data[start:end] {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(v))
		}
		if _, err := bw.Write(buf); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}
	return bw.Flush()
}

// Decode reads a dataset and checks it declares size wantN. path is only
// used to annotate errors.
func Decode(r io.Reader, wantN int, path string, limits Limits) (*Dataset, error) {
	br := bufio.NewReader(r)
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(br, raw[:]); err != nil {
		return nil, &DataError{Size: wantN, Path: path, Reason: ReasonTruncated, Err: fmt.Errorf("read header: %w", err)}
	}
	header := Header{
		Magic:      binary.LittleEndian.Uint64(raw[0:8]),
		N:          binary.LittleEndian.Uint64(raw[8:16]),
		Trials:     binary.LittleEndian.Uint64(raw[16:24]),
		MasterSeed: binary.LittleEndian.Uint64(raw[24:32]),
	}
	if header.Magic != Magic {
		return nil, &DataError{Size: wantN, Path: path, Reason: ReasonBadMagic, Err: fmt.Errorf("magic %#x, want %#x", header.Magic, Magic)}
	}
	if header.N != uint64(wantN) {
		return nil, &DataError{Size: wantN, Path: path, Reason: ReasonSizeMismatch, Err: fmt.Errorf("header declares N=%d", header.N)}
	}

	if header.Trials == 0 {
		return nil, &DataError{Size: wantN, Path: path, Reason: ReasonEmpty, Err: errors.New("header declares zero trials")}
	}

	hi, elems := bits.Mul64(header.N, header.Trials)
	if hi != 0 || elems > math.MaxInt/4 {
		return nil, &AllocationError{Size: wantN, Trials: int(min(header.Trials, math.MaxInt32)), Path: path}
	}
	byteCount := elems * 4
	if limits.MaxBytes > 0 && byteCount > limits.MaxBytes {
		return nil, &AllocationError{Size: wantN, Trials: int(header.Trials), Bytes: byteCount, Limit: limits.MaxBytes, Path: path}
	}

	ds := &Dataset{
		N:          wantN,
		Trials:     int(header.Trials),
		MasterSeed: header.MasterSeed,
		data:       make([]int32, elems),
	}
	buf := make([]byte, chunkElems*4)
	for start := 0; start < len(ds.data); start += chunkElems {
		end := min(start+chunkElems, len(ds.data))
		chunk := buf[:(end-start)*4]
		if _, err := io.ReadFull(br, chunk); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil, &DataError{Size: wantN, Path: path, Reason: ReasonTruncated, Err: fmt.Errorf("payload ends after %d of %d values", start, len(ds.data))}
			}
			return nil, &DataError{Size: wantN, Path: path, Reason: ReasonIO, Err: err}
		}
		for i := range end - start {
			ds.data[start+i] = int32(binary.LittleEndian.Uint32(chunk[i*4:]))
		}
	}
	return ds, nil
}
