package bfm

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// containerVersion is the only container revision understood by this package.
const containerVersion = 1

// Limits applied while decoding untrusted headers.
const (
	maxKeyLen = 1 << 10
	maxDims   = 8
	maxBytes  = 1 << 32
)

// DType identifies the element type of an Array.
type DType uint32

// Element types. The numeric codes are part of the file format.
const (
	DTypeByte    DType = 11
	DTypeInt8    DType = 12
	DTypeUint8   DType = 13
	DTypeInt16   DType = 21
	DTypeUint16  DType = 22
	DTypeFloat16 DType = 23
	DTypeInt32   DType = 41
	DTypeUint32  DType = 42
	DTypeFloat32 DType = 43
	DTypeInt64   DType = 81
	DTypeFloat64 DType = 82
)

// Size returns the element size in bytes, or 0 for unknown types.
func (d DType) Size() int {
	switch d {
	case DTypeByte, DTypeInt8, DTypeUint8:
		return 1
	case DTypeInt16, DTypeUint16, DTypeFloat16:
		return 2
	case DTypeInt32, DTypeUint32, DTypeFloat32:
		return 4
	case DTypeInt64, DTypeFloat64:
		return 8
	}
	return 0
}

func (d DType) String() string {
	switch d {
	case DTypeByte:
		return "byte"
	case DTypeInt8:
		return "int8"
	case DTypeUint8:
		return "uint8"
	case DTypeInt16:
		return "int16"
	case DTypeUint16:
		return "uint16"
	case DTypeFloat16:
		return "float16"
	case DTypeInt32:
		return "int32"
	case DTypeUint32:
		return "uint32"
	case DTypeFloat32:
		return "float32"
	case DTypeInt64:
		return "int64"
	case DTypeFloat64:
		return "float64"
	}
	return fmt.Sprintf("dtype(%d)", uint32(d))
}

// Array is a named, typed n-dimensional array with little-endian raw data.
type Array struct {
	Name  string
	DType DType
	Shape []int
	Data  []byte
}

// Len returns the number of elements.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// NewFloat32Array creates a float32 array.
func NewFloat32Array(name string, shape []int, values []float32) *Array {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return &Array{Name: name, DType: DTypeFloat32, Shape: shape, Data: data}
}

// NewInt32Array creates an int32 array.
func NewInt32Array(name string, shape []int, values []int32) *Array {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return &Array{Name: name, DType: DTypeInt32, Shape: shape, Data: data}
}

// Float64s decodes the array as float64 values, converting from any
// numeric element type.
func (a *Array) Float64s() ([]float64, error) {
	n := a.Len()
	size := a.DType.Size()
	if size == 0 {
		return nil, fmt.Errorf("%w: array %q has unknown %v", ErrBadContainer, a.Name, a.DType)
	}
	if len(a.Data) != n*size {
		return nil, fmt.Errorf("%w: array %q holds %d bytes, want %d", ErrBadContainer, a.Name, len(a.Data), n*size)
	}

	out := make([]float64, n)
	le := binary.LittleEndian
	for i := range n {
		b := a.Data[i*size:]
		switch a.DType {
		case DTypeByte, DTypeUint8:
			out[i] = float64(b[0])
		case DTypeInt8:
			out[i] = float64(int8(b[0]))
		case DTypeInt16:
			out[i] = float64(int16(le.Uint16(b)))
		case DTypeUint16:
			out[i] = float64(le.Uint16(b))
		case DTypeFloat16:
			out[i] = float64(halfToFloat32(le.Uint16(b)))
		case DTypeInt32:
			out[i] = float64(int32(le.Uint32(b)))
		case DTypeUint32:
			out[i] = float64(le.Uint32(b))
		case DTypeFloat32:
			out[i] = float64(math.Float32frombits(le.Uint32(b)))
		case DTypeInt64:
			out[i] = float64(int64(le.Uint64(b)))
		case DTypeFloat64:
			out[i] = math.Float64frombits(le.Uint64(b))
		}
	}
	return out, nil
}

// Int32s decodes the array as int32 values. Floating point elements are
// truncated.
func (a *Array) Int32s() ([]int32, error) {
	f, err := a.Float64s()
	if err != nil {
		return nil, err
	}
	out := make([]int32, len(f))
	for i, v := range f {
		out[i] = int32(v)
	}
	return out, nil
}

// halfToFloat32 expands an IEEE 754 binary16 value.
func halfToFloat32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}

// Container is an ordered set of named arrays, the on-disk layout of the
// morphable-model asset.
type Container struct {
	Arrays []*Array
}

// Get returns the array with the given name.
func (c *Container) Get(name string) (*Array, bool) {
	for _, a := range c.Arrays {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Add appends an array, replacing any array with the same name.
func (c *Container) Add(a *Array) {
	for i, old := range c.Arrays {
		if old.Name == a.Name {
			c.Arrays[i] = a
			return
		}
	}
	c.Arrays = append(c.Arrays, a)
}

// ReadContainer decodes a container from r.
func ReadContainer(r io.Reader) (*Container, error) {
	br := bufio.NewReader(r)
	le := binary.LittleEndian

	var header [2]uint32
	if err := binary.Read(br, le, &header); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrBadContainer, err)
	}
	if header[0] != containerVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadContainer, header[0])
	}

	// The count is untrusted; arrays are appended as they decode.
	c := &Container{}
	for i := range int(header[1]) {
		a, err := readArray(br)
		if err != nil {
			return nil, fmt.Errorf("array %d: %w", i, err)
		}
		c.Arrays = append(c.Arrays, a)
	}
	return c, nil
}

func readArray(r io.Reader) (*Array, error) {
	le := binary.LittleEndian

	var keyLen uint32
	if err := binary.Read(r, le, &keyLen); err != nil {
		return nil, fmt.Errorf("%w: read key length: %v", ErrBadContainer, err)
	}
	if keyLen > maxKeyLen {
		return nil, fmt.Errorf("%w: key length %d", ErrBadContainer, keyLen)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: read key: %v", ErrBadContainer, err)
	}

	var meta [2]uint32
	if err := binary.Read(r, le, &meta); err != nil {
		return nil, fmt.Errorf("%w: read %q type: %v", ErrBadContainer, key, err)
	}
	dtype, dims := DType(meta[0]), meta[1]
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("%w: %q has unknown %v", ErrBadContainer, key, dtype)
	}
	if dims > maxDims {
		return nil, fmt.Errorf("%w: %q has %d dims", ErrBadContainer, key, dims)
	}

	raw := make([]uint32, dims)
	if err := binary.Read(r, le, raw); err != nil {
		return nil, fmt.Errorf("%w: read %q shape: %v", ErrBadContainer, key, err)
	}
	shape := make([]int, dims)
	total := uint64(dtype.Size())
	for i, d := range raw {
		shape[i] = int(d)
		total *= uint64(d)
		if total > maxBytes {
			return nil, fmt.Errorf("%w: %q is too large", ErrBadContainer, key)
		}
	}

	// The buffer grows with the bytes actually present, so a short file
	// cannot force an allocation of the claimed size.
	var buf bytes.Buffer
	if n, err := io.CopyN(&buf, r, int64(total)); err != nil {
		return nil, fmt.Errorf("%w: read %q data: %d of %d bytes: %v", ErrBadContainer, key, n, total, err)
	}
	return &Array{Name: string(key), DType: dtype, Shape: shape, Data: buf.Bytes()}, nil
}

// WriteTo encodes the container to w.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	cw := &countingWriter{w: bw}
	le := binary.LittleEndian

	if err := binary.Write(cw, le, [2]uint32{containerVersion, uint32(len(c.Arrays))}); err != nil {
		return cw.n, err
	}
	for _, a := range c.Arrays {
		if err := binary.Write(cw, le, uint32(len(a.Name))); err != nil {
			return cw.n, err
		}
		if _, err := io.WriteString(cw, a.Name); err != nil {
			return cw.n, err
		}
		if err := binary.Write(cw, le, [2]uint32{uint32(a.DType), uint32(len(a.Shape))}); err != nil {
			return cw.n, err
		}
		for _, d := range a.Shape {
			if err := binary.Write(cw, le, uint32(d)); err != nil {
				return cw.n, err
			}
		}
		if _, err := cw.Write(a.Data); err != nil {
			return cw.n, err
		}
	}
	return cw.n, bw.Flush()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
