package hash

import (
	"encoding/binary"
	"fmt"

	"probedb/pkg/storage/page"
)

// Codec turns a key or value into exactly Size() bytes and back. Block pages
// store entries at fixed offsets, so every encoding of a type has one width.
type Codec[T any] interface {
	Size() int
	Encode(dst []byte, v T)
	Decode(src []byte) T
}

type Int32Codec struct{}

func (Int32Codec) Size() int { return 4 }

func (Int32Codec) Encode(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

func (Int32Codec) Decode(src []byte) int32 {
	return int32(binary.LittleEndian.Uint32(src))
}

type Int64Codec struct{}

func (Int64Codec) Size() int { return 8 }

func (Int64Codec) Encode(dst []byte, v int64) {
	binary.LittleEndian.PutUint64(dst, uint64(v))
}

func (Int64Codec) Decode(src []byte) int64 {
	return int64(binary.LittleEndian.Uint64(src))
}

// GenericKey is an opaque fixed-width key, compared byte by byte.
type GenericKey []byte

// GenericKeyCodec stores GenericKeys of exactly Width bytes. Shorter keys are
// zero padded; longer keys are a caller bug.
type GenericKeyCodec struct {
	Width int
}

func (c GenericKeyCodec) Size() int { return c.Width }

func (c GenericKeyCodec) Encode(dst []byte, v GenericKey) {
	if len(v) > c.Width {
		panic(fmt.Sprintf("hash: generic key of %d bytes exceeds width %d", len(v), c.Width))
	}
	n := copy(dst[:c.Width], v)
	clear(dst[n:c.Width])
}

// Key builds a GenericKey of exactly Width bytes from b. Keys read back from
// a block always have full width, so lookups should use Key too.
func (c GenericKeyCodec) Key(b []byte) GenericKey {
	k := make(GenericKey, c.Width)
	c.Encode(k, b)
	return k
}

func (c GenericKeyCodec) Decode(src []byte) GenericKey {
	k := make(GenericKey, c.Width)
	copy(k, src)
	return k
}

// RID points at a tuple: the page it lives on and its slot in that page.
type RID struct {
	PageID  page.PageID
	SlotNum uint32
}

type RIDCodec struct{}

func (RIDCodec) Size() int { return 8 }

func (RIDCodec) Encode(dst []byte, v RID) {
	binary.LittleEndian.PutUint32(dst, uint32(v.PageID))
	binary.LittleEndian.PutUint32(dst[4:], v.SlotNum)
}

func (RIDCodec) Decode(src []byte) RID {
	return RID{
		PageID:  page.PageID(int32(binary.LittleEndian.Uint32(src))),
		SlotNum: binary.LittleEndian.Uint32(src[4:]),
	}
}
