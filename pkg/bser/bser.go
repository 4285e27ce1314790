// Package bser implements the BSER binary serialization of the JSON value
// domain used by the wire protocol, following a low-allocation, incremental
// decode style: callers feed it a byte slice, and if that slice does not yet
// contain a complete value the decoder reports how many more bytes are
// needed rather than blocking or erroring.
package bser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/wpath"
)

// Type bytes, matching watchman's bser.cpp exactly.
const (
	typeArray      = 0x00
	typeObject     = 0x01
	typeByteString = 0x02
	typeInt8       = 0x03
	typeInt16      = 0x04
	typeInt32      = 0x05
	typeInt64      = 0x06
	typeReal       = 0x07
	typeTrue       = 0x08
	typeFalse      = 0x09
	typeNull       = 0x0a
	typeTemplate   = 0x0b
	typeSkip       = 0x0c
	typeUTF8String = 0x0d
)

// Capability bits. These affect only string encoding.
type Capabilities uint32

const (
	// CapDisableUnicode forces byte-string encoding for all strings, even
	// clean unicode ones.
	CapDisableUnicode Capabilities = 1 << 0
	// CapDisableUnicodeForErrors emits utf8-string for clean unicode strings
	// but byte-string for mixed/error strings.
	CapDisableUnicodeForErrors Capabilities = 1 << 1
)

// String wraps a Go string with an explicit wire encoding preference. Bare Go
// strings passed as Values are classified with wpath.New, which tags them
// EncodingUnicode if valid UTF-8 and EncodingByte otherwise; String lets a
// caller override that inference (e.g. to force a byte-string for a raw,
// possibly-invalid-UTF8 path).
type String struct {
	Value    string
	Mixed    bool
	RawBytes []byte
}

// TemplateArray is a BSER value representing a "template" encoded array: an
// array of homogeneous objects sharing a key set, encoded compactly as a key
// header followed by per-row positional values. A missing field in a row is
// encoded with the skip tag.
type TemplateArray struct {
	Keys []string
	Rows []map[string]Value
}

// Value is the BSER value domain: nil, bool, int64, float64, string/String,
// []Value, map[string]Value, or TemplateArray.
type Value interface{}

// ErrNeedMore indicates the buffer passed to Decode does not yet contain a
// complete value. Needed is the minimum number of additional bytes the caller
// should obtain before retrying (not necessarily exact, but a useful lower
// bound for refilling).
type ErrNeedMore struct {
	Needed int64
}

func (e *ErrNeedMore) Error() string {
	return fmt.Sprintf("bser: need %d more bytes", e.Needed)
}

// DecodeError is a structured decode error carrying a position for
// diagnostics: decoding never panics on malformed input, it returns this
// instead.
type DecodeError struct {
	Position int
	Message  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("bser: %s (at byte %d)", e.Message, e.Position)
}

// Options controls value encoding.
type Options struct {
	Capabilities Capabilities
}

// smallestIntType returns the BSER type byte and width (in bytes) of the
// narrowest signed integer type that can represent v.
func smallestIntType(v int64) (byte, int) {
	switch {
	case v >= math.MinInt8 && v <= math.MaxInt8:
		return typeInt8, 1
	case v >= math.MinInt16 && v <= math.MaxInt16:
		return typeInt16, 2
	case v >= math.MinInt32 && v <= math.MaxInt32:
		return typeInt32, 4
	default:
		return typeInt64, 8
	}
}

// EncodeInt writes a BSER integer (type byte + little-endian payload chosen
// by smallestIntType) to buf, returning the extended buffer.
func EncodeInt(buf []byte, v int64) []byte {
	tb, width := smallestIntType(v)
	buf = append(buf, tb)
	var tmp [8]byte
	switch width {
	case 1:
		tmp[0] = byte(int8(v))
		buf = append(buf, tmp[:1]...)
	case 2:
		binary.LittleEndian.PutUint16(tmp[:2], uint16(int16(v)))
		buf = append(buf, tmp[:2]...)
	case 4:
		binary.LittleEndian.PutUint32(tmp[:4], uint32(int32(v)))
		buf = append(buf, tmp[:4]...)
	default:
		binary.LittleEndian.PutUint64(tmp[:8], uint64(v))
		buf = append(buf, tmp[:8]...)
	}
	return buf
}

func encodeStringBytes(buf []byte, tag byte, raw []byte) []byte {
	buf = append(buf, tag)
	buf = EncodeInt(buf, int64(len(raw)))
	buf = append(buf, raw...)
	return buf
}

func (o Options) stringTag(mixed bool) byte {
	if o.Capabilities&CapDisableUnicode != 0 {
		return typeByteString
	}
	if o.Capabilities&CapDisableUnicodeForErrors != 0 && mixed {
		return typeByteString
	}
	return typeUTF8String
}

// Encode appends the BSER encoding of v to buf and returns the extended
// buffer. It is the inverse of Decode.
func Encode(buf []byte, v Value, opts Options) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, typeNull), nil
	case bool:
		if x {
			return append(buf, typeTrue), nil
		}
		return append(buf, typeFalse), nil
	case int:
		return EncodeInt(buf, int64(x)), nil
	case int64:
		return EncodeInt(buf, x), nil
	case float64:
		buf = append(buf, typeReal)
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(x))
		return append(buf, tmp[:]...), nil
	case string:
		name := wpath.New(x)
		if name.Encoding() == wpath.EncodingByte {
			return encodeStringBytes(buf, typeByteString, name.Bytes()), nil
		}
		return encodeStringBytes(buf, opts.stringTag(false), name.Bytes()), nil
	case String:
		if x.RawBytes != nil {
			return encodeStringBytes(buf, typeByteString, x.RawBytes), nil
		}
		return encodeStringBytes(buf, opts.stringTag(x.Mixed), []byte(x.Value)), nil
	case []Value:
		return encodeArray(buf, x, opts)
	case map[string]Value:
		return encodeObject(buf, x, opts)
	case TemplateArray:
		return encodeTemplate(buf, x, opts)
	default:
		return nil, errors.Errorf("bser: unsupported value type %T", v)
	}
}

func encodeArray(buf []byte, arr []Value, opts Options) ([]byte, error) {
	buf = append(buf, typeArray)
	buf = EncodeInt(buf, int64(len(arr)))
	var err error
	for _, e := range arr {
		buf, err = Encode(buf, e, opts)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeObject(buf []byte, obj map[string]Value, opts Options) ([]byte, error) {
	buf = append(buf, typeObject)
	buf = EncodeInt(buf, int64(len(obj)))
	var err error
	for k, v := range obj {
		buf = encodeStringBytes(buf, opts.stringTag(false), []byte(k))
		buf, err = Encode(buf, v, opts)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeTemplate(buf []byte, t TemplateArray, opts Options) ([]byte, error) {
	buf = append(buf, typeTemplate)
	keyValues := make([]Value, len(t.Keys))
	for i, k := range t.Keys {
		keyValues[i] = k
	}
	var err error
	buf, err = encodeArray(buf, keyValues, opts)
	if err != nil {
		return nil, err
	}
	buf = EncodeInt(buf, int64(len(t.Rows)))
	for _, row := range t.Rows {
		for _, k := range t.Keys {
			val, ok := row[k]
			if !ok {
				buf = append(buf, typeSkip)
				continue
			}
			buf, err = Encode(buf, val, opts)
			if err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

// decoder walks a byte slice, tracking position for diagnostics.
type decoder struct {
	buf []byte
	pos int
}

func (d *decoder) need(n int) error {
	remaining := len(d.buf) - d.pos
	if remaining < n {
		return &ErrNeedMore{Needed: int64(n - remaining)}
	}
	return nil
}

func (d *decoder) readByte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// decodeInt decodes a BSER integer value (type byte already expected next),
// returning its value.
func (d *decoder) decodeInt() (int64, error) {
	tb, err := d.readByte()
	if err != nil {
		return 0, err
	}
	var width int
	switch tb {
	case typeInt8:
		width = 1
	case typeInt16:
		width = 2
	case typeInt32:
		width = 4
	case typeInt64:
		width = 8
	default:
		return 0, &DecodeError{Position: d.pos - 1, Message: fmt.Sprintf("expected integer type byte, got 0x%02x", tb)}
	}
	if err := d.need(width); err != nil {
		return 0, err
	}
	raw := d.buf[d.pos : d.pos+width]
	d.pos += width
	switch width {
	case 1:
		return int64(int8(raw[0])), nil
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(raw))), nil
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	default:
		return int64(binary.LittleEndian.Uint64(raw)), nil
	}
}

// decodeIntAsValue decodes a value known to be a BSER integer and returns it as
// a Value (int64), used when integers appear amongst heterogeneous values.
func (d *decoder) decodeIntAsValue() (Value, error) {
	v, err := d.decodeInt()
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (d *decoder) decodeStringBytes() ([]byte, bool, error) {
	tb, err := d.readByte()
	if err != nil {
		return nil, false, err
	}
	if tb != typeByteString && tb != typeUTF8String {
		return nil, false, &DecodeError{Position: d.pos - 1, Message: fmt.Sprintf("expected string type byte, got 0x%02x", tb)}
	}
	length, err := d.decodeInt()
	if err != nil {
		return nil, false, err
	}
	if length < 0 {
		return nil, false, &DecodeError{Position: d.pos, Message: "negative string length"}
	}
	if err := d.need(int(length)); err != nil {
		return nil, false, err
	}
	raw := d.buf[d.pos : d.pos+int(length)]
	d.pos += int(length)
	return raw, tb == typeUTF8String, nil
}

func (d *decoder) decodeArrayElements() ([]Value, error) {
	count, err := d.decodeInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, &DecodeError{Position: d.pos, Message: "negative array length"}
	}
	result := make([]Value, 0, count)
	for i := int64(0); i < count; i++ {
		v, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (d *decoder) decodeValue() (Value, error) {
	if d.pos >= len(d.buf) {
		return nil, &ErrNeedMore{Needed: 1}
	}
	tb := d.buf[d.pos]
	switch tb {
	case typeNull:
		d.pos++
		return nil, nil
	case typeTrue:
		d.pos++
		return true, nil
	case typeFalse:
		d.pos++
		return false, nil
	case typeInt8, typeInt16, typeInt32, typeInt64:
		return d.decodeIntAsValue()
	case typeReal:
		d.pos++
		if err := d.need(8); err != nil {
			return nil, err
		}
		bits := binary.LittleEndian.Uint64(d.buf[d.pos : d.pos+8])
		d.pos += 8
		return math.Float64frombits(bits), nil
	case typeByteString, typeUTF8String:
		raw, isUTF8, err := d.decodeStringBytes()
		if err != nil {
			return nil, err
		}
		if isUTF8 {
			return string(raw), nil
		}
		return String{RawBytes: append([]byte(nil), raw...)}, nil
	case typeArray:
		d.pos++
		return d.decodeArrayElements()
	case typeObject:
		d.pos++
		return d.decodeObject()
	case typeTemplate:
		d.pos++
		return d.decodeTemplate()
	case typeSkip:
		return nil, &DecodeError{Position: d.pos, Message: "unexpected skip tag outside template row"}
	default:
		return nil, &DecodeError{Position: d.pos, Message: fmt.Sprintf("unrecognized type byte 0x%02x", tb)}
	}
}

func (d *decoder) decodeObject() (Value, error) {
	count, err := d.decodeInt()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, &DecodeError{Position: d.pos, Message: "negative object length"}
	}
	result := make(map[string]Value, count)
	for i := int64(0); i < count; i++ {
		keyRaw, _, err := d.decodeStringBytes()
		if err != nil {
			return nil, err
		}
		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}
		result[string(keyRaw)] = val
	}
	return result, nil
}

func (d *decoder) decodeTemplate() (Value, error) {
	if err := d.need(1); err != nil {
		return nil, err
	}
	if d.buf[d.pos] != typeArray {
		return nil, &DecodeError{Position: d.pos, Message: fmt.Sprintf("expected array encoding for template keys, found 0x%02x", d.buf[d.pos])}
	}
	d.pos++
	keyValues, err := d.decodeArrayElements()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(keyValues))
	for i, kv := range keyValues {
		s, ok := kv.(string)
		if !ok {
			return nil, &DecodeError{Position: d.pos, Message: "template key is not a string"}
		}
		keys[i] = s
	}
	nrows, err := d.decodeInt()
	if err != nil {
		return nil, err
	}
	if nrows < 0 {
		return nil, &DecodeError{Position: d.pos, Message: "negative template row count"}
	}
	rows := make([]map[string]Value, 0, nrows)
	for r := int64(0); r < nrows; r++ {
		row := make(map[string]Value, len(keys))
		for _, k := range keys {
			if err := d.need(1); err != nil {
				return nil, err
			}
			if d.buf[d.pos] == typeSkip {
				d.pos++
				continue
			}
			v, err := d.decodeValue()
			if err != nil {
				return nil, err
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	return TemplateArray{Keys: keys, Rows: rows}, nil
}

// Decode decodes a single BSER value from buf, returning the value and the
// number of bytes consumed. If buf does not contain a complete value, it
// returns an *ErrNeedMore error (checkable with errors.As) and the caller
// should refill its buffer and retry from the start (BSER values are not
// resumable mid-decode, only re-triable once more bytes are available).
func Decode(buf []byte) (Value, int, error) {
	d := &decoder{buf: buf}
	v, err := d.decodeValue()
	if err != nil {
		return nil, 0, err
	}
	return v, d.pos, nil
}

// Equal reports whether two decoded BSER values are semantically equal,
// treating String{RawBytes: x} and string(x) as equal when compared, since
// on the wire a byte-string and a utf8-string both round-trip to the same
// logical text when valid UTF-8 (used by round-trip tests).
func Equal(a, b Value) bool {
	na := normalize(a)
	nb := normalize(b)
	return valuesEqual(na, nb)
}

func normalize(v Value) Value {
	switch x := v.(type) {
	case String:
		if x.RawBytes != nil {
			return string(x.RawBytes)
		}
		return x.Value
	case []Value:
		out := make([]Value, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]Value:
		out := make(map[string]Value, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case TemplateArray:
		out := make([]Value, len(x.Rows))
		for i, row := range x.Rows {
			m := make(map[string]Value)
			for _, k := range x.Keys {
				if val, ok := row[k]; ok {
					m[k] = normalize(val)
				}
			}
			out[i] = m
		}
		return out
	default:
		return v
	}
}

func valuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case []Value:
		y, ok := b.([]Value)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !valuesEqual(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]Value:
		y, ok := b.(map[string]Value)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, v := range x {
			yv, ok := y[k]
			if !ok || !valuesEqual(v, yv) {
				return false
			}
		}
		return true
	default:
		return bytesOrDeepEqual(a, b)
	}
}

func bytesOrDeepEqual(a, b Value) bool {
	ab, aok := a.([]byte)
	bb, bok := b.([]byte)
	if aok || bok {
		return aok && bok && bytes.Equal(ab, bb)
	}
	return a == b
}
