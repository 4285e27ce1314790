package bser

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	s = strings.ReplaceAll(s, " ", "")
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// TestIntegerSizing checks a worked BSER payload with mixed integer widths
// (the PDU header bytes are exercised separately in package wireframe).
func TestIntegerSizing(t *testing.T) {
	expected := hexBytes(t, "00 03 05 03 01 03 7b 04 39 30 05 87 d6 12 00 06 4e d6 14 5e 54 dc 2b 00")

	values := []Value{int64(1), int64(123), int64(12345), int64(1234567), int64(12345678912345678)}
	got, err := Encode(nil, values, Options{})
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	decoded, consumed, err := Decode(expected)
	require.NoError(t, err)
	assert.Equal(t, len(expected), consumed)
	assert.True(t, Equal(values, decoded))
}

// TestArrayOfStringsV1 checks a worked BSER payload using byte-string
// encoding, as used by BSERv1.
func TestArrayOfStringsV1(t *testing.T) {
	expected := hexBytes(t, "00 03 02 02 03 03 54 6f 6d 02 03 05 4a 65 72 72 79")

	values := []Value{String{RawBytes: []byte("Tom")}, String{RawBytes: []byte("Jerry")}}
	got, err := Encode(nil, values, Options{})
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	decoded, consumed, err := Decode(expected)
	require.NoError(t, err)
	assert.Equal(t, len(expected), consumed)
	assert.True(t, Equal(values, decoded))
}

func TestRoundTripScalarTypes(t *testing.T) {
	cases := []Value{
		nil,
		true,
		false,
		int64(0),
		int64(-128),
		int64(127),
		int64(32767),
		int64(-2147483648),
		3.14159,
		"hello world",
		[]Value{int64(1), "two", 3.0, nil, true},
		map[string]Value{"a": int64(1), "b": "two"},
	}
	for _, c := range cases {
		buf, err := Encode(nil, c, Options{})
		require.NoError(t, err)
		decoded, consumed, err := Decode(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), consumed)
		assert.True(t, Equal(c, decoded), "round trip mismatch for %#v -> %#v", c, decoded)
	}
}

func TestTemplateArrayRoundTripPreservesOrder(t *testing.T) {
	tmpl := TemplateArray{
		Keys: []string{"name", "size"},
		Rows: []map[string]Value{
			{"name": "a.txt", "size": int64(10)},
			{"name": "b.txt"},
			{"name": "c.txt", "size": int64(30)},
		},
	}
	buf, err := Encode(nil, tmpl, Options{})
	require.NoError(t, err)

	decoded, consumed, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)

	got, ok := decoded.(TemplateArray)
	require.True(t, ok)
	require.Equal(t, tmpl.Keys, got.Keys)
	require.Len(t, got.Rows, 3)
	assert.Equal(t, int64(10), got.Rows[0]["size"])
	_, hasSize := got.Rows[1]["size"]
	assert.False(t, hasSize)
	assert.Equal(t, int64(30), got.Rows[2]["size"])
}

func TestDecodeNeedsMoreBytesOnTruncatedInput(t *testing.T) {
	full, err := Encode(nil, []Value{int64(1), int64(2), int64(3)}, Options{})
	require.NoError(t, err)

	for cut := 1; cut < len(full); cut++ {
		_, _, err := Decode(full[:cut])
		require.Error(t, err)
		var needMore *ErrNeedMore
		require.ErrorAs(t, err, &needMore)
		assert.Greater(t, needMore.Needed, int64(0))
	}
}

func TestDecodeMalformedInputNeverPanics(t *testing.T) {
	garbage := [][]byte{
		{0xff},
		{typeArray, typeInt8, 0x02, 0x01},
		{typeObject, typeInt8, 0x01, typeInt8},
		{typeInt8},
	}
	for _, g := range garbage {
		assert.NotPanics(t, func() {
			_, _, _ = Decode(g)
		})
	}
}

func TestSmallestIntTypeChoice(t *testing.T) {
	cases := map[int64]byte{
		0:                   typeInt8,
		127:                 typeInt8,
		128:                 typeInt16,
		32767:               typeInt16,
		32768:               typeInt32,
		2147483647:           typeInt32,
		2147483648:           typeInt64,
		12345678912345678:    typeInt64,
	}
	for v, want := range cases {
		buf, err := Encode(nil, v, Options{})
		require.NoError(t, err)
		require.Equal(t, want, buf[0], "value %d", v)
	}
}
