package wireframe

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wisprd/wisp/pkg/bser"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	require.NoError(t, err)
	return b
}

// TestBSERv2IntegerSizingPDU verifies integer-sizing round-trips at the
// full PDU level (magic, capability field, length, payload).
func TestBSERv2IntegerSizingPDU(t *testing.T) {
	expected := hexBytes(t, "00 02 00 00 00 00 03 18 00 03 05 03 01 03 7b 04 39 30 05 87 d6 12 00 06 4e d6 14 5e 54 dc 2b 00")

	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncodingBSERv2, 0)
	values := []bser.Value{int64(1), int64(123), int64(12345), int64(1234567), int64(12345678912345678)}
	require.NoError(t, enc.Encode(values))
	assert.Equal(t, expected, buf.Bytes())

	dec := NewDecoder(bytes.NewReader(expected))
	pdu, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, EncodingBSERv2, pdu.Encoding)
	assert.True(t, bser.Equal(values, pdu.Value))
}

// TestBSERv1ArrayOfStringsPDU verifies a BSERv1 array-of-strings PDU
// round-trips at the full PDU level.
func TestBSERv1ArrayOfStringsPDU(t *testing.T) {
	expected := hexBytes(t, "00 01 03 11 00 03 02 02 03 03 54 6f 6d 02 03 05 4a 65 72 72 79")

	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncodingBSERv1, 0)
	values := []bser.Value{bser.String{RawBytes: []byte("Tom")}, bser.String{RawBytes: []byte("Jerry")}}
	require.NoError(t, enc.Encode(values))
	assert.Equal(t, expected, buf.Bytes())

	dec := NewDecoder(bytes.NewReader(expected))
	pdu, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, EncodingBSERv1, pdu.Encoding)
	assert.True(t, bser.Equal(values, pdu.Value))
}

func TestJSONFallback(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(`["query", "/path/to/root"]` + "\n")

	dec := NewDecoder(&buf)
	pdu, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, EncodingJSON, pdu.Encoding)

	arr, ok := pdu.Value.([]bser.Value)
	require.True(t, ok)
	require.Len(t, arr, 2)
	assert.Equal(t, "query", arr[0])
}

func TestJSONEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncodingJSON, 0)
	require.NoError(t, enc.Encode(map[string]bser.Value{"error": "boom"}))

	dec := NewDecoder(&buf)
	pdu, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, EncodingJSON, pdu.Encoding)
	m, ok := pdu.Value.(map[string]bser.Value)
	require.True(t, ok)
	assert.Equal(t, "boom", m["error"])
}

func TestCapabilityIntersectionRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, EncodingBSERv2, bser.CapDisableUnicode)
	require.NoError(t, enc.Encode("hello"))

	dec := NewDecoder(bytes.NewReader(buf.Bytes()))
	pdu, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, bser.CapDisableUnicode, pdu.Capabilities)
	s, ok := pdu.Value.(bser.String)
	require.True(t, ok)
	assert.Equal(t, "hello", string(s.RawBytes))
}
