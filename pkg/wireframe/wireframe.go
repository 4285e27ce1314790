// Package wireframe implements PDU-level framing: a server auto-detects
// whether each request is JSON (newline-terminated) or BSER (v1 or v2,
// identified by a two-byte magic), and frames BSER payloads with a
// BSER-encoded length prefix. It follows a varint-length Encoder/Decoder
// pair idiom, generalized from a single message type to the bser.Value
// domain plus a raw-JSON-line fallback.
package wireframe

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/wisprd/wisp/pkg/bser"
)

// Encoding identifies which wire encoding a PDU uses.
type Encoding int

const (
	// EncodingJSON indicates a newline-terminated JSON PDU.
	EncodingJSON Encoding = iota
	// EncodingBSERv1 indicates a BSER PDU with no capability negotiation.
	EncodingBSERv1
	// EncodingBSERv2 indicates a BSER PDU carrying a capability bitfield.
	EncodingBSERv2
)

var (
	magicV1 = [2]byte{0x00, 0x01}
	magicV2 = [2]byte{0x00, 0x02}
)

// maximumPDUSize bounds the payload length accepted by Decoder, guarding
// against memory exhaustion from a malformed or hostile length prefix.
const maximumPDUSize = 100 * 1024 * 1024

// Decoder reads PDUs from a stream, auto-detecting JSON vs BSERv1 vs BSERv2
// on each PDU by inspecting the leading bytes.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a new Decoder over r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// PDU is a single decoded request or response.
type PDU struct {
	// Encoding records how the PDU was received, so that a response can be
	// sent back in the same encoding unless the client negotiates a change.
	Encoding Encoding
	// Capabilities carries the peer's advertised capabilities for a BSERv2
	// PDU; zero for JSON and BSERv1.
	Capabilities bser.Capabilities
	// Value is the decoded command/response value.
	Value bser.Value
}

// Decode reads and decodes the next PDU from the stream.
func (d *Decoder) Decode() (*PDU, error) {
	first, err := d.r.Peek(2)
	if err != nil {
		return nil, errors.Wrap(err, "unable to peek PDU header")
	}

	if first[0] == magicV1[0] && first[1] == magicV1[1] {
		return d.decodeBSER(EncodingBSERv1)
	}
	if first[0] == magicV2[0] && first[1] == magicV2[1] {
		return d.decodeBSER(EncodingBSERv2)
	}
	return d.decodeJSON()
}

func (d *Decoder) decodeBSER(enc Encoding) (*PDU, error) {
	var header [2]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return nil, errors.Wrap(err, "unable to read BSER magic")
	}

	var caps bser.Capabilities
	if enc == EncodingBSERv2 {
		var capBytes [4]byte
		if _, err := io.ReadFull(d.r, capBytes[:]); err != nil {
			return nil, errors.Wrap(err, "unable to read capability bitfield")
		}
		caps = bser.Capabilities(binary.LittleEndian.Uint32(capBytes[:]))
	}

	// The payload length is itself encoded as a BSER integer: peek the type
	// byte to learn its width before reading.
	lengthTag, err := d.r.Peek(1)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read length type byte")
	}
	width, err := intWidth(lengthTag[0])
	if err != nil {
		return nil, err
	}
	lengthBytes := make([]byte, 1+width)
	if _, err := io.ReadFull(d.r, lengthBytes); err != nil {
		return nil, errors.Wrap(err, "unable to read PDU length")
	}
	_, consumed, err := bser.Decode(lengthBytes)
	if err != nil || consumed != len(lengthBytes) {
		return nil, errors.New("malformed PDU length prefix")
	}
	length, err := decodeLengthValue(lengthBytes)
	if err != nil {
		return nil, err
	}
	if length < 0 || length > maximumPDUSize {
		return nil, errors.New("PDU length out of bounds")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, errors.Wrap(err, "unable to read PDU payload")
	}

	value, consumedPayload, err := bser.Decode(payload)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode PDU payload")
	}
	if consumedPayload != len(payload) {
		return nil, errors.New("trailing bytes after PDU payload")
	}

	return &PDU{Encoding: enc, Capabilities: caps, Value: value}, nil
}

func (d *Decoder) decodeJSON() (*PDU, error) {
	line, err := d.r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, errors.Wrap(err, "unable to read JSON line")
	}
	var raw interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, errors.Wrap(err, "unable to decode JSON PDU")
	}
	return &PDU{Encoding: EncodingJSON, Value: jsonToValue(raw)}, nil
}

func jsonToValue(v interface{}) bser.Value {
	switch x := v.(type) {
	case nil:
		return nil
	case bool, string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return int64(x)
		}
		return x
	case []interface{}:
		out := make([]bser.Value, len(x))
		for i, e := range x {
			out[i] = jsonToValue(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]bser.Value, len(x))
		for k, e := range x {
			out[k] = jsonToValue(e)
		}
		return out
	default:
		return v
	}
}

func intWidth(tag byte) (int, error) {
	switch tag {
	case 0x03:
		return 1, nil
	case 0x04:
		return 2, nil
	case 0x05:
		return 4, nil
	case 0x06:
		return 8, nil
	default:
		return 0, errors.Errorf("expected integer type byte for PDU length, got 0x%02x", tag)
	}
}

func decodeLengthValue(buf []byte) (int64, error) {
	v, consumed, err := bser.Decode(buf)
	if err != nil {
		return 0, err
	}
	if consumed != len(buf) {
		return 0, errors.New("malformed length encoding")
	}
	n, ok := v.(int64)
	if !ok {
		return 0, errors.New("length value is not an integer")
	}
	return n, nil
}

// Encoder writes PDUs to a stream using a chosen encoding.
type Encoder struct {
	w            io.Writer
	enc          Encoding
	capabilities bser.Capabilities
}

// NewEncoder creates a new Encoder that writes PDUs in the given encoding.
// For EncodingBSERv2, capabilities are the capabilities to advertise/use
// (the intersection of peer and server capabilities).
func NewEncoder(w io.Writer, enc Encoding, capabilities bser.Capabilities) *Encoder {
	return &Encoder{w: w, enc: enc, capabilities: capabilities}
}

// Encode writes a single PDU containing value.
func (e *Encoder) Encode(value bser.Value) error {
	switch e.enc {
	case EncodingJSON:
		return e.encodeJSON(value)
	case EncodingBSERv1, EncodingBSERv2:
		return e.encodeBSER(value)
	default:
		return errors.Errorf("unknown PDU encoding %d", e.enc)
	}
}

func (e *Encoder) encodeJSON(value bser.Value) error {
	plain := valueToJSON(value)
	data, err := json.Marshal(plain)
	if err != nil {
		return errors.Wrap(err, "unable to encode JSON PDU")
	}
	data = append(data, '\n')
	_, err = e.w.Write(data)
	return errors.Wrap(err, "unable to transmit JSON PDU")
}

func valueToJSON(v bser.Value) interface{} {
	switch x := v.(type) {
	case bser.String:
		if x.RawBytes != nil {
			return string(x.RawBytes)
		}
		return x.Value
	case []bser.Value:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = valueToJSON(e)
		}
		return out
	case map[string]bser.Value:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = valueToJSON(e)
		}
		return out
	default:
		return x
	}
}

func (e *Encoder) encodeBSER(value bser.Value) error {
	opts := bser.Options{Capabilities: e.capabilities}
	payload, err := bser.Encode(nil, value, opts)
	if err != nil {
		return errors.Wrap(err, "unable to serialize PDU payload")
	}

	var header []byte
	if e.enc == EncodingBSERv1 {
		header = append(header, magicV1[:]...)
	} else {
		header = append(header, magicV2[:]...)
		var capBytes [4]byte
		binary.LittleEndian.PutUint32(capBytes[:], uint32(e.capabilities))
		header = append(header, capBytes[:]...)
	}
	header = bser.EncodeInt(header, int64(len(payload)))

	if _, err := e.w.Write(header); err != nil {
		return errors.Wrap(err, "unable to transmit PDU header")
	}
	if _, err := e.w.Write(payload); err != nil {
		return errors.Wrap(err, "unable to transmit PDU payload")
	}
	return nil
}
