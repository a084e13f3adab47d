// Package codec implements Carbon's length-delimited binary TCP protocol
// (§4.7): a 4-byte big-endian frame length prefix followed by a typed
// request or response message. Decoding never copies value bytes; every
// decoded payload is a slice into the frame buffer the caller owns.
package codec

import (
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
)

// MaxFrameBytes bounds a single frame's payload; the 4-byte length prefix
// is not counted (§4.7).
const MaxFrameBytes = 8 * 1024 * 1024

// Command identifies a request's first byte.
type Command byte

const (
	CmdPing   Command = 0x00
	CmdPut    Command = 0x01
	CmdGet    Command = 0x02
	CmdDelete Command = 0x03
)

// Kind identifies a response's first byte.
type Kind byte

const (
	KindPong     Kind = 0x00
	KindOk       Kind = 0x01
	KindValue    Kind = 0x02
	KindNotFound Kind = 0x03
	KindError    Kind = 0x04
)

// Request is a decoded binary-protocol request. CacheName, Key, and Value
// are slices into the original frame buffer; callers that retain a Request
// past the lifetime of that buffer must copy what they need.
type Request struct {
	Command   Command
	CacheName []byte
	Key       []byte
	Value     []byte
}

// Response is a decoded binary-protocol response.
type Response struct {
	Kind  Kind
	Value []byte
	Msg   []byte
}

// ReadFrame reads one length-prefixed frame from r and returns its payload
// (the bytes after the 4-byte length prefix). It enforces MaxFrameBytes and
// returns io.EOF unmodified when the connection closes cleanly between
// frames (not mid-frame, which is ProtocolError territory left to the
// caller via a short/zero read count).
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n == 0 {
		return nil, carbonerr.Wrap(carbonerr.KindProtocolError, "codec: empty frame", nil)
	}
	if n > MaxFrameBytes {
		return nil, carbonerr.New(carbonerr.KindProtocolError, fmt.Sprintf("codec: frame of %d bytes exceeds max %d", n, MaxFrameBytes))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, carbonerr.Wrap(carbonerr.KindProtocolError, "codec: truncated frame body", err)
	}
	return buf, nil
}

// WriteFrame writes payload to w prefixed with its 4-byte big-endian length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// DecodeRequest parses one already-framed request payload. It never
// allocates for CacheName/Key/Value: each is a direct slice of buf.
func DecodeRequest(buf []byte) (Request, error) {
	if len(buf) == 0 {
		return Request{}, protoErr("empty buffer")
	}
	cmd := Command(buf[0])
	rest := buf[1:]

	switch cmd {
	case CmdPing:
		return Request{Command: CmdPing}, nil

	case CmdPut:
		name, rest, err := takeLenPrefixed(rest)
		if err != nil {
			return Request{}, err
		}
		if !utf8.Valid(name) {
			return Request{}, protoErr("cache name is not valid UTF-8")
		}
		keyLen, rest, err := takeU32(rest)
		if err != nil {
			return Request{}, err
		}
		valLen, rest, err := takeU32(rest)
		if err != nil {
			return Request{}, err
		}
		if uint64(len(rest)) < uint64(keyLen)+uint64(valLen) {
			return Request{}, protoErr("truncated put key/value")
		}
		key := rest[:keyLen]
		value := rest[keyLen : keyLen+valLen]
		return Request{Command: CmdPut, CacheName: name, Key: key, Value: value}, nil

	case CmdGet, CmdDelete:
		name, rest, err := takeLenPrefixed(rest)
		if err != nil {
			return Request{}, err
		}
		if !utf8.Valid(name) {
			return Request{}, protoErr("cache name is not valid UTF-8")
		}
		key, _, err := takeLenPrefixed(rest)
		if err != nil {
			return Request{}, err
		}
		return Request{Command: cmd, CacheName: name, Key: key}, nil

	default:
		return Request{}, protoErr(fmt.Sprintf("unknown command byte 0x%02x", byte(cmd)))
	}
}

// EncodeRequest renders r back into a frame payload (excludes the length
// prefix); used by clients and by codec round-trip tests.
func EncodeRequest(r Request) ([]byte, error) {
	switch r.Command {
	case CmdPing:
		return []byte{byte(CmdPing)}, nil

	case CmdPut:
		out := make([]byte, 0, 1+4+len(r.CacheName)+4+4+len(r.Key)+len(r.Value))
		out = append(out, byte(CmdPut))
		out = appendU32(out, uint32(len(r.CacheName)))
		out = append(out, r.CacheName...)
		out = appendU32(out, uint32(len(r.Key)))
		out = appendU32(out, uint32(len(r.Value)))
		out = append(out, r.Key...)
		out = append(out, r.Value...)
		return out, nil

	case CmdGet, CmdDelete:
		out := make([]byte, 0, 1+4+len(r.CacheName)+4+len(r.Key))
		out = append(out, byte(r.Command))
		out = appendU32(out, uint32(len(r.CacheName)))
		out = append(out, r.CacheName...)
		out = appendU32(out, uint32(len(r.Key)))
		out = append(out, r.Key...)
		return out, nil

	default:
		return nil, protoErr(fmt.Sprintf("unknown command byte 0x%02x", byte(r.Command)))
	}
}

// DecodeResponse parses one already-framed response payload.
func DecodeResponse(buf []byte) (Response, error) {
	if len(buf) == 0 {
		return Response{}, protoErr("empty buffer")
	}
	kind := Kind(buf[0])
	rest := buf[1:]

	switch kind {
	case KindPong, KindOk, KindNotFound:
		return Response{Kind: kind}, nil

	case KindValue:
		value, _, err := takeLenPrefixed(rest)
		if err != nil {
			return Response{}, err
		}
		return Response{Kind: KindValue, Value: value}, nil

	case KindError:
		msg, _, err := takeLenPrefixed(rest)
		if err != nil {
			return Response{}, err
		}
		if !utf8.Valid(msg) {
			return Response{}, protoErr("error message is not valid UTF-8")
		}
		return Response{Kind: KindError, Msg: msg}, nil

	default:
		return Response{}, protoErr(fmt.Sprintf("unknown response kind byte 0x%02x", byte(kind)))
	}
}

// EncodeResponse renders resp into a frame payload.
func EncodeResponse(resp Response) []byte {
	switch resp.Kind {
	case KindValue:
		out := make([]byte, 0, 1+4+len(resp.Value))
		out = append(out, byte(KindValue))
		out = appendU32(out, uint32(len(resp.Value)))
		out = append(out, resp.Value...)
		return out

	case KindError:
		out := make([]byte, 0, 1+4+len(resp.Msg))
		out = append(out, byte(KindError))
		out = appendU32(out, uint32(len(resp.Msg)))
		out = append(out, resp.Msg...)
		return out

	default:
		return []byte{byte(resp.Kind)}
	}
}

func takeU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, protoErr("truncated length field")
	}
	return binary.BigEndian.Uint32(buf[:4]), buf[4:], nil
}

func takeLenPrefixed(buf []byte) ([]byte, []byte, error) {
	n, rest, err := takeU32(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < uint64(n) {
		return nil, nil, protoErr("truncated length-prefixed field")
	}
	return rest[:n], rest[n:], nil
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func protoErr(msg string) error {
	return carbonerr.New(carbonerr.KindProtocolError, "codec: "+msg)
}
