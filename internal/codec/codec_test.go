package codec_test

import (
	"bytes"
	"testing"

	"github.com/chirdeeptomar/carbon-cache/internal/carbonerr"
	"github.com/chirdeeptomar/carbon-cache/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []codec.Request{
		{Command: codec.CmdPing},
		{Command: codec.CmdPut, CacheName: []byte("c1"), Key: []byte("hello"), Value: []byte("world")},
		{Command: codec.CmdPut, CacheName: []byte("c1"), Key: []byte(""), Value: []byte("")},
		{Command: codec.CmdGet, CacheName: []byte("c1"), Key: []byte("hello")},
		{Command: codec.CmdDelete, CacheName: []byte("c1"), Key: []byte("hello")},
	}
	for _, want := range cases {
		buf, err := codec.EncodeRequest(want)
		require.NoError(t, err)
		got, err := codec.DecodeRequest(buf)
		require.NoError(t, err)
		require.Equal(t, want.Command, got.Command)
		require.True(t, bytes.Equal(want.CacheName, got.CacheName))
		require.True(t, bytes.Equal(want.Key, got.Key))
		require.True(t, bytes.Equal(want.Value, got.Value))

		reEncoded, err := codec.EncodeRequest(got)
		require.NoError(t, err)
		require.True(t, bytes.Equal(buf, reEncoded))
	}
}

func TestResponseRoundTrip(t *testing.T) {
	cases := []codec.Response{
		{Kind: codec.KindPong},
		{Kind: codec.KindOk},
		{Kind: codec.KindNotFound},
		{Kind: codec.KindValue, Value: []byte("world")},
		{Kind: codec.KindValue, Value: []byte("")},
		{Kind: codec.KindError, Msg: []byte("boom")},
	}
	for _, want := range cases {
		buf := codec.EncodeResponse(want)
		got, err := codec.DecodeResponse(buf)
		require.NoError(t, err)
		require.Equal(t, want.Kind, got.Kind)
		require.True(t, bytes.Equal(want.Value, got.Value))
		require.True(t, bytes.Equal(want.Msg, got.Msg))
		require.True(t, bytes.Equal(buf, codec.EncodeResponse(got)))
	}
}

func TestDecodeRequestZeroCopy(t *testing.T) {
	buf, err := codec.EncodeRequest(codec.Request{
		Command: codec.CmdPut, CacheName: []byte("c1"), Key: []byte("k"), Value: []byte("v"),
	})
	require.NoError(t, err)

	req, err := codec.DecodeRequest(buf)
	require.NoError(t, err)

	// Mutating buf must be observable through the decoded slices: proof
	// DecodeRequest did not copy.
	idx := bytes.Index(buf, []byte("v"))
	require.GreaterOrEqual(t, idx, 0)
	buf[idx] = 'V'
	require.Equal(t, "V", string(req.Value))
}

func TestDecodeRequestErrors(t *testing.T) {
	cases := map[string][]byte{
		"empty buffer":       {},
		"unknown command":    {0xFF},
		"truncated get name": {byte(codec.CmdGet), 0x00, 0x00, 0x00, 0x05, 'a', 'b'},
		"truncated put name": append([]byte{byte(codec.CmdPut)}, u32(2)...),
	}
	for name, buf := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := codec.DecodeRequest(buf)
			require.Error(t, err)
			require.True(t, carbonerr.Is(err, carbonerr.KindProtocolError))
		})
	}
}

func TestDecodeRequestInvalidUTF8CacheName(t *testing.T) {
	buf := append([]byte{byte(codec.CmdGet)}, u32(2)...)
	buf = append(buf, 0xFF, 0xFE)
	buf = append(buf, u32(0)...)
	_, err := codec.DecodeRequest(buf)
	require.Error(t, err)
	require.True(t, carbonerr.Is(err, carbonerr.KindProtocolError))
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{byte(codec.CmdPing)}
	require.NoError(t, codec.WriteFrame(&buf, payload))

	got, err := codec.ReadFrame(&buf)
	require.NoError(t, err)
	require.True(t, bytes.Equal(payload, got))
}

func TestReadFrameRejectsOversized(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(u32(codec.MaxFrameBytes + 1))

	_, err := codec.ReadFrame(&buf)
	require.Error(t, err)
	require.True(t, carbonerr.Is(err, carbonerr.KindProtocolError))
}

func u32(n uint32) []byte {
	b := make([]byte, 4)
	putU32(b, n)
	return b
}

func putU32(b []byte, n uint32) {
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
}

func FuzzDecodeRequest(f *testing.F) {
	seed, _ := codec.EncodeRequest(codec.Request{Command: codec.CmdPut, CacheName: []byte("c1"), Key: []byte("k"), Value: []byte("v")})
	f.Add(seed)
	f.Add([]byte{byte(codec.CmdPing)})
	f.Add([]byte{})
	f.Add([]byte{0xFF})

	f.Fuzz(func(t *testing.T, buf []byte) {
		// DecodeRequest must never panic on arbitrary input; it either
		// succeeds or returns a ProtocolError.
		req, err := codec.DecodeRequest(buf)
		if err != nil {
			require.True(t, carbonerr.Is(err, carbonerr.KindProtocolError))
			return
		}
		_, err = codec.EncodeRequest(req)
		require.NoError(t, err)
	})
}
