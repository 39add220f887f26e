package container

import (
	"bytes"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taosdata/tsbackup-core/internal/errkind"
)

func TestWriteReadRoundTrip(t *testing.T) {
	hdr := Header{
		APICommitID:    "abc123",
		ServerCommitID: "def456",
		ObjName:        "db1",
		Timestamp:      1234567890123,
		VGID:           2,
		FileSeq:        7,
	}
	blocks := []Block{
		{Type: 1, MsgType: 10, Body: []byte("aa")},
		{Type: 2, MsgType: 20, Body: []byte("bbbb")},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, hdr, blocks))

	gotHdr, gotBlocks, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, hdr, gotHdr)
	require.Equal(t, blocks, gotBlocks)
}

func TestCRCMatchesConcatenatedPayloadsOnly(t *testing.T) {
	hdr := Header{ObjName: "db1"}
	blocks := []Block{
		{Type: 1, MsgType: 0, Body: []byte("aa")},
		{Type: 2, MsgType: 0, Body: []byte("bbbb")},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, hdr, blocks))

	want := crc32.ChecksumIEEE([]byte("aabbbb"))
	got := buf.Bytes()[len(buf.Bytes())-4:]
	gotCRC := uint32(got[0]) | uint32(got[1])<<8 | uint32(got[2])<<16 | uint32(got[3])<<24
	require.Equal(t, want, gotCRC)
}

func TestReadDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, Header{ObjName: "x"}, []Block{{Type: 1, Body: []byte("z")}}))

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, _, err := Read(bytes.NewReader(corrupted))
	require.Error(t, err)
	require.Equal(t, errkind.DataCorruption, errkind.Of(err))
}

func TestWriteRejectsOversizedObjName(t *testing.T) {
	var buf bytes.Buffer
	long := make([]byte, ObjNameMaxLen+1)
	err := Write(&buf, Header{ObjName: string(long)}, nil)
	require.Error(t, err)
	require.Equal(t, errkind.InvalidParam, errkind.Of(err))
}
