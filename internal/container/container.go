// Package container implements the on-disk backup archive format: a fixed
// header, a sequence of typed body blocks, and a trailing CRC-32
// (zlib/IEEE polynomial, Go's hash/crc32 default table) of the
// concatenated block payloads. The packed little-endian layout is written
// and read explicitly with encoding/binary, field by field.
package container

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/taosdata/tsbackup-core/internal/errkind"
)

const (
	// Magic is the 4-byte ASCII magic. The fifth byte of the historical
	// "TAOSZ" literal is carried by the version field, not stored here.
	Magic = "TAOS"
	// FormatVersion is 0o10 (octal 10 = decimal 8) from TAOSX_HEADER_VERSION.
	FormatVersion = uint16(0o10)
	// CommitIDLen is the fixed, zero-padded width of both commit-id fields.
	CommitIDLen = 40
	// ObjNameMaxLen bounds Header.ObjName to what the u8 obj_name_len field
	// can encode; longer names are rejected rather than silently truncated.
	ObjNameMaxLen = 255
)

// Header is the fixed-size archive header.
type Header struct {
	APICommitID    string
	ServerCommitID string
	ObjName        string
	Timestamp      int64 // milliseconds since Unix epoch
	VGID           int8
	FileSeq        uint32
}

// Block is one typed body entry. Type is caller-defined (1, 2, or 3);
// MsgType further tags the payload within a type.
type Block struct {
	Type    uint8
	MsgType uint16
	Body    []byte
}

func padded(s string, n int) ([]byte, error) {
	if len(s) > n {
		return nil, fmt.Errorf("container: field exceeds %d bytes: %q", n, s)
	}
	b := make([]byte, n)
	copy(b, s)
	return b, nil
}

// Write serializes hdr and blocks to w, followed by the CRC-32 trailer.
// The CRC covers the concatenated block payloads only, not the block
// headers.
func Write(w io.Writer, hdr Header, blocks []Block) error {
	if len(hdr.ObjName) > ObjNameMaxLen {
		return errkind.New(errkind.InvalidParam, "obj_name exceeds max length")
	}

	api, err := padded(hdr.APICommitID, CommitIDLen)
	if err != nil {
		return errkind.Wrap(errkind.InvalidParam, err, "api_commit_id")
	}
	server, err := padded(hdr.ServerCommitID, CommitIDLen)
	if err != nil {
		return errkind.Wrap(errkind.InvalidParam, err, "server_commit_id")
	}

	if _, err := w.Write([]byte(Magic)); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write magic")
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write version")
	}
	if _, err := w.Write(api); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write api_commit_id")
	}
	if _, err := w.Write(server); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write server_commit_id")
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(len(hdr.ObjName))); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write obj_name_len")
	}
	if _, err := w.Write([]byte(hdr.ObjName)); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write obj_name")
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Timestamp); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write timestamp")
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.VGID); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write vg_id")
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.FileSeq); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write file_seq")
	}

	crc := crc32.NewIEEE()
	for i, b := range blocks {
		if err := binary.Write(w, binary.LittleEndian, b.Type); err != nil {
			return errkind.Wrap(errkind.FileIO, err, fmt.Sprintf("write block %d type", i))
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(b.Body))); err != nil {
			return errkind.Wrap(errkind.FileIO, err, fmt.Sprintf("write block %d msg_len", i))
		}
		if err := binary.Write(w, binary.LittleEndian, b.MsgType); err != nil {
			return errkind.Wrap(errkind.FileIO, err, fmt.Sprintf("write block %d msg_type", i))
		}
		if _, err := w.Write(b.Body); err != nil {
			return errkind.Wrap(errkind.FileIO, err, fmt.Sprintf("write block %d body", i))
		}
		crc.Write(b.Body)
	}

	if err := binary.Write(w, binary.LittleEndian, crc.Sum32()); err != nil {
		return errkind.Wrap(errkind.FileIO, err, "write crc trailer")
	}
	return nil
}

// Read parses a container previously produced by Write and validates its
// CRC-32 trailer. The whole stream is buffered in memory; no size limit is
// applied while reading.
func Read(r io.Reader) (Header, []Block, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Header{}, nil, errkind.Wrap(errkind.FileIO, err, "read container")
	}
	buf := bytes.NewReader(data)

	var hdr Header
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(buf, magic); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read magic")
	}
	if string(magic) != Magic {
		return Header{}, nil, errkind.New(errkind.DataCorruption, fmt.Sprintf("bad magic %q", magic))
	}
	var version uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read version")
	}

	api := make([]byte, CommitIDLen)
	if _, err := io.ReadFull(buf, api); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read api_commit_id")
	}
	hdr.APICommitID = string(bytes.TrimRight(api, "\x00"))

	server := make([]byte, CommitIDLen)
	if _, err := io.ReadFull(buf, server); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read server_commit_id")
	}
	hdr.ServerCommitID = string(bytes.TrimRight(server, "\x00"))

	var objNameLen uint8
	if err := binary.Read(buf, binary.LittleEndian, &objNameLen); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read obj_name_len")
	}
	objName := make([]byte, objNameLen)
	if _, err := io.ReadFull(buf, objName); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read obj_name")
	}
	hdr.ObjName = string(objName)

	if err := binary.Read(buf, binary.LittleEndian, &hdr.Timestamp); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read timestamp")
	}
	if err := binary.Read(buf, binary.LittleEndian, &hdr.VGID); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read vg_id")
	}
	if err := binary.Read(buf, binary.LittleEndian, &hdr.FileSeq); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read file_seq")
	}

	if buf.Len() < 4 {
		return Header{}, nil, errkind.New(errkind.DataCorruption, "truncated container: no room for crc trailer")
	}

	crc := crc32.NewIEEE()
	var blocks []Block
	for buf.Len() > 4 {
		var typ uint8
		if err := binary.Read(buf, binary.LittleEndian, &typ); err != nil {
			return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read block type")
		}
		var msgLen uint32
		if err := binary.Read(buf, binary.LittleEndian, &msgLen); err != nil {
			return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read block msg_len")
		}
		var msgType uint16
		if err := binary.Read(buf, binary.LittleEndian, &msgType); err != nil {
			return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read block msg_type")
		}
		if uint32(buf.Len())-4 < msgLen {
			return Header{}, nil, errkind.New(errkind.DataCorruption, "block body exceeds remaining container length")
		}
		body := make([]byte, msgLen)
		if _, err := io.ReadFull(buf, body); err != nil {
			return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read block body")
		}
		crc.Write(body)
		blocks = append(blocks, Block{Type: typ, MsgType: msgType, Body: body})
	}

	var trailer uint32
	if err := binary.Read(buf, binary.LittleEndian, &trailer); err != nil {
		return Header{}, nil, errkind.Wrap(errkind.DataCorruption, err, "read crc trailer")
	}
	if trailer != crc.Sum32() {
		return Header{}, nil, errkind.New(errkind.DataCorruption,
			fmt.Sprintf("crc mismatch: file has %#x, computed %#x", trailer, crc.Sum32()))
	}

	return hdr, blocks, nil
}
