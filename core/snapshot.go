package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Snapshot format history, carried from
// original_source/libraries/chain/include/evt/chain/snapshot.hpp:
//
//	Version 1: initial version with string-identified sections and rows
//	Version 2: token database upgrades to a binary format
//	Version 3: sections use a single Zstd stream per section
const (
	snapshotMagic   uint32 = 0x30510550
	snapshotVersion uint32 = 3
)

const sectionTerminator uint64 = 0xFFFFFFFFFFFFFFFF

var snapshotTokenTypes = []TokenType{
	TokenTypeDomain, TokenTypeToken, TokenTypeGroup, TokenTypeSuspend,
	TokenTypeLock, TokenTypeFungible, TokenTypeProdVote, TokenTypeJmzkLink,
	TokenTypePsvBonus, TokenTypePsvBonusDist, TokenTypeValidator,
	TokenTypeStakePool, TokenTypeScript,
}

func tokenTypeSectionName(t TokenType) string {
	switch t {
	case TokenTypeDomain:
		return "domain"
	case TokenTypeToken:
		return "token"
	case TokenTypeGroup:
		return "group"
	case TokenTypeSuspend:
		return "suspend"
	case TokenTypeLock:
		return "lock"
	case TokenTypeFungible:
		return "fungible"
	case TokenTypeProdVote:
		return "prodvote"
	case TokenTypeJmzkLink:
		return "jmzklink"
	case TokenTypePsvBonus:
		return "psvbonus"
	case TokenTypePsvBonusDist:
		return "psvbonus_dist"
	case TokenTypeValidator:
		return "validator"
	case TokenTypeStakePool:
		return "stakepool"
	case TokenTypeScript:
		return "script"
	default:
		return fmt.Sprintf("token_type_%d", t)
	}
}

func sectionNameToTokenType(name string) (TokenType, bool) {
	for _, t := range snapshotTokenTypes {
		if tokenTypeSectionName(t) == name {
			return t, true
		}
	}
	return 0, false
}

const assetSectionName = "asset"

// wireTokenRow/wireAssetRow are the JSON-packed row shapes written inside a
// section's decompressed payload.
type wireTokenRow struct {
	Domain string `json:"domain"`
	Key    string `json:"key"`
	Value  []byte `json:"value"`
}

type wireAssetRow struct {
	Addr  []byte `json:"addr"`
	SymID uint64 `json:"sym_id"`
	Value []byte `json:"value"`
}

// WriteSnapshot serializes db's full state to w in the binary section
// format: magic, version, then one section per populated token type plus
// the asset namespace, terminated by sectionTerminator.
func WriteSnapshot(w io.Writer, db *TDB) error {
	if err := binary.Write(w, binary.LittleEndian, snapshotMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, snapshotVersion); err != nil {
		return err
	}
	for _, typ := range snapshotTokenTypes {
		rows := db.dumpTokens(typ)
		if len(rows) == 0 {
			continue
		}
		packed := make([][]byte, len(rows))
		for i, r := range rows {
			b, err := json.Marshal(wireTokenRow{Domain: r.Domain.String(), Key: r.Key.String(), Value: r.Value})
			if err != nil {
				return err
			}
			packed[i] = b
		}
		if err := writeSection(w, tokenTypeSectionName(typ), uint64(len(rows)), packed); err != nil {
			return err
		}
	}
	assets := db.dumpAssets()
	if len(assets) > 0 {
		packed := make([][]byte, len(assets))
		for i, r := range assets {
			b, err := json.Marshal(wireAssetRow{Addr: r.Addr, SymID: r.SymID, Value: r.Value})
			if err != nil {
				return err
			}
			packed[i] = b
		}
		if err := writeSection(w, assetSectionName, uint64(len(assets)), packed); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, sectionTerminator)
}

func writeSection(w io.Writer, name string, rowCount uint64, rows [][]byte) error {
	var raw bytes.Buffer
	for _, r := range rows {
		if err := binary.Write(&raw, binary.LittleEndian, uint32(len(r))); err != nil {
			return err
		}
		raw.Write(r)
	}
	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed)
	if err != nil {
		return err
	}
	if _, err := zw.Write(raw.Bytes()); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(compressed.Len())); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, rowCount); err != nil {
		return err
	}
	if _, err := w.Write(append([]byte(name), 0)); err != nil {
		return err
	}
	_, err = w.Write(compressed.Bytes())
	return err
}

// ReadSnapshot rebuilds a fresh TDB from r's binary section stream.
func ReadSnapshot(r io.Reader) (*TDB, error) {
	var magic, version uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, err
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("%w: unexpected snapshot magic %#x", ErrInvalidBinary, magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", ErrInvalidBinary, version)
	}
	db := NewTDB()
	for {
		var size uint64
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		if size == sectionTerminator {
			return db, nil
		}
		var rowCount uint64
		if err := binary.Read(r, binary.LittleEndian, &rowCount); err != nil {
			return nil, err
		}
		name, err := readNulString(r)
		if err != nil {
			return nil, err
		}
		compressed := make([]byte, size)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return nil, err
		}
		if err := loadSection(db, name, rowCount, compressed); err != nil {
			return nil, err
		}
	}
}

func readNulString(r io.Reader) (string, error) {
	var buf bytes.Buffer
	one := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, one); err != nil {
			return "", err
		}
		if one[0] == 0 {
			return buf.String(), nil
		}
		buf.WriteByte(one[0])
	}
}

func loadSection(db *TDB, name string, rowCount uint64, compressed []byte) error {
	zr, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return err
	}
	buf := bytes.NewReader(raw)
	if name == assetSectionName {
		for i := uint64(0); i < rowCount; i++ {
			var n uint32
			if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
				return err
			}
			rb := make([]byte, n)
			if _, err := io.ReadFull(buf, rb); err != nil {
				return err
			}
			row, err := unmarshalJSON[wireAssetRow](rb)
			if err != nil {
				return err
			}
			db.loadAssetRaw(row.Addr, row.SymID, row.Value)
		}
		return nil
	}
	typ, ok := sectionNameToTokenType(name)
	if !ok {
		return fmt.Errorf("%w: unknown snapshot section %q", ErrInvalidBinary, name)
	}
	for i := uint64(0); i < rowCount; i++ {
		var n uint32
		if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
			return err
		}
		rb := make([]byte, n)
		if _, err := io.ReadFull(buf, rb); err != nil {
			return err
		}
		row, err := unmarshalJSON[wireTokenRow](rb)
		if err != nil {
			return err
		}
		domain, err := ParseName128(row.Domain)
		if err != nil {
			return err
		}
		key, err := ParseName128(row.Key)
		if err != nil {
			return err
		}
		db.loadTokenRaw(typ, domain, key, row.Value)
	}
	return nil
}

// debugSnapshot is the JSON variant's top-level shape — human-readable,
// not consumed by ReadSnapshot. It exists for debugging and is not a
// production format.
type debugSnapshot struct {
	Version  uint32                     `json:"version"`
	Sections map[string][]wireTokenRow  `json:"sections"`
	Assets   []wireAssetRow             `json:"assets,omitempty"`
}

// WriteDebugSnapshot dumps db as indented JSON for human inspection.
func WriteDebugSnapshot(w io.Writer, db *TDB) error {
	out := debugSnapshot{Version: snapshotVersion, Sections: make(map[string][]wireTokenRow)}
	for _, typ := range snapshotTokenTypes {
		rows := db.dumpTokens(typ)
		if len(rows) == 0 {
			continue
		}
		wrows := make([]wireTokenRow, len(rows))
		for i, r := range rows {
			wrows[i] = wireTokenRow{Domain: r.Domain.String(), Key: r.Key.String(), Value: r.Value}
		}
		out.Sections[tokenTypeSectionName(typ)] = wrows
	}
	for _, r := range db.dumpAssets() {
		out.Assets = append(out.Assets, wireAssetRow{Addr: r.Addr, SymID: r.SymID, Value: r.Value})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
