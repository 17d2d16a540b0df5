package core

import "testing"

func TestLinkAddSegmentKeepsAscendingOrder(t *testing.T) {
	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeySymbolID, ValueU32: 1})
	l.AddSegment(LinkSegment{Key: LinkKeyFlags, ValueU8: LinkFlagEveriPay})
	l.AddSegment(LinkSegment{Key: LinkKeyDomain, ValueStr: "mydomain"})

	for i := 1; i < len(l.Segments); i++ {
		if l.Segments[i-1].Key >= l.Segments[i].Key {
			t.Fatalf("segments not strictly ascending at index %d", i)
		}
	}
}

func TestLinkAddSegmentReplacesExistingKey(t *testing.T) {
	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeySymbolID, ValueU32: 1})
	l.AddSegment(LinkSegment{Key: LinkKeySymbolID, ValueU32: 99})

	seg, ok := l.Get(LinkKeySymbolID)
	if !ok {
		t.Fatal("expected segment to be present")
	}
	if seg.ValueU32 != 99 {
		t.Fatalf("got %d, want 99 (replace, not append)", seg.ValueU32)
	}
	if len(l.Segments) != 1 {
		t.Fatalf("expected 1 segment after replace, got %d", len(l.Segments))
	}
}

func TestLinkEncodeDecodeRoundTrip(t *testing.T) {
	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeyFlags, ValueU8: LinkFlagVersion1 | LinkFlagEveriPay})
	l.AddSegment(LinkSegment{Key: LinkKeySymbolID, ValueU32: 7})
	l.AddSegment(LinkSegment{Key: LinkKeyDomain, ValueStr: "mydomain"})
	l.AddSegment(LinkSegment{Key: LinkKeyLinkID, ValueUUID: [16]byte{1, 2, 3}})

	priv, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	if err := l.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	text, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(text)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded.Segments) != len(l.Segments) {
		t.Fatalf("got %d segments, want %d", len(decoded.Segments), len(l.Segments))
	}
	seg, ok := decoded.Get(LinkKeyDomain)
	if !ok || seg.ValueStr != "mydomain" {
		t.Fatalf("domain segment mismatch after round trip: %+v", seg)
	}

	keys, err := decoded.RestoreKeys()
	if err != nil {
		t.Fatalf("RestoreKeys: %v", err)
	}
	if !keys.Contains(priv.Public()) {
		t.Fatal("expected the signer's key to be recoverable after round trip")
	}
}

func TestParseLinkURIStripsKnownPrefix(t *testing.T) {
	l := &Link{}
	l.AddSegment(LinkSegment{Key: LinkKeyFlags, ValueU8: LinkFlagVersion1})
	text, err := l.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := ParseLinkURI("https://jmzk.li/" + text)
	if err != nil {
		t.Fatalf("ParseLinkURI: %v", err)
	}
	if _, ok := decoded.Get(LinkKeyFlags); !ok {
		t.Fatal("expected flags segment to survive URI-prefixed parsing")
	}
}

func TestDecodeRejectsOutOfOrderSegments(t *testing.T) {
	// header says 2 segments, encoded with descending keys (91 then 42)
	b := []byte{0, 2, 91, 1, 'x', 42, 0, 0, 0, 1}
	if _, err := decodeSegments(b); err == nil {
		t.Fatal("expected error for out-of-order segment keys")
	}
}

func TestDecodeRejectsUnknownSegmentKey(t *testing.T) {
	b := []byte{0, 1, 200, 0}
	if _, err := decodeSegments(b); err == nil {
		t.Fatal("expected error for a segment key outside every defined range")
	}
}

func TestParseLinkIDFormatLinkIDRoundTrip(t *testing.T) {
	id, err := ParseLinkID("00112233-4455-6677-8899-aabbccddeeff")
	if err != nil {
		t.Fatalf("ParseLinkID: %v", err)
	}
	want := [16]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	if id != want {
		t.Fatalf("got %x, want %x", id, want)
	}
	if got := FormatLinkID(id); got != "00112233-4455-6677-8899-aabbccddeeff" {
		t.Fatalf("got %q, want the hyphenated UUID form", got)
	}
}

func TestParseLinkIDRejectsMalformedUUID(t *testing.T) {
	if _, err := ParseLinkID("not-a-uuid"); err == nil {
		t.Fatal("expected an error for a malformed link id")
	}
}

func TestNewLinkIDGeneratesDistinctIDs(t *testing.T) {
	a := NewLinkID()
	b := NewLinkID()
	if a == b {
		t.Fatal("expected two calls to NewLinkID to generate distinct ids")
	}
}

func TestBase42RoundTripPreservesLeadingZeroBytes(t *testing.T) {
	in := []byte{0, 0, 1, 2, 3}
	encoded := encodeBase42(in)
	decoded, err := decodeBase42(encoded)
	if err != nil {
		t.Fatalf("decodeBase42: %v", err)
	}
	if len(decoded) != len(in) {
		t.Fatalf("got %d bytes, want %d", len(decoded), len(in))
	}
	for i := range in {
		if decoded[i] != in[i] {
			t.Fatalf("byte %d: got %d, want %d", i, decoded[i], in[i])
		}
	}
}
