// File: kernel/dispatch_test.go
// License: Apache-2.0

package kernel

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/momentics/vdtu/api"
)

func encodeWordsForTest(words ...uint64) []byte {
	buf := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:i*8+8], w)
	}
	return buf
}

func encodeRangeForTest(typ, start uint32, count uint64) []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], typ)
	binary.LittleEndian.PutUint32(buf[4:8], start)
	binary.LittleEndian.PutUint64(buf[8:16], count)
	return buf
}

func decodeReplyCodeForTest(t *testing.T, reply []byte) api.ErrorCode {
	t.Helper()
	if len(reply) != 8 {
		t.Fatalf("reply length = %d, want 8", len(reply))
	}
	return api.ErrorCode(binary.LittleEndian.Uint64(reply))
}

// TestScenario3CreateRevokePair: CREATEGATE at selector 5 -> OK; REVOKE
// at selector 5 -> OK; REVOKE at selector 99 -> OK (no-op).
func TestScenario3CreateRevokePair(t *testing.T) {
	k := New(1, 1, time.Millisecond, nil, nil)
	if _, err := k.NewTile(0, nil); err != nil {
		t.Fatal(err)
	}

	createPayload := encodeWordsForTest(5 /* tcap */, 0 /* dstcap */, 0x1234 /* label */, 0 /* epid */, 0 /* credits */)
	reply, err := k.Dispatch(0, VPE0, OpCreateGate, createPayload)
	if err != nil {
		t.Fatalf("creategate: %v", err)
	}
	if code := decodeReplyCodeForTest(t, reply); code != api.ErrCodeOK {
		t.Fatalf("creategate code = %v, want OK", code)
	}

	revokePayload := append(encodeRangeForTest(0, 5, 1), encodeWordsForTest(1 /* own */)...)
	reply, err = k.Dispatch(0, VPE0, OpRevoke, revokePayload)
	if err != nil {
		t.Fatalf("revoke sel 5: %v", err)
	}
	if code := decodeReplyCodeForTest(t, reply); code != api.ErrCodeOK {
		t.Fatalf("revoke sel 5 code = %v, want OK", code)
	}

	revoke99 := append(encodeRangeForTest(0, 99, 1), encodeWordsForTest(1)...)
	reply, err = k.Dispatch(0, VPE0, OpRevoke, revoke99)
	if err != nil {
		t.Fatalf("revoke sel 99: %v", err)
	}
	if code := decodeReplyCodeForTest(t, reply); code != api.ErrCodeOK {
		t.Fatalf("revoke sel 99 (no-op) code = %v, want OK", code)
	}
}

// TestScenario4CrossVPEDelegate: bootstrap installs VPE1's cap at
// VPE0.sel[2]; CREATEGATE at VPE0.sel[20]; EXCHANGE moves it to
// VPE1.sel[30]; REVOKE at VPE0.sel[20] tears down the delegated copy
// too.
func TestScenario4CrossVPEDelegate(t *testing.T) {
	k := New(1, 1, time.Millisecond, nil, nil)
	if _, err := k.NewTile(0, nil); err != nil {
		t.Fatal(err)
	}
	if err := Bootstrap(k, 0); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	createPayload := encodeWordsForTest(20, 0, 0xAAAA, 0, 0)
	reply, err := k.Dispatch(0, VPE0, OpCreateGate, createPayload)
	if err != nil {
		t.Fatalf("creategate: %v", err)
	}
	if code := decodeReplyCodeForTest(t, reply); code != api.ErrCodeOK {
		t.Fatalf("creategate code = %v, want OK", code)
	}

	exchangePayload := append(encodeWordsForTest(VPE1Selector),
		append(encodeRangeForTest(0, 20, 1),
			append(encodeRangeForTest(0, 30, 1), encodeWordsForTest(0 /* obtain=false */)...)...)...)
	reply, err = k.Dispatch(0, VPE0, OpExchange, exchangePayload)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if code := decodeReplyCodeForTest(t, reply); code != api.ErrCodeOK {
		t.Fatalf("exchange code = %v, want OK", code)
	}

	tile, _ := k.Tile(0)
	if tile.vpeTable(VPE1).Get(30) == nil {
		t.Fatal("expected delegated cap installed at VPE1.sel[30]")
	}

	revokePayload := append(encodeRangeForTest(0, 20, 1), encodeWordsForTest(1)...)
	reply, err = k.Dispatch(0, VPE0, OpRevoke, revokePayload)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if code := decodeReplyCodeForTest(t, reply); code != api.ErrCodeOK {
		t.Fatalf("revoke code = %v, want OK", code)
	}

	if tile.vpeTable(VPE1).Get(30) != nil {
		t.Fatal("expected delegated cap removed from VPE1.sel[30] after root revoke")
	}
	if tile.vpeTable(VPE0).Get(20) != nil {
		t.Fatal("expected root cap removed from VPE0.sel[20] after revoke")
	}
}
