package codec

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestDecodeTxEnvelope_OK(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"type":  "bank/mint",
		"value": map[string]any{"to": "alice", "amount": 123},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Type != "bank/mint" {
		t.Fatalf("unexpected type: %q", env.Type)
	}

	var v map[string]any
	if err := json.Unmarshal(env.Value, &v); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if v["to"] != "alice" {
		t.Fatalf("unexpected value.to: %#v", v["to"])
	}
}

func TestDecodeTxEnvelope_SignedFieldsPreserved(t *testing.T) {
	sig := bytes.Repeat([]byte{7}, 64)
	b, err := json.Marshal(map[string]any{
		"type":   "bank/send",
		"value":  map[string]any{"from": "alice", "to": "bob", "amount": 1},
		"nonce":  "42",
		"signer": "alice",
		"sig":    sig,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Nonce != "42" || env.Signer != "alice" || !bytes.Equal(env.Sig, sig) {
		t.Fatalf("signed fields lost: nonce=%q signer=%q sig=%d bytes", env.Nonce, env.Signer, len(env.Sig))
	}
}

func TestDecodeTxEnvelope_MissingType(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"value": map[string]any{"x": 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeTxEnvelope(b)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeTxEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeTxEnvelope([]byte("{not json"))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDealProposeTx_FieldTags(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"viewer":   "bob",
		"gameId":   uint64(1),
		"guessId":  uint64(2),
		"owner":    "alice",
		"shareBps": uint32(3000),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var msg DealProposeTx
	if err := json.Unmarshal(b, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Viewer != "bob" || msg.GameID != 1 || msg.GuessID != 2 || msg.Owner != "alice" || msg.ShareBps != 3000 {
		t.Fatalf("unexpected decode: %+v", msg)
	}
}
