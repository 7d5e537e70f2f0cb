package item

import (
	"bytes"
	"testing"
)

func TestItemFromBytesDeterministic(t *testing.T) {
	a, err := FromBytes([]byte("alice"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	b, err := FromBytes([]byte("alice"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if !a.Equal(b) {
		t.Fatal("FromBytes is not deterministic")
	}

	c, err := FromBytes([]byte("bob"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if a.Equal(c) {
		t.Fatal("distinct inputs produced equal items")
	}
}

func TestItemBytesRoundTrip(t *testing.T) {
	it, err := FromBytes([]byte("carol"))
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	buf := it.Bytes()
	back := FromRawBytes(buf[:])
	if !it.Equal(back) {
		t.Fatal("Bytes/FromRawBytes round trip mismatch")
	}
}

func TestBitstringBitAccess(t *testing.T) {
	data := []byte{0b10110010, 0b00000001}
	bs, err := NewBitstring(data, 9)
	if err != nil {
		t.Fatalf("NewBitstring: %v", err)
	}
	want := []int{0, 1, 0, 0, 1, 1, 0, 1, 1}
	for i, w := range want {
		if got := bs.Bit(i); got != w {
			t.Fatalf("Bit(%d) = %d, want %d", i, got, w)
		}
	}
}

func TestEncryptDecryptLabel(t *testing.T) {
	var key LabelKey
	for i := range key {
		key[i] = byte(i)
	}
	plaintext := []byte("a sixteen byte label!!")

	enc, err := EncryptLabel(key, plaintext, 12)
	if err != nil {
		t.Fatalf("EncryptLabel: %v", err)
	}
	if len(enc) != 12+len(plaintext) {
		t.Fatalf("encrypted label length = %d, want %d", len(enc), 12+len(plaintext))
	}

	dec, err := DecryptLabel(key, enc, 12)
	if err != nil {
		t.Fatalf("DecryptLabel: %v", err)
	}
	if !bytes.Equal(dec, plaintext) {
		t.Fatalf("DecryptLabel = %q, want %q", dec, plaintext)
	}
}

func TestEncryptLabelFreshNonce(t *testing.T) {
	var key LabelKey
	plaintext := []byte("label")

	a, err := EncryptLabel(key, plaintext, 8)
	if err != nil {
		t.Fatalf("EncryptLabel: %v", err)
	}
	b, err := EncryptLabel(key, plaintext, 8)
	if err != nil {
		t.Fatalf("EncryptLabel: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions with fresh nonces produced identical ciphertext")
	}
}

func TestDecryptLabelWrongKeyFails(t *testing.T) {
	var key1, key2 LabelKey
	key2[0] = 1
	plaintext := []byte("secret label")

	enc, err := EncryptLabel(key1, plaintext, 8)
	if err != nil {
		t.Fatalf("EncryptLabel: %v", err)
	}
	dec, err := DecryptLabel(key2, enc, 8)
	if err != nil {
		t.Fatalf("DecryptLabel: %v", err)
	}
	if bytes.Equal(dec, plaintext) {
		t.Fatal("decryption under the wrong key should not recover the plaintext")
	}
}
