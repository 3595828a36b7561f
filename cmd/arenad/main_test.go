package main

import (
	"strings"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestParseSeedKey(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "hex", raw: strings.Repeat("ab", 32), wantLen: 32},
		{name: "prefixed and padded", raw: " 0x" + strings.Repeat("01", 16) + "\n", wantLen: 16},
		{name: "too short", raw: "abcd", wantErr: true},
		{name: "not hex", raw: strings.Repeat("zz", 16), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := parseSeedKey(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSeedKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(key) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(key), tt.wantLen)
			}
		})
	}
}

func TestParseOracleKey(t *testing.T) {
	const raw = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	want, err := ethcrypto.HexToECDSA(raw)
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []string{raw, "0x" + raw} {
		key, err := parseOracleKey(in)
		if err != nil {
			t.Fatalf("parseOracleKey(%q) error = %v", in, err)
		}
		if ethcrypto.PubkeyToAddress(key.PublicKey) != ethcrypto.PubkeyToAddress(want.PublicKey) {
			t.Errorf("parseOracleKey(%q) returned a different key", in)
		}
	}
	if _, err := parseOracleKey("1234"); err == nil {
		t.Error("parseOracleKey accepted a short key")
	}
}
