package token

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.Claims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func TestDecodeExtractsID(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"id":       153,
		"username": "coach@example.com",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	claims, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.UserID != 153 {
		t.Errorf("UserID = %d, want 153", claims.UserID)
	}
	if claims.Username != "coach@example.com" {
		t.Errorf("Username = %q", claims.Username)
	}
	if claims.ExpiresBefore(time.Now()) {
		t.Error("fresh token reported as expired")
	}
}

func TestDecodeIgnoresSignature(t *testing.T) {
	// Tamper with the signature segment; decoding is unverified so the
	// claims must still come back.
	tok := signedToken(t, jwt.MapClaims{"id": 7})
	tok = tok[:len(tok)-4] + "AAAA"

	claims, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.UserID != 7 {
		t.Errorf("UserID = %d, want 7", claims.UserID)
	}
}

func TestDecodeMalformed(t *testing.T) {
	badJSON := base64.RawURLEncoding.EncodeToString([]byte("{not json"))

	tests := []struct {
		name       string
		credential string
	}{
		{"empty", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"invalid base64 payload", "aGVhZGVy.!!!.c2ln"},
		{"invalid JSON payload", "aGVhZGVy." + badJSON + ".c2ln"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.credential); !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q) = %v, want ErrMalformed", tt.credential, err)
			}
		})
	}
}

func TestDecodeMissingID(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"username": "nobody@example.com"})

	if _, err := Decode(tok); !errors.Is(err, ErrMalformed) {
		t.Errorf("Decode without id claim = %v, want ErrMalformed", err)
	}
}

func TestExpiresBefore(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	tok := signedToken(t, jwt.MapClaims{"id": 1, "exp": past.Unix()})

	claims, err := Decode(tok)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !claims.ExpiresBefore(time.Now()) {
		t.Error("expired token not reported as expired")
	}

	noExp := signedToken(t, jwt.MapClaims{"id": 1})
	claims, err = Decode(noExp)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if claims.ExpiresBefore(time.Now()) {
		t.Error("token without exp reported as expired")
	}
}
