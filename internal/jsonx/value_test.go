package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"object string", `{"publicKey":"PUB2"}`, map[string]any{"publicKey": "PUB2"}},
		{"array string", `[1,"a"]`, []any{float64(1), "a"}},
		{"padded object", `  {"a":true} `, map[string]any{"a": true}},
		{"plain string", "a@b.com", "a@b.com"},
		{"invalid json stays string", `{not json}`, `{not json}`},
		{"number string untouched", "42", "42"},
		{"already decoded", map[string]any{"x": 1.0}, map[string]any{"x": 1.0}},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Decode(got), "idempotent")
		})
	}
}

func TestDecodeStrict(t *testing.T) {
	_, err := DecodeStrict(`{broken`)
	assert.NoError(t, err, "not bracketed on both ends, so not JSON-shaped")

	_, err = DecodeStrict(`{broken}`)
	assert.Error(t, err)

	v, err := DecodeStrict(`{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, v)
}

func TestEncode(t *testing.T) {
	s, err := Encode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw", s)

	s, err = Encode(map[string]any{"publicKey": "P"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"publicKey":"P"}`, s)

	s, err = Encode(12.5)
	require.NoError(t, err)
	assert.Equal(t, "12.5", s)

	_, err = Encode(make(chan int))
	require.Error(t, err)
}

func TestNormalize(t *testing.T) {
	type bundle struct {
		PublicKey string `json:"publicKey"`
		N         int    `json:"n"`
	}
	v, err := Normalize(bundle{PublicKey: "P", N: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"publicKey": "P", "n": 2.0}, v)

	v, err = Normalize("s")
	require.NoError(t, err)
	assert.Equal(t, "s", v)
}

func TestExtract(t *testing.T) {
	rec := map[string]any{
		"user": map[string]any{"name": "Alice"},
		"keys": `{"publicKey":"NESTED"}`,
		"salt": nil,
	}

	got, ok := Extract(rec, "publicKey", "user.publicKey", "keys.publicKey")
	require.True(t, ok)
	assert.Equal(t, "NESTED", got)

	assert.Equal(t, "Alice", ExtractString(rec, "displayName", "user.name"))

	_, ok = Extract(rec, "salt", "user.salt")
	assert.False(t, ok, "nil values do not count")

	_, ok = Extract("not an object", "a")
	assert.False(t, ok)

	got, ok = Extract(`{"a":{"b":{"c":3}}}`, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 3.0, got)
}
