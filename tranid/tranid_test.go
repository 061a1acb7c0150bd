package tranid

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testXid struct {
	fid   int32
	gtrid []byte
	bqual []byte
}

func (x testXid) FormatID() int32             { return x.fid }
func (x testXid) GlobalTransactionID() []byte { return x.gtrid }
func (x testXid) BranchQualifier() []byte     { return x.bqual }

func TestRoundTrip(t *testing.T) {
	fresh, err := FromXid(testXid{fid: 42, gtrid: []byte("global-1"), bqual: []byte{0x00, 0xff, 0x10}})
	require.NoError(t, err)

	parsed, err := Parse(fresh.String())
	require.NoError(t, err)
	assert.Equal(t, fresh, parsed)
	assert.Equal(t, int32(42), parsed.FormatID())
	assert.Equal(t, []byte("global-1"), parsed.GlobalTransactionID())
	assert.Equal(t, []byte{0x00, 0xff, 0x10}, parsed.BranchQualifier())

	// parsed-from-storage instances survive a second trip as well
	again, err := Parse(parsed.String())
	require.NoError(t, err)
	assert.Equal(t, parsed, again)
	assert.Equal(t, fresh.String(), again.String())
}

func TestEqualityIsContentBased(t *testing.T) {
	g := []byte("gtrid")
	a, err := New(7, g, nil)
	require.NoError(t, err)

	// mutating the caller's slice must not change the id
	g[0] = 'X'
	b, err := New(7, []byte("gtrid"), []byte{})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	m := map[PersistentTranID]int{a: 1}
	assert.Equal(t, 1, m[b])
}

func TestNegativeFormatID(t *testing.T) {
	id, err := New(-1, []byte{1}, []byte{2})
	require.NoError(t, err)
	assert.Equal(t, "ffffffff:01:02", id.String())

	parsed, err := Parse("FFFFFFFF:01:02")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestGenerate(t *testing.T) {
	a := Generate()
	b := Generate()
	assert.NotEqual(t, a, b)
	assert.True(t, a.IsLocal())
	assert.False(t, a.IsZero())
	assert.Len(t, a.GlobalTransactionID(), 16)

	parsed, err := Parse(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"0000002a:00",
		"2a:676c6f62616c:",
		"0000002a:zz:",
		"0000002a:00:zz",
		"0000002a::",
		"0000002a:" + strings.Repeat("00", MaxGtridSize+1) + ":",
	} {
		_, err := Parse(s)
		assert.Error(t, err, "Parse(%q)", s)
	}
}

func TestSizeLimits(t *testing.T) {
	_, err := New(1, bytes.Repeat([]byte{1}, MaxGtridSize), bytes.Repeat([]byte{2}, MaxBqualSize))
	require.NoError(t, err)

	_, err = New(1, []byte{1}, bytes.Repeat([]byte{2}, MaxBqualSize+1))
	assert.Error(t, err)
}

func TestTextMarshalling(t *testing.T) {
	id, err := New(3, []byte("abc"), []byte("d"))
	require.NoError(t, err)

	data, err := json.Marshal(map[string]PersistentTranID{"id": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"00000003:616263:64"}`, string(data))

	var out map[string]PersistentTranID
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, id, out["id"])
}
