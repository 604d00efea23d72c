package message

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewOptionDef(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		minLen  int
		maxLen  int
		wantErr bool
	}{
		{name: "valid", id: 2048, minLen: 0, maxLen: 8},
		{name: "max id", id: math.MaxUint16, minLen: 0, maxLen: math.MaxUint16},
		{name: "id too big", id: math.MaxUint16 + 1, maxLen: 1, wantErr: true},
		{name: "negative id", id: -1, maxLen: 1, wantErr: true},
		{name: "negative min", id: 1, minLen: -1, maxLen: 1, wantErr: true},
		{name: "max too big", id: 1, maxLen: math.MaxUint16 + 1, wantErr: true},
		{name: "max below min", id: 1, minLen: 4, maxLen: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewOptionDef(tt.id, tt.minLen, tt.maxLen, false, ValueOpaque, nil)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOptionDef)
				return
			}
			require.NoError(t, err)
			require.Equal(t, OptionID(tt.id), d.ID)
		})
	}
}

func TestOptionIDBits(t *testing.T) {
	tests := []struct {
		id         OptionID
		critical   bool
		unsafe     bool
		noCacheKey bool
	}{
		{id: IfMatch, critical: true},
		{id: URIHost, critical: true, unsafe: true},
		{id: ETag},
		{id: MaxAge, unsafe: true},
		{id: Block1, critical: true, unsafe: true},
		{id: Size2, noCacheKey: true},
		{id: Size1, noCacheKey: true},
		{id: ProxyScheme, critical: true, unsafe: true},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			d, ok := DefaultRegistry().Lookup(tt.id)
			require.True(t, ok)
			require.Equal(t, tt.critical, d.IsCritical())
			require.Equal(t, tt.unsafe, d.IsUnsafe())
			require.Equal(t, tt.noCacheKey, d.NoCacheKey())
		})
	}
}

func TestRegistryOverride(t *testing.T) {
	r := DefaultRegistry()
	_, ok := r.Lookup(65001)
	require.False(t, ok)

	def, err := NewOptionDef(65001, 1, 4, false, ValueUint, nil)
	require.NoError(t, err)
	clone := r.Clone()
	r.Register(def)
	got, ok := r.Lookup(65001)
	require.True(t, ok)
	require.Equal(t, def, got)
	_, ok = clone.Lookup(65001)
	require.False(t, ok)
	_, ok = DefaultRegistry().Lookup(65001)
	require.False(t, ok)

	require.NoError(t, r.Validate(Option{ID: 65001, Value: []byte{1}}))
	require.Error(t, r.Validate(Option{ID: 65001}))
	require.NoError(t, r.Validate(Option{ID: 65003}))
}

func TestTypedOptionConstructors(t *testing.T) {
	o, err := NewUintOption(MaxAge, 0)
	require.NoError(t, err)
	require.Empty(t, o.Value)
	o, err = NewUintOption(URIPort, 5683)
	require.NoError(t, err)
	require.Equal(t, []byte{0x16, 0x33}, o.Value)
	_, err = NewUintOption(URIPort, 70000)
	var optErr *OptionError
	require.ErrorAs(t, err, &optErr)
	require.Equal(t, []OptionID{URIPort}, optErr.IDs)

	_, err = NewStringOption(URIHost, "")
	require.ErrorIs(t, err, ErrInvalidValueLength)
	_, err = NewOpaqueOption(ETag, make([]byte, 9))
	require.Error(t, err)
	o, err = NewEmptyOption(IfNoneMatch)
	require.NoError(t, err)
	require.True(t, o.Equal(Option{ID: IfNoneMatch}))
	require.False(t, o.Equal(Option{ID: IfMatch}))
	require.Equal(t, IfNoneMatch, o.Key())
}

func TestRegistryEqual(t *testing.T) {
	a := Option{ID: 65001, Value: []byte{0, 5}}
	b := Option{ID: 65001, Value: []byte{5}}
	r := DefaultRegistry()
	require.False(t, r.Equal(a, b))
	require.False(t, a.Equal(b))

	def, err := NewOptionDef(65001, 0, 4, false, ValueUint, nil)
	require.NoError(t, err)
	r.Register(def)
	require.True(t, r.Equal(a, b))
	require.False(t, r.Equal(a, Option{ID: 65001, Value: []byte{6}}))
	require.False(t, r.Equal(a, Option{ID: 65002, Value: []byte{0, 5}}))
}
