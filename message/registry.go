package message

import (
	"fmt"
	"math"
	"sync"

	"golang.org/x/exp/maps"
)

// ValueFormat is the option value format (RFC7252 section 3.2).
type ValueFormat uint8

const (
	ValueUnknown ValueFormat = iota
	ValueEmpty
	ValueOpaque
	ValueUint
	ValueString
)

func (f ValueFormat) String() string {
	switch f {
	case ValueEmpty:
		return "empty"
	case ValueOpaque:
		return "opaque"
	case ValueUint:
		return "uint"
	case ValueString:
		return "string"
	}
	return "unknown"
}

// OptionDef describes one kind of option. The critical, unsafe and
// no-cache-key properties follow from the ID.
type OptionDef struct {
	ID         OptionID
	MinLen     int
	MaxLen     int
	Repeatable bool
	Format     ValueFormat
	Default    []byte
}

// NewOptionDef validates the bounds of an option definition.
func NewOptionDef(id int, minLen, maxLen int, repeatable bool, format ValueFormat, defaultValue []byte) (OptionDef, error) {
	switch {
	case id < 0 || id > math.MaxUint16:
		return OptionDef{}, fmt.Errorf("%w: id %v out of range", ErrInvalidOptionDef, id)
	case minLen < 0:
		return OptionDef{}, fmt.Errorf("%w: negative min length %v", ErrInvalidOptionDef, minLen)
	case maxLen > math.MaxUint16:
		return OptionDef{}, fmt.Errorf("%w: max length %v out of range", ErrInvalidOptionDef, maxLen)
	case maxLen < minLen:
		return OptionDef{}, fmt.Errorf("%w: max length %v is less than min length %v", ErrInvalidOptionDef, maxLen, minLen)
	}
	return OptionDef{
		ID:         OptionID(id),
		MinLen:     minLen,
		MaxLen:     maxLen,
		Repeatable: repeatable,
		Format:     format,
		Default:    defaultValue,
	}, nil
}

func (d OptionDef) IsCritical() bool { return d.ID.IsCritical() }
func (d OptionDef) IsUnsafe() bool   { return d.ID.IsUnsafe() }
func (d OptionDef) NoCacheKey() bool { return d.ID.NoCacheKey() }

// Validate checks the length of the value against the definition.
func (d OptionDef) Validate(value []byte) error {
	if len(value) < d.MinLen || len(value) > d.MaxLen {
		return newOptionError(d.ID, fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidValueLength, len(value), d.MinLen, d.MaxLen))
	}
	return nil
}

func mustOptionDef(id OptionID, minLen, maxLen int, repeatable bool, format ValueFormat, defaultValue []byte) OptionDef {
	d, err := NewOptionDef(int(id), minLen, maxLen, repeatable, format, defaultValue)
	if err != nil {
		panic(err)
	}
	return d
}

var defaultDefs = map[OptionID]OptionDef{
	IfMatch:       mustOptionDef(IfMatch, 0, 8, true, ValueOpaque, nil),
	URIHost:       mustOptionDef(URIHost, 1, 255, false, ValueString, nil),
	ETag:          mustOptionDef(ETag, 1, 8, true, ValueOpaque, nil),
	IfNoneMatch:   mustOptionDef(IfNoneMatch, 0, 0, false, ValueEmpty, nil),
	Observe:       mustOptionDef(Observe, 0, 3, false, ValueUint, nil),
	URIPort:       mustOptionDef(URIPort, 0, 2, false, ValueUint, nil),
	LocationPath:  mustOptionDef(LocationPath, 0, 255, true, ValueString, nil),
	URIPath:       mustOptionDef(URIPath, 0, 255, true, ValueString, nil),
	ContentFormat: mustOptionDef(ContentFormat, 0, 2, false, ValueUint, nil),
	MaxAge:        mustOptionDef(MaxAge, 0, 4, false, ValueUint, []byte{60}),
	URIQuery:      mustOptionDef(URIQuery, 0, 255, true, ValueString, nil),
	Accept:        mustOptionDef(Accept, 0, 2, false, ValueUint, nil),
	LocationQuery: mustOptionDef(LocationQuery, 0, 255, true, ValueString, nil),
	Block2:        mustOptionDef(Block2, 0, 3, false, ValueUint, nil),
	Block1:        mustOptionDef(Block1, 0, 3, false, ValueUint, nil),
	Size2:         mustOptionDef(Size2, 0, 4, false, ValueUint, nil),
	ProxyURI:      mustOptionDef(ProxyURI, 1, 1034, false, ValueString, nil),
	ProxyScheme:   mustOptionDef(ProxyScheme, 1, 255, false, ValueString, nil),
	Size1:         mustOptionDef(Size1, 0, 4, false, ValueUint, nil),
}

// Registry maps option IDs to their definitions. The decoder consults it to
// tell recognized options from unknown ones.
type Registry struct {
	mutex sync.RWMutex
	defs  map[OptionID]OptionDef
}

func NewRegistry(defs ...OptionDef) *Registry {
	r := &Registry{defs: make(map[OptionID]OptionDef, len(defs))}
	for _, d := range defs {
		r.defs[d.ID] = d
	}
	return r
}

// DefaultRegistry returns a new registry holding the RFC 7252, RFC 7641 and RFC 7959 options.
func DefaultRegistry() *Registry {
	return &Registry{defs: maps.Clone(defaultDefs)}
}

// Register adds or overrides the definition of def.ID.
func (r *Registry) Register(def OptionDef) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.defs[def.ID] = def
}

func (r *Registry) Lookup(id OptionID) (OptionDef, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	d, ok := r.defs[id]
	return d, ok
}

func (r *Registry) Clone() *Registry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return &Registry{defs: maps.Clone(r.defs)}
}

// Validate checks opt against its definition. Options without definition pass.
func (r *Registry) Validate(opt Option) error {
	d, ok := r.Lookup(opt.ID)
	if !ok {
		return nil
	}
	return d.Validate(opt.Value)
}

// Equal compares a and b using the value format registered for their ID.
func (r *Registry) Equal(a, b Option) bool {
	d, ok := r.Lookup(a.ID)
	return a.equal(b, d, ok)
}

func validateDefault(id OptionID, value []byte) (Option, error) {
	opt := Option{ID: id, Value: value}
	if d, ok := defaultDefs[id]; ok {
		if err := d.Validate(value); err != nil {
			return Option{}, err
		}
	}
	return opt, nil
}

// NewUintOption encodes v with the minimal number of bytes.
func NewUintOption(id OptionID, v uint32) (Option, error) {
	buf := make([]byte, 4)
	n, err := EncodeUint32(buf, v)
	if err != nil {
		return Option{}, err
	}
	return validateDefault(id, buf[:n])
}

func NewStringOption(id OptionID, v string) (Option, error) {
	return validateDefault(id, []byte(v))
}

func NewOpaqueOption(id OptionID, v []byte) (Option, error) {
	return validateDefault(id, v)
}

func NewEmptyOption(id OptionID) (Option, error) {
	return validateDefault(id, nil)
}
