package message

import (
	"sort"
	"strings"
)

// Options is a list of options kept in ascending order of ID. Options with the
// same ID keep the order they were added in.
type Options []Option

const maxPathValue = 255

// Find returns the half-open range [first, last) holding options with id.
func (options Options) Find(id OptionID) (int, int, error) {
	first := sort.Search(len(options), func(i int) bool { return options[i].ID >= id })
	last := first
	for last < len(options) && options[last].ID == id {
		last++
	}
	if first == last {
		return -1, -1, ErrOptionNotFound
	}
	return first, last, nil
}

func (options Options) HasOption(id OptionID) bool {
	_, _, err := options.Find(id)
	return err == nil
}

// Add inserts opt after all options with the same or a lower ID.
func (options Options) Add(opt Option) Options {
	idx := sort.Search(len(options), func(i int) bool { return options[i].ID > opt.ID })
	options = append(options, Option{})
	copy(options[idx+1:], options[idx:])
	options[idx] = opt
	return options
}

// Set replaces all options with the ID of opt by opt.
func (options Options) Set(opt Option) Options {
	return options.Remove(opt.ID).Add(opt)
}

func (options Options) Remove(id OptionID) Options {
	first, last, err := options.Find(id)
	if err != nil {
		return options
	}
	n := copy(options[first:], options[last:])
	for i := first + n; i < len(options); i++ {
		options[i] = Option{}
	}
	return options[:first+n]
}

// Clone returns a deep copy.
func (options Options) Clone() Options {
	if options == nil {
		return nil
	}
	r := make(Options, len(options))
	for i, o := range options {
		r[i] = Option{ID: o.ID, Value: append([]byte(nil), o.Value...)}
	}
	return r
}

// Equal reports whether both lists carry the same values for every ID.
func (options Options) Equal(other Options) bool {
	if len(options) != len(other) {
		return false
	}
	a := append(Options(nil), options...)
	b := append(Options(nil), other...)
	sort.SliceStable(a, func(i, j int) bool { return a[i].ID < a[j].ID })
	sort.SliceStable(b, func(i, j int) bool { return b[i].ID < b[j].ID })
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (options Options) GetBytes(id OptionID) ([]byte, error) {
	first, _, err := options.Find(id)
	if err != nil {
		return nil, err
	}
	return options[first].Value, nil
}

func (options Options) GetString(id OptionID) (string, error) {
	v, err := options.GetBytes(id)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// GetStrings returns the values of a repeatable string option in order.
func (options Options) GetStrings(id OptionID) ([]string, error) {
	first, last, err := options.Find(id)
	if err != nil {
		return nil, err
	}
	r := make([]string, 0, last-first)
	for i := first; i < last; i++ {
		r = append(r, string(options[i].Value))
	}
	return r, nil
}

func (options Options) GetUint32(id OptionID) (uint32, error) {
	v, err := options.GetBytes(id)
	if err != nil {
		return 0, err
	}
	val, _, err := DecodeUint32(v)
	return val, err
}

func (options Options) SetBytes(id OptionID, v []byte) Options {
	return options.Set(Option{ID: id, Value: v})
}

func (options Options) AddBytes(id OptionID, v []byte) Options {
	return options.Add(Option{ID: id, Value: v})
}

func (options Options) SetString(id OptionID, v string) Options {
	return options.Set(Option{ID: id, Value: []byte(v)})
}

func (options Options) AddString(id OptionID, v string) Options {
	return options.Add(Option{ID: id, Value: []byte(v)})
}

func uint32Value(v uint32) []byte {
	buf := make([]byte, 4)
	n, _ := EncodeUint32(buf, v)
	return buf[:n]
}

func (options Options) SetUint32(id OptionID, v uint32) Options {
	return options.Set(Option{ID: id, Value: uint32Value(v)})
}

func (options Options) AddUint32(id OptionID, v uint32) Options {
	return options.Add(Option{ID: id, Value: uint32Value(v)})
}

// SetPath replaces Uri-Path options by the segments of path.
func (options Options) SetPath(path string) (Options, error) {
	o := options.Remove(URIPath)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return o, nil
	}
	for _, seg := range strings.Split(path, "/") {
		if len(seg) > maxPathValue {
			return options, ErrInvalidValueLength
		}
		o = o.AddString(URIPath, seg)
	}
	return o, nil
}

// Path joins the Uri-Path segments with '/'.
func (options Options) Path() (string, error) {
	segs, err := options.GetStrings(URIPath)
	if err != nil {
		return "", err
	}
	return "/" + strings.Join(segs, "/"), nil
}

func (options Options) Queries() ([]string, error) {
	return options.GetStrings(URIQuery)
}

func (options Options) AddQuery(query string) Options {
	return options.AddString(URIQuery, query)
}

func (options Options) ContentFormat() (MediaType, error) {
	v, err := options.GetUint32(ContentFormat)
	return MediaType(v), err
}

func (options Options) SetContentFormat(contentFormat MediaType) Options {
	return options.SetUint32(ContentFormat, uint32(contentFormat))
}

func (options Options) Accept() (MediaType, error) {
	v, err := options.GetUint32(Accept)
	return MediaType(v), err
}

func (options Options) SetAccept(contentFormat MediaType) Options {
	return options.SetUint32(Accept, uint32(contentFormat))
}

func (options Options) Observe() (uint32, error) {
	return options.GetUint32(Observe)
}

func (options Options) SetObserve(v uint32) Options {
	return options.SetUint32(Observe, v)
}

// Marshal writes options with delta-encoded IDs. When buf is too small it
// returns the needed length and ErrTooSmall.
func (options Options) Marshal(buf []byte) (int, error) {
	previousID := OptionID(0)
	length := 0
	tooSmall := false
	for _, o := range options {
		n, err := o.Marshal(sub(buf, length), previousID)
		switch {
		case err == nil:
		case err == ErrTooSmall:
			tooSmall = true
		default:
			return -1, err
		}
		previousID = o.ID
		length += n
	}
	if tooSmall || buf == nil || length > len(buf) {
		return length, ErrTooSmall
	}
	return length, nil
}

// Unmarshal parses options from data up to the payload marker or the end of
// data and appends them. It returns the number of bytes consumed, marker
// excluded. Options unknown to reg are skipped; unknown critical options are
// reported to unknown. A nil reg means the default definitions.
func (options *Options) Unmarshal(data []byte, reg *Registry, unknown *UnrecognizedCriticalOptions) (int, error) {
	lookup := func(id OptionID) (OptionDef, bool) {
		d, ok := defaultDefs[id]
		return d, ok
	}
	if reg != nil {
		lookup = reg.Lookup
	}
	prev := 0
	processed := 0
	for len(data) > 0 {
		if data[0] == 0xff {
			break
		}
		delta := int(data[0] >> 4)
		length := int(data[0] & 0x0f)
		if delta == ExtendOptionError || length == ExtendOptionError {
			return -1, ErrOptionUnexpectedExtendMarker
		}
		data = data[1:]
		processed++

		proc, delta, err := parseExtOpt(data, delta)
		if err != nil {
			return -1, err
		}
		processed += proc
		data = data[proc:]
		proc, length, err = parseExtOpt(data, length)
		if err != nil {
			return -1, err
		}
		processed += proc
		data = data[proc:]
		if len(data) < length {
			return -1, ErrOptionTruncated
		}

		id := prev + delta
		if id > int(max2ByteNumber) {
			return -1, ErrInvalidOptionHeaderExt
		}
		oid := OptionID(id)
		value := data[:length]
		data = data[length:]
		processed += length

		def, ok := lookup(oid)
		if ok && def.Validate(value) != nil {
			ok = false
		}
		// prev is the last ID seen, kept or not
		if ok && !def.Repeatable && prev == id {
			ok = false
		}
		prev = id
		if !ok {
			if oid.IsCritical() && unknown != nil {
				unknown.Add(oid)
			}
			continue
		}
		*options = append(*options, Option{ID: oid, Value: value})
	}
	return processed, nil
}
