// Package raw holds the low-level PDF object model: every object exactly as
// it appears in the file, before any semantic interpretation.
package raw

import "fmt"

// ObjectRef identifies an indirect object.
type ObjectRef struct {
	Number     int
	Generation int
}

func (r ObjectRef) String() string {
	return fmt.Sprintf("%d %d R", r.Number, r.Generation)
}

// Object is implemented by every PDF primitive.
type Object interface {
	isObject()
}

type NullObj struct{}

type BoolObj struct {
	Value bool
}

type NumberObj struct {
	Int   int64
	Float float64
	IsInt bool
}

func Integer(v int64) NumberObj { return NumberObj{Int: v, Float: float64(v), IsInt: true} }
func Real(v float64) NumberObj  { return NumberObj{Float: v} }

// Value returns the numeric value as float64 regardless of representation.
func (n NumberObj) Value() float64 {
	if n.IsInt {
		return float64(n.Int)
	}
	return n.Float
}

type NameObj struct {
	Value string
}

// StringObj is a literal or hex string. Raw holds the decoded bytes;
// Hex records which syntax the source used so the writer can round-trip it.
type StringObj struct {
	Raw []byte
	Hex bool
}

type ArrayObj struct {
	Items []Object
}

type DictObj struct {
	// Keys preserves insertion order for stable output.
	Keys   []string
	Values map[string]Object
}

func NewDict() *DictObj {
	return &DictObj{Values: make(map[string]Object)}
}

func (d *DictObj) Get(key string) (Object, bool) {
	v, ok := d.Values[key]
	return v, ok
}

func (d *DictObj) Set(key string, value Object) {
	if _, exists := d.Values[key]; !exists {
		d.Keys = append(d.Keys, key)
	}
	d.Values[key] = value
}

func (d *DictObj) Delete(key string) {
	if _, exists := d.Values[key]; !exists {
		return
	}
	delete(d.Values, key)
	for i, k := range d.Keys {
		if k == key {
			d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
			break
		}
	}
}

// Name returns the string value of a name entry, or "" when absent or not a name.
func (d *DictObj) Name(key string) string {
	if v, ok := d.Values[key]; ok {
		if n, ok := v.(NameObj); ok {
			return n.Value
		}
	}
	return ""
}

// Int returns the integer value of a number entry.
func (d *DictObj) Int(key string) (int64, bool) {
	if v, ok := d.Values[key]; ok {
		if n, ok := v.(NumberObj); ok && n.IsInt {
			return n.Int, true
		}
	}
	return 0, false
}

type RefObj struct {
	Ref ObjectRef
}

// StreamObj pairs a stream dictionary with its raw (still encoded) bytes.
type StreamObj struct {
	Dict *DictObj
	Raw  []byte
}

// FilterNames flattens the /Filter entry, which may be a name or an array.
func (s *StreamObj) FilterNames() []string {
	v, ok := s.Dict.Get("Filter")
	if !ok {
		return nil
	}
	switch f := v.(type) {
	case NameObj:
		return []string{f.Value}
	case ArrayObj:
		var names []string
		for _, item := range f.Items {
			if n, ok := item.(NameObj); ok {
				names = append(names, n.Value)
			}
		}
		return names
	}
	return nil
}

func (NullObj) isObject()    {}
func (BoolObj) isObject()    {}
func (NumberObj) isObject()  {}
func (NameObj) isObject()    {}
func (StringObj) isObject()  {}
func (ArrayObj) isObject()   {}
func (*DictObj) isObject()   {}
func (RefObj) isObject()     {}
func (*StreamObj) isObject() {}

// Document is a fully loaded PDF: all indirect objects plus the trailer.
type Document struct {
	Version string
	Objects map[ObjectRef]Object
	Trailer *DictObj
}

func NewDocument() *Document {
	return &Document{
		Version: "1.7",
		Objects: make(map[ObjectRef]Object),
		Trailer: NewDict(),
	}
}

// Resolve follows reference chains until a direct object is reached.
// A dangling reference resolves to NullObj.
func (doc *Document) Resolve(obj Object) Object {
	for i := 0; i < 32; i++ {
		ref, ok := obj.(RefObj)
		if !ok {
			return obj
		}
		next, ok := doc.Objects[ref.Ref]
		if !ok {
			return NullObj{}
		}
		obj = next
	}
	return NullObj{}
}

// ResolveDict resolves obj and returns it as a dictionary, nil when it is not one.
func (doc *Document) ResolveDict(obj Object) *DictObj {
	switch v := doc.Resolve(obj).(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	}
	return nil
}

// MaxObjectNumber returns the highest allocated object number.
func (doc *Document) MaxObjectNumber() int {
	max := 0
	for ref := range doc.Objects {
		if ref.Number > max {
			max = ref.Number
		}
	}
	return max
}

// AddObject allocates the next object number and stores obj under it.
func (doc *Document) AddObject(obj Object) ObjectRef {
	ref := ObjectRef{Number: doc.MaxObjectNumber() + 1}
	doc.Objects[ref] = obj
	return ref
}
