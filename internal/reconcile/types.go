// Package reconcile merges the per-file schemas of one logical table into a
// single schema, using the storage-type vocabulary of the table catalog
// (bigint, double, timestamp, array<...>, struct<...>, map<...>).
package reconcile

import (
	"fmt"
	"strconv"
	"strings"

	"ingest/internal/schema"
)

// Kind is the head constructor of a storage type.
type Kind uint8

const (
	String Kind = iota
	TinyInt
	SmallInt
	Int
	BigInt
	Float
	Double
	Decimal
	Boolean
	Date
	Timestamp
	Binary
	Array
	Map
	Struct
	// conflict is the result of an irreconcilable merge. It renders as
	// string and absorbs every later merge.
	conflict
)

var kindNames = map[Kind]string{
	String:    "string",
	TinyInt:   "tinyint",
	SmallInt:  "smallint",
	Int:       "int",
	BigInt:    "bigint",
	Float:     "float",
	Double:    "double",
	Decimal:   "decimal",
	Boolean:   "boolean",
	Date:      "date",
	Timestamp: "timestamp",
	Binary:    "binary",
	Array:     "array",
	Map:       "map",
	Struct:    "struct",
	conflict:  "string",
}

var leafKinds = map[string]Kind{
	"string":    String,
	"varchar":   String,
	"char":      String,
	"tinyint":   TinyInt,
	"smallint":  SmallInt,
	"int":       Int,
	"integer":   Int,
	"bigint":    BigInt,
	"float":     Float,
	"real":      Float,
	"double":    Double,
	"decimal":   Decimal,
	"numeric":   Decimal,
	"boolean":   Boolean,
	"bool":      Boolean,
	"date":      Date,
	"timestamp": Timestamp,
	"binary":    Binary,
}

const (
	// MaxDecimalPrecision caps widened decimals.
	MaxDecimalPrecision = 38
	defaultPrecision    = 10
)

// Type is a storage type. Values are immutable once built; Merge never
// modifies its operands.
type Type struct {
	Kind      Kind
	Precision int     // decimal only
	Scale     int     // decimal only
	Elem      *Type   // array element or map value
	Key       *Type   // map key
	Fields    []Field // struct members in declaration order
}

// Field is one struct member.
type Field struct {
	Name string
	Type Type
}

// Leaf returns a primitive type of kind k.
func Leaf(k Kind) Type { return Type{Kind: k} }

// DecimalOf returns decimal(p,s).
func DecimalOf(p, s int) Type { return Type{Kind: Decimal, Precision: p, Scale: s} }

// ArrayOf returns array<elem>.
func ArrayOf(elem Type) Type { return Type{Kind: Array, Elem: &elem} }

// MapOf returns map<key,val>.
func MapOf(key, val Type) Type { return Type{Kind: Map, Key: &key, Elem: &val} }

// StructOf returns struct<fields...>.
func StructOf(fields ...Field) Type { return Type{Kind: Struct, Fields: fields} }

// Numeric reports whether t is an integer, floating or decimal type.
func (t Type) Numeric() bool {
	switch t.Kind {
	case TinyInt, SmallInt, Int, BigInt, Float, Double, Decimal:
		return true
	}
	return false
}

func (t Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t Type) write(b *strings.Builder) {
	switch t.Kind {
	case Decimal:
		fmt.Fprintf(b, "decimal(%d,%d)", t.Precision, t.Scale)
	case Array:
		b.WriteString("array<")
		t.Elem.write(b)
		b.WriteByte('>')
	case Map:
		b.WriteString("map<")
		t.Key.write(b)
		b.WriteByte(',')
		t.Elem.write(b)
		b.WriteByte('>')
	case Struct:
		b.WriteString("struct<")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.Name)
			b.WriteByte(':')
			f.Type.write(b)
		}
		b.WriteByte('>')
	default:
		b.WriteString(kindNames[t.Kind])
	}
}

// MarshalText renders t in catalog syntax.
func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText parses catalog syntax.
func (t *Type) UnmarshalText(b []byte) error {
	p, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = p
	return nil
}

// Equal compares structurally. Struct members are matched by name, so
// member order does not matter.
func Equal(a, b Type) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Decimal:
		return a.Precision == b.Precision && a.Scale == b.Scale
	case Array:
		return Equal(*a.Elem, *b.Elem)
	case Map:
		return Equal(*a.Key, *b.Key) && Equal(*a.Elem, *b.Elem)
	case Struct:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for _, fa := range a.Fields {
			fb, ok := b.field(fa.Name)
			if !ok || !Equal(fa.Type, fb.Type) {
				return false
			}
		}
		return true
	}
	return true
}

func (t Type) field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// FromSemantic maps an inferred column type onto the catalog vocabulary.
func FromSemantic(t schema.Type) Type {
	switch t {
	case schema.Int:
		return Leaf(BigInt)
	case schema.Float:
		return Leaf(Double)
	case schema.Datetime:
		return Leaf(Timestamp)
	default:
		return Leaf(String)
	}
}

// ParseType reads catalog syntax such as "decimal(12,2)" or
// "array<struct<id:bigint,tags:map<string,string>>>". Unknown primitive
// names become string; malformed syntax is an error.
func ParseType(s string) (Type, error) {
	p := &typeParser{src: s}
	t, err := p.parse()
	if err != nil {
		return Type{}, fmt.Errorf("reconcile: parse %q: %w", s, err)
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return Type{}, fmt.Errorf("reconcile: parse %q: trailing input at offset %d", s, p.pos)
	}
	return t, nil
}

// MustParseType is ParseType for literals known to be valid.
func MustParseType(s string) Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

type typeParser struct {
	src string
	pos int
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *typeParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

// word reads up to the next structural character.
func (p *typeParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("<>(),:", rune(p.src[p.pos])) {
		p.pos++
	}
	return strings.TrimSpace(p.src[start:p.pos])
}

func (p *typeParser) parse() (Type, error) {
	name := strings.ToLower(p.word())
	if name == "" {
		return Type{}, fmt.Errorf("missing type name at offset %d", p.pos)
	}
	switch name {
	case "array":
		if err := p.expect('<'); err != nil {
			return Type{}, err
		}
		elem, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), p.expect('>')
	case "map":
		if err := p.expect('<'); err != nil {
			return Type{}, err
		}
		key, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		if err := p.expect(','); err != nil {
			return Type{}, err
		}
		val, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		return MapOf(key, val), p.expect('>')
	case "struct":
		return p.parseStruct()
	}

	var params []int
	if p.peek() == '(' {
		p.pos++
		for {
			n, err := strconv.Atoi(p.word())
			if err != nil {
				return Type{}, fmt.Errorf("bad type parameter near offset %d", p.pos)
			}
			params = append(params, n)
			if p.peek() == ',' {
				p.pos++
				continue
			}
			if err := p.expect(')'); err != nil {
				return Type{}, err
			}
			break
		}
	}
	k, ok := leafKinds[name]
	if !ok {
		return Leaf(String), nil
	}
	if k != Decimal {
		return Leaf(k), nil
	}
	prec, scale := defaultPrecision, 0
	if len(params) > 0 {
		prec = params[0]
	}
	if len(params) > 1 {
		scale = params[1]
	}
	if prec < 1 || prec > MaxDecimalPrecision || scale < 0 || scale > prec {
		return Type{}, fmt.Errorf("decimal(%d,%d) out of range", prec, scale)
	}
	return DecimalOf(prec, scale), nil
}

func (p *typeParser) parseStruct() (Type, error) {
	if err := p.expect('<'); err != nil {
		return Type{}, err
	}
	t := Type{Kind: Struct}
	if p.peek() == '>' {
		p.pos++
		return t, nil
	}
	for {
		name := p.word()
		if name == "" {
			return Type{}, fmt.Errorf("missing field name at offset %d", p.pos)
		}
		if _, dup := t.field(name); dup {
			return Type{}, fmt.Errorf("duplicate struct field %q", name)
		}
		if err := p.expect(':'); err != nil {
			return Type{}, err
		}
		ft, err := p.parse()
		if err != nil {
			return Type{}, err
		}
		t.Fields = append(t.Fields, Field{Name: name, Type: ft})
		if p.peek() == ',' {
			p.pos++
			continue
		}
		return t, p.expect('>')
	}
}
