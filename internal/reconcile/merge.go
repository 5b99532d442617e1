package reconcile

// Merge returns the narrowest type both a and b can be stored as.
//
// Numeric pairs promote toward double; two decimals widen to hold the larger
// integer part and the larger scale. A timestamp absorbs a string. Nested
// types merge member by member. Every other disagreement falls back to
// string, and that fallback absorbs all later merges so the operation stays
// associative.
func Merge(a, b Type) Type {
	if Equal(a, b) {
		return a
	}
	if a.Kind == conflict || b.Kind == conflict {
		return Type{Kind: conflict}
	}
	if a.Numeric() && b.Numeric() {
		return mergeNumeric(a, b)
	}
	if (a.Kind == Timestamp && b.Kind == String) || (a.Kind == String && b.Kind == Timestamp) {
		return Leaf(Timestamp)
	}
	if a.Kind != b.Kind {
		return Type{Kind: conflict}
	}
	switch a.Kind {
	case Array:
		return ArrayOf(Merge(*a.Elem, *b.Elem))
	case Map:
		return MapOf(Merge(*a.Key, *b.Key), Merge(*a.Elem, *b.Elem))
	case Struct:
		return mergeStruct(a, b)
	}
	return Type{Kind: conflict}
}

func mergeNumeric(a, b Type) Type {
	if a.Kind == Decimal && b.Kind == Decimal {
		intDigits := max(a.Precision-a.Scale, b.Precision-b.Scale)
		scale := max(a.Scale, b.Scale)
		return DecimalOf(min(intDigits+scale, MaxDecimalPrecision), scale)
	}
	for _, k := range []Kind{Double, Float, BigInt} {
		if a.Kind == k || b.Kind == k {
			return Leaf(k)
		}
	}
	return Leaf(Int)
}

// mergeStruct keeps a's member order and appends b's unmatched members.
func mergeStruct(a, b Type) Type {
	out := Type{Kind: Struct, Fields: make([]Field, 0, len(a.Fields)+len(b.Fields))}
	for _, fa := range a.Fields {
		if fb, ok := b.field(fa.Name); ok {
			out.Fields = append(out.Fields, Field{Name: fa.Name, Type: Merge(fa.Type, fb.Type)})
			continue
		}
		out.Fields = append(out.Fields, fa)
	}
	for _, fb := range b.Fields {
		if _, ok := a.field(fb.Name); !ok {
			out.Fields = append(out.Fields, fb)
		}
	}
	return out
}
