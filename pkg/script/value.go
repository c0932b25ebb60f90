package script

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Array is the mutable list type created by array literals.
type Array struct {
	Items []any
}

// NewArray returns an Array holding items.
func NewArray(items ...any) *Array {
	return &Array{Items: items}
}

// Func is a function value that programs can call.
type Func func(args ...any) (any, error)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// ToString converts a value to its text form. nil becomes the empty string
// and numbers use the shortest decimal representation.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case *Array:
		parts := make([]string, len(x.Items))
		for i, item := range x.Items {
			parts[i] = ToString(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	case []byte:
		return string(x)
	case error:
		return x.Error()
	case fmt.Stringer:
		return x.String()
	}
	rv := reflect.ValueOf(v)
	if n, ok := numberOf(rv); ok {
		return formatNumber(n)
	}
	if k := rv.Kind(); k == reflect.Slice || k == reflect.Array {
		return ToString(NewArray(listItems(rv)...))
	}
	return fmt.Sprint(v)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Truthy reports whether v counts as true in a condition.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	case string:
		return x != ""
	}
	rv := reflect.ValueOf(v)
	if n, ok := numberOf(rv); ok {
		return n != 0
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}

// numberOf returns the float64 value of any Go numeric kind.
func numberOf(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// normalize converts Go numeric values to float64 so programs only ever see
// one number type.
func normalize(v any) any {
	switch v.(type) {
	case nil, float64, string, bool, *Array, map[string]any, Func:
		return v
	}
	if n, ok := numberOf(reflect.ValueOf(v)); ok {
		return n
	}
	return v
}

func toNumber(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0
		}
		if n, err := parseNumber(s); err == nil {
			return n
		}
		return math.NaN()
	}
	if n, ok := numberOf(reflect.ValueOf(v)); ok {
		return n
	}
	return math.NaN()
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case Func:
		return "function"
	}
	if reflect.ValueOf(v).Kind() == reflect.Func {
		return "function"
	}
	return "object"
}

func strictEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Kind() == reflect.Map {
		return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

func looseEquals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a.(type) {
	case float64, string, bool:
		switch b.(type) {
		case float64, string, bool:
			if sa, ok := a.(string); ok {
				if sb, ok := b.(string); ok {
					return sa == sb
				}
			}
			return toNumber(a) == toNumber(b)
		}
	}
	return strictEquals(a, b)
}

func isPrimitiveNumber(v any) bool {
	switch v.(type) {
	case nil, float64, bool:
		return true
	}
	return false
}

func add(a, b any) any {
	if isPrimitiveNumber(a) && isPrimitiveNumber(b) {
		return toNumber(a) + toNumber(b)
	}
	return ToString(a) + ToString(b)
}

func compare(op string, a, b any) bool {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			switch op {
			case "<":
				return sa < sb
			case "<=":
				return sa <= sb
			case ">":
				return sa > sb
			default:
				return sa >= sb
			}
		}
	}
	na, nb := toNumber(a), toNumber(b)
	switch op {
	case "<":
		return na < nb
	case "<=":
		return na <= nb
	case ">":
		return na > nb
	default:
		return na >= nb
	}
}

// indexOf converts a property key to a list index.
func indexOf(key any) (int, bool) {
	var f float64
	switch k := key.(type) {
	case float64:
		f = k
	case string:
		n, err := strconv.Atoi(k)
		if err != nil {
			return 0, false
		}
		return n, n >= 0
	default:
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

// exportedName returns the Go spelling of a property name, so templates can
// write user.name for a field called Name.
func exportedName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// getProperty reads obj[key].
func getProperty(obj, key any) (any, error) {
	if obj == nil {
		return nil, fmt.Errorf("%w: cannot read property %q of null", ErrType, ToString(key))
	}
	name := ToString(key)
	switch x := obj.(type) {
	case string:
		return stringProperty(x, key, name), nil
	case *Array:
		return listProperty(x.Items, key, name, x), nil
	case map[string]any:
		return normalize(x[name]), nil
	}

	rv := reflect.ValueOf(obj)
	base := rv
	for base.Kind() == reflect.Pointer || base.Kind() == reflect.Interface {
		if base.IsNil() {
			return nil, fmt.Errorf("%w: cannot read property %q of nil %T", ErrType, name, obj)
		}
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Map:
		if base.Type().Key().Kind() != reflect.String {
			break
		}
		val := base.MapIndex(reflect.ValueOf(name).Convert(base.Type().Key()))
		if !val.IsValid() {
			return nil, nil
		}
		return normalize(val.Interface()), nil
	case reflect.Slice, reflect.Array:
		return listProperty(listItems(base), key, name, nil), nil
	case reflect.String:
		return stringProperty(base.String(), key, name), nil
	case reflect.Struct:
		for _, n := range []string{name, exportedName(name)} {
			if f, ok := base.Type().FieldByName(n); ok && f.IsExported() {
				return normalize(base.FieldByIndex(f.Index).Interface()), nil
			}
		}
	}
	for _, n := range []string{name, exportedName(name)} {
		if m := rv.MethodByName(n); m.IsValid() {
			return boundMethod(m), nil
		}
	}
	return nil, fmt.Errorf("%w: %T has no property %q", ErrType, obj, name)
}

// hasProperty reports whether obj has a property called name, for with-block
// scope resolution.
func hasProperty(obj any, name string) bool {
	switch x := obj.(type) {
	case nil:
		return false
	case map[string]any:
		_, ok := x[name]
		return ok
	case *Array, string:
		return false
	}
	rv := reflect.ValueOf(obj)
	base := rv
	for base.Kind() == reflect.Pointer || base.Kind() == reflect.Interface {
		if base.IsNil() {
			return false
		}
		base = base.Elem()
	}
	switch base.Kind() {
	case reflect.Map:
		if base.Type().Key().Kind() != reflect.String {
			return false
		}
		return base.MapIndex(reflect.ValueOf(name).Convert(base.Type().Key())).IsValid()
	case reflect.Struct:
		for _, n := range []string{name, exportedName(name)} {
			if f, ok := base.Type().FieldByName(n); ok && f.IsExported() {
				return true
			}
		}
	}
	for _, n := range []string{name, exportedName(name)} {
		if rv.MethodByName(n).IsValid() {
			return true
		}
	}
	return false
}

// setProperty performs obj[key] = val. Only script arrays and
// map[string]any objects can be written.
func setProperty(obj, key, val any) error {
	switch x := obj.(type) {
	case nil:
		return fmt.Errorf("%w: cannot set property %q of null", ErrType, ToString(key))
	case map[string]any:
		x[ToString(key)] = val
		return nil
	case *Array:
		i, ok := indexOf(key)
		if !ok {
			return fmt.Errorf("%w: invalid array index %q", ErrType, ToString(key))
		}
		for len(x.Items) <= i {
			x.Items = append(x.Items, nil)
		}
		x.Items[i] = val
		return nil
	}
	return fmt.Errorf("%w: cannot set property %q of read-only %T", ErrType, ToString(key), obj)
}

func listItems(rv reflect.Value) []any {
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = normalize(rv.Index(i).Interface())
	}
	return items
}

func stringProperty(s string, key any, name string) any {
	if i, ok := indexOf(key); ok {
		runes := []rune(s)
		if i < len(runes) {
			return string(runes[i])
		}
		return nil
	}
	switch name {
	case "length":
		return float64(utf8.RuneCountInString(s))
	case "toUpperCase":
		return Func(func(...any) (any, error) { return strings.ToUpper(s), nil })
	case "toLowerCase":
		return Func(func(...any) (any, error) { return strings.ToLower(s), nil })
	case "trim":
		return Func(func(...any) (any, error) { return strings.TrimSpace(s), nil })
	case "indexOf":
		return Func(func(args ...any) (any, error) {
			i := strings.Index(s, ToString(arg(args, 0)))
			if i < 0 {
				return float64(-1), nil
			}
			return float64(utf8.RuneCountInString(s[:i])), nil
		})
	case "includes":
		return Func(func(args ...any) (any, error) { return strings.Contains(s, ToString(arg(args, 0))), nil })
	case "slice":
		return Func(func(args ...any) (any, error) {
			runes := []rune(s)
			start, end := sliceBounds(len(runes), args)
			return string(runes[start:end]), nil
		})
	case "split":
		return Func(func(args ...any) (any, error) {
			parts := strings.Split(s, ToString(arg(args, 0)))
			items := make([]any, len(parts))
			for i, p := range parts {
				items[i] = p
			}
			return NewArray(items...), nil
		})
	}
	return nil
}

// listProperty serves lists; arr is non-nil only for script arrays, which
// are the only lists that support push.
func listProperty(items []any, key any, name string, arr *Array) any {
	if i, ok := indexOf(key); ok {
		if i < len(items) {
			return normalize(items[i])
		}
		return nil
	}
	switch name {
	case "length":
		return float64(len(items))
	case "join":
		return Func(func(args ...any) (any, error) {
			sep := ","
			if len(args) > 0 && args[0] != nil {
				sep = ToString(args[0])
			}
			parts := make([]string, len(items))
			for i, item := range items {
				parts[i] = ToString(item)
			}
			return strings.Join(parts, sep), nil
		})
	case "indexOf":
		return Func(func(args ...any) (any, error) {
			for i, item := range items {
				if strictEquals(item, arg(args, 0)) {
					return float64(i), nil
				}
			}
			return float64(-1), nil
		})
	case "includes":
		return Func(func(args ...any) (any, error) {
			for _, item := range items {
				if strictEquals(item, arg(args, 0)) {
					return true, nil
				}
			}
			return false, nil
		})
	case "push":
		if arr == nil {
			return nil
		}
		return Func(func(args ...any) (any, error) {
			arr.Items = append(arr.Items, args...)
			return float64(len(arr.Items)), nil
		})
	}
	return nil
}

func arg(args []any, i int) any {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func sliceBounds(n int, args []any) (int, int) {
	clamp := func(v any, def int) int {
		if v == nil {
			return def
		}
		i := int(toNumber(v))
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start := clamp(arg(args, 0), 0)
	end := clamp(arg(args, 1), n)
	if end < start {
		end = start
	}
	return start, end
}

// iterate returns the sequence walked by for-of (keys == false) or for-in
// (keys == true). Map keys are visited in sorted order.
func iterate(v any, keys bool) ([]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, fmt.Errorf("%w: cannot iterate over null", ErrType)
	case *Array:
		if keys {
			return indices(len(x.Items)), nil
		}
		return append([]any(nil), x.Items...), nil
	case string:
		runes := []rune(x)
		if keys {
			return indices(len(runes)), nil
		}
		items := make([]any, len(runes))
		for i, r := range runes {
			items[i] = string(r)
		}
		return items, nil
	case map[string]any:
		names := make([]string, 0, len(x))
		for k := range x {
			names = append(names, k)
		}
		sort.Strings(names)
		items := make([]any, len(names))
		for i, k := range names {
			if keys {
				items[i] = k
			} else {
				items[i] = normalize(x[k])
			}
		}
		return items, nil
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: cannot iterate over nil %T", ErrType, v)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if keys {
			return indices(rv.Len()), nil
		}
		return listItems(rv), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		mk := rv.MapKeys()
		sort.Slice(mk, func(i, j int) bool { return mk[i].String() < mk[j].String() })
		items := make([]any, len(mk))
		for i, k := range mk {
			if keys {
				items[i] = k.String()
			} else {
				items[i] = normalize(rv.MapIndex(k).Interface())
			}
		}
		return items, nil
	}
	return nil, fmt.Errorf("%w: %T is not iterable", ErrType, v)
}

func indices(n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = float64(i)
	}
	return items
}

// call invokes a Func or any Go function value.
func call(fn any, args []any) (any, error) {
	switch f := fn.(type) {
	case Func:
		v, err := f(args...)
		return normalize(v), err
	case func(...any) (any, error):
		v, err := f(args...)
		return normalize(v), err
	}
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, ErrNotCallable
	}
	return callReflect(rv, args)
}

func boundMethod(m reflect.Value) Func {
	return func(args ...any) (any, error) {
		return callReflect(m, args)
	}
}

func callReflect(fn reflect.Value, args []any) (any, error) {
	ft := fn.Type()
	nIn := ft.NumIn()
	if ft.IsVariadic() {
		if len(args) < nIn-1 {
			return nil, fmt.Errorf("%w: expected at least %d arguments, got %d", ErrType, nIn-1, len(args))
		}
	} else if len(args) != nIn {
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", ErrType, nIn, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var t reflect.Type
		if ft.IsVariadic() && i >= nIn-1 {
			t = ft.In(nIn - 1).Elem()
		} else {
			t = ft.In(i)
		}
		v, err := convertArg(a, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in[i] = v
	}

	out := fn.Call(in)
	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return nil, err
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	return normalize(out[0].Interface()), nil
}

// overflows reports whether the integral value f does not fit the integer
// kind of t.
func overflows(f float64, t reflect.Type) bool {
	zero := reflect.Zero(t)
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// 2^64 and above cannot be represented as uint64.
		return f < 0 || f >= 1<<64 || zero.OverflowUint(uint64(f))
	default:
		return f < -(1<<63) || f >= 1<<63 || zero.OverflowInt(int64(f))
	}
}

func convertArg(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	if f, ok := v.(float64); ok {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if f != math.Trunc(f) || math.IsInf(f, 0) {
				return reflect.Value{}, fmt.Errorf("%w: %v is not an integer", ErrType, f)
			}
			if overflows(f, t) {
				return reflect.Value{}, fmt.Errorf("%w: %v overflows %s", ErrType, f, t)
			}
		case reflect.Float32:
			if reflect.Zero(t).OverflowFloat(f) {
				return reflect.Value{}, fmt.Errorf("%w: %v overflows %s", ErrType, f, t)
			}
		}
	}
	if a, ok := v.(*Array); ok && t.Kind() == reflect.Slice {
		s := reflect.MakeSlice(t, len(a.Items), len(a.Items))
		for i, item := range a.Items {
			iv, err := convertArg(item, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			s.Index(i).Set(iv)
		}
		return s, nil
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(t):
		return rv, nil
	case rv.Type().ConvertibleTo(t) && rv.Kind() != reflect.String && t.Kind() != reflect.String:
		return rv.Convert(t), nil
	case rv.Kind() == reflect.String && t.Kind() == reflect.String:
		return rv.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot use %s as %s", ErrType, typeOf(v), t)
}
