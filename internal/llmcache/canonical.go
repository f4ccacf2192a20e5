package llmcache

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// maxDepth bounds nesting of context/metadata values.
const maxDepth = 128

// Encode produces the canonical byte form of a request. Objects are written
// with keys in sorted order at every level, arrays keep their order, numbers use
// a single exact textual form (1, 1.0 and json.Number("1") all encode as 1) and nil
// optional collections encode the same as empty ones.
func Encode(r Request) ([]byte, error) {
	doc, err := canonicalDocument(r)
	if err != nil {
		return nil, err
	}
	enc := canonicalEncoder{seen: make(map[visit]struct{})}
	if err := enc.value(reflect.ValueOf(doc), "$", 0); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

// canonicalDocument maps each request kind onto the object that gets encoded.
func canonicalDocument(r Request) (map[string]any, error) {
	switch r.kind {
	case KindChat:
		c := r.chat
		msgs := make([]any, 0, len(c.Messages))
		for _, m := range c.Messages {
			msgs = append(msgs, map[string]any{
				"role":    string(m.Role),
				"content": m.Content,
			})
		}
		return map[string]any{
			"model":    c.Model,
			"messages": msgs,
		}, nil
	case KindCompletion:
		c := r.completion
		return map[string]any{
			"prompt":   c.Prompt,
			"context":  c.Context,
			"metadata": c.Metadata,
			"model":    c.Model,
		}, nil
	case KindVision:
		v := r.vision
		images := make([]any, 0, len(v.ImageURLs))
		for _, u := range v.ImageURLs {
			images = append(images, u)
		}
		return map[string]any{
			"model":  v.Model,
			"prompt": v.Prompt,
			"images": images,
		}, nil
	default:
		return nil, &EncodingError{Reason: "unknown request kind " + strconv.Quote(string(r.kind))}
	}
}

type visit struct {
	ptr uintptr
	len int
	typ reflect.Type
}

type canonicalEncoder struct {
	buf  bytes.Buffer
	seen map[visit]struct{}
}

var (
	jsonNumberType = reflect.TypeOf(json.Number(""))
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
)

func (e *canonicalEncoder) value(v reflect.Value, path string, depth int) error {
	if depth > maxDepth {
		return &EncodingError{Path: path, Reason: "nesting too deep"}
	}
	if !v.IsValid() {
		e.buf.WriteString("null")
		return nil
	}

	switch v.Type() {
	case jsonNumberType:
		return e.number(v.String(), path)
	case rawMessageType:
		return e.raw(v.Bytes(), path, depth)
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		return e.value(v.Elem(), path, depth)
	case reflect.Pointer:
		if v.IsNil() {
			e.buf.WriteString("null")
			return nil
		}
		leave, err := e.enter(v, 0, path)
		if err != nil {
			return err
		}
		defer leave()
		return e.value(v.Elem(), path, depth+1)
	case reflect.String:
		return e.str(v.String(), path)
	case reflect.Bool:
		if v.Bool() {
			e.buf.WriteString("true")
		} else {
			e.buf.WriteString("false")
		}
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		e.buf.WriteString(strconv.FormatInt(v.Int(), 10))
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		e.buf.WriteString(strconv.FormatUint(v.Uint(), 10))
		return nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &EncodingError{Path: path, Reason: "non-finite number " + strconv.FormatFloat(f, 'g', -1, 64)}
		}
		bits := 64
		if v.Kind() == reflect.Float32 {
			bits = 32
		}
		// Shortest round-trip text, so 0.1 matches the literal "0.1".
		return e.number(strconv.FormatFloat(f, 'g', -1, bits), path)
	case reflect.Map:
		return e.object(v, path, depth)
	case reflect.Slice:
		if v.IsNil() {
			e.buf.WriteString("[]")
			return nil
		}
		leave, err := e.enter(v, v.Len(), path)
		if err != nil {
			return err
		}
		defer leave()
		return e.array(v, path, depth)
	case reflect.Array:
		return e.array(v, path, depth)
	case reflect.Struct:
		// Structs go through their JSON form so tags and custom marshalers apply.
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return &EncodingError{Path: path, Reason: err.Error()}
		}
		return e.raw(data, path, depth)
	default:
		return &EncodingError{Path: path, Reason: "unsupported value of kind " + v.Kind().String()}
	}
}

// enter records a reference-typed value on the current path and fails if it is
// already there, which means the structure is cyclic.
func (e *canonicalEncoder) enter(v reflect.Value, n int, path string) (func(), error) {
	key := visit{ptr: v.Pointer(), len: n, typ: v.Type()}
	if _, ok := e.seen[key]; ok {
		return nil, &EncodingError{Path: path, Reason: "cyclic structure"}
	}
	e.seen[key] = struct{}{}
	return func() { delete(e.seen, key) }, nil
}

func (e *canonicalEncoder) object(v reflect.Value, path string, depth int) error {
	if v.Type().Key().Kind() != reflect.String {
		return &EncodingError{Path: path, Reason: "map keys must be strings"}
	}
	if v.IsNil() || v.Len() == 0 {
		e.buf.WriteString("{}")
		return nil
	}
	leave, err := e.enter(v, 0, path)
	if err != nil {
		return err
	}
	defer leave()

	keys := make([]string, 0, v.Len())
	values := make(map[string]reflect.Value, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		keys = append(keys, k)
		values[k] = iter.Value()
	}
	sort.Strings(keys)

	e.buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.str(k, path); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.value(values[k], path+"."+k, depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *canonicalEncoder) array(v reflect.Value, path string, depth int) error {
	e.buf.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.value(v.Index(i), path+"["+strconv.Itoa(i)+"]", depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *canonicalEncoder) str(s, path string) error {
	if !utf8.ValidString(s) {
		return &EncodingError{Path: path, Reason: "string is not valid UTF-8"}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return &EncodingError{Path: path, Reason: err.Error()}
	}
	e.buf.Write(data)
	return nil
}

// raw re-decodes a JSON document so its objects get sorted like everything else.
func (e *canonicalEncoder) raw(data []byte, path string, depth int) error {
	if len(bytes.TrimSpace(data)) == 0 {
		e.buf.WriteString("null")
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &EncodingError{Path: path, Reason: "invalid JSON: " + err.Error()}
	}
	return e.value(reflect.ValueOf(doc), path, depth+1)
}

func (e *canonicalEncoder) number(s, path string) error {
	out, err := canonicalNumber(s)
	if err != nil {
		return &EncodingError{Path: path, Reason: err.Error()}
	}
	e.buf.WriteString(out)
	return nil
}

const (
	// maxIntegerDigits bounds how many digits an integral value is written out
	// with; longer ones use exponent form.
	maxIntegerDigits = 1024
	maxExponent      = 1_000_000_000
)

// canonicalNumber rewrites JSON number text into one exact form per value. No
// rounding happens: the digits are normalized as decimal text, without leading
// or trailing zeros. Integral values are written without a fraction, values
// from 1e-6 up as plain decimals, and anything smaller (or an integer longer
// than maxIntegerDigits) in exponent form such as 1.5e-07 or 1e+2000.
func canonicalNumber(s string) (string, error) {
	neg, digits, exp, err := splitNumber(s)
	if err != nil {
		return "", err
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return "0", nil
	}
	trimmed := strings.TrimRight(digits, "0")
	exp += len(digits) - len(trimmed)
	digits = trimmed

	// adjusted is the power of ten of the leading digit.
	adjusted := len(digits) + exp - 1

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	switch {
	case exp >= 0 && adjusted < maxIntegerDigits:
		b.WriteString(digits)
		b.WriteString(strings.Repeat("0", exp))
	case exp < 0 && adjusted >= -6:
		point := len(digits) + exp
		if point > 0 {
			b.WriteString(digits[:point])
			b.WriteByte('.')
			b.WriteString(digits[point:])
		} else {
			b.WriteString("0.")
			b.WriteString(strings.Repeat("0", -point))
			b.WriteString(digits)
		}
	default:
		b.WriteByte(digits[0])
		if len(digits) > 1 {
			b.WriteByte('.')
			b.WriteString(digits[1:])
		}
		b.WriteByte('e')
		if adjusted < 0 {
			b.WriteByte('-')
			adjusted = -adjusted
		} else {
			b.WriteByte('+')
		}
		if adjusted < 10 {
			b.WriteByte('0')
		}
		b.WriteString(strconv.Itoa(adjusted))
	}
	return b.String(), nil
}

// splitNumber parses JSON number syntax into its sign, all significant digits
// and the power of ten they are scaled by.
func splitNumber(s string) (neg bool, digits string, exp int, err error) {
	invalid := errors.New("invalid number " + strconv.Quote(s))
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intPart := s[start:i]
	if intPart == "" {
		return false, "", 0, invalid
	}

	var frac string
	if i < len(s) && s[i] == '.' {
		i++
		start = i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		frac = s[start:i]
		if frac == "" {
			return false, "", 0, invalid
		}
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		start = i
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		digitsAt := i
		for i < len(s) && isDigit(s[i]) {
			i++
		}
		if i == digitsAt {
			return false, "", 0, invalid
		}
		n, convErr := strconv.Atoi(s[start:i])
		if convErr != nil || n > maxExponent || n < -maxExponent {
			return false, "", 0, errors.New("number exponent out of range in " + strconv.Quote(s))
		}
		exp = n
	}
	if i != len(s) {
		return false, "", 0, invalid
	}
	return neg, intPart + frac, exp - len(frac), nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
