package request

import (
	jsonlib "encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/keboola/go-utils/pkg/orderedmap"
	"github.com/spf13/cast"
)

const (
	ContentTypeForm = "application/x-www-form-urlencoded"
	ContentTypeJSON = "application/json"
)

const upperHex = "0123456789ABCDEF"

// EncodeFormValue translates a string into the application/x-www-form-urlencoded format using UTF-8.
//
// Letters, digits and the characters ".-*_" are kept, the space is converted to "+",
// all other bytes are converted to "%XY" with upper-case hex digits.
// It differs from url.QueryEscape, which escapes "*" and keeps "~".
func EncodeFormValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isFormSafe(c):
			b.WriteByte(c)
		case c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperHex[c>>4])
			b.WriteByte(upperHex[c&0x0f])
		}
	}
	return b.String()
}

// EncodeForm encodes the form fields to the "key1=value1&key2=value2" format, sorted by key.
func EncodeForm(form map[string]string) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(EncodeFormValue(k))
		b.WriteByte('=')
		b.WriteString(EncodeFormValue(form[k]))
	}
	return b.String()
}

// ToFormBody converts a JSON like map to form body map, any type is mapped to string.
// Slices are mapped to "key[index]" fields, string maps to "key[subKey]" fields.
func ToFormBody(in map[string]any) map[string]string {
	out := make(map[string]string)
	for k, v := range in {
		if v == nil {
			out[k] = ""
			continue
		}
		switch reflect.TypeOf(v).Kind() {
		case reflect.Slice:
			for i, s := range cast.ToStringSlice(v) {
				out[fmt.Sprintf("%s[%d]", k, i)] = s
			}
		case reflect.Map:
			if m, err := cast.ToStringMapStringE(v); err == nil {
				for subKey, s := range m {
					out[fmt.Sprintf("%s[%s]", k, subKey)] = s
				}
				continue
			}
			out[k] = castToString(v)
		default:
			out[k] = castToString(v)
		}
	}
	return out
}

func isFormSafe(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '.', c == '-', c == '*', c == '_':
		return true
	default:
		return false
	}
}

func castToString(v any) string {
	// Ordered map is encoded by the standard library,
	// JsonIter returns non-compact JSON for the custom OrderedMap.MarshalJSON method.
	if orderedMap, ok := v.(*orderedmap.OrderedMap); ok {
		out, err := jsonlib.Marshal(orderedMap)
		if err != nil {
			panic(fmt.Errorf(`cannot cast %T to string: %w`, v, err))
		}
		return string(out)
	}

	out, err := cast.ToStringE(v)
	if err != nil {
		panic(fmt.Errorf(`cannot cast %T to string: %w`, v, err))
	}
	return out
}
