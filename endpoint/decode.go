package endpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
)

// defaultFieldLimit bounds a decoded value when no maxLength tag is present.
var defaultFieldLimit = 16 * 1024

// Unmarshal populates dst (must be a non-nil pointer) from the request.
//
// Supported structtags:
//   - `body:""` reads the whole request body into the field
//   - `header:"name"` reads a request header (name defaults to the field name)
//   - `maxLength:"n"` sets the maximum byte length for a field value
//   - `body:"-"` / `header:"-"` ignore the field
//
// Field types:
//   - body: []byte, string, or any type decodable by encoding/json
//   - header: string (first value) or []string (all values)
//
// Length constraints:
//   - If `maxLength` is absent, a default limit of 16KB is enforced.
//     Use `maxLength:"0"` or `maxLength:""` for no limit.
//   - An oversized body is a 413 error; an oversized header is a 400 error.
//
// Untagged fields are left unchanged.
func Unmarshal(r *http.Request, dst any) error {
	if r == nil {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: nil request"))
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must be a non-nil pointer"))
	}

	// Support *P where P may be a struct or pointer-to-struct.
	root := v.Elem()
	if root.Kind() == reflect.Pointer {
		if root.IsNil() {
			root.Set(reflect.New(root.Type().Elem()))
		}
		root = root.Elem()
	}
	if root.Kind() != reflect.Struct {
		return newEndpointError(http.StatusInternalServerError, "", errors.New("endpoint: decode: dst must point to a struct (or pointer to struct)"))
	}
	return unmarshalStruct(r, root)
}

func unmarshalStruct(r *http.Request, structVal reflect.Value) error {
	t := structVal.Type()
	bodyFieldIndex := -1
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		fv := structVal.Field(i)
		limit, err := fieldLengthLimit(sf)
		if err != nil {
			return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: %w", sf.Name, err))
		}

		if name, ok := sf.Tag.Lookup("body"); ok && name != "-" {
			if bodyFieldIndex != -1 {
				return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: multiple body fields: %s and %s", t.Field(bodyFieldIndex).Name, sf.Name))
			}
			bodyFieldIndex = i
			if err := setBody(r, fv, limit, sf.Name); err != nil {
				return err
			}
			continue
		}

		if name, ok := sf.Tag.Lookup("header"); ok && name != "-" {
			if name == "" {
				name = sf.Name
			}
			// Access the map directly to distinguish present-but-empty from missing.
			values := r.Header[http.CanonicalHeaderKey(name)]
			if err := setHeader(fv, values, limit, sf.Name); err != nil {
				return err
			}
		}
	}
	return nil
}

func setBody(r *http.Request, fv reflect.Value, limit int, fieldName string) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	var reader io.Reader = r.Body
	if limit > 0 {
		reader = io.LimitReader(r.Body, int64(limit)+1)
	}
	b, err := io.ReadAll(reader)
	if err != nil {
		return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: body: %w", err))
	}
	if limit > 0 && len(b) > limit {
		return newEndpointError(http.StatusRequestEntityTooLarge, "", fmt.Errorf("endpoint: decode: field %s: body exceeds %d bytes", fieldName, limit))
	}

	switch {
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.Uint8:
		fv.SetBytes(b)
	case fv.Kind() == reflect.String:
		fv.SetString(string(b))
	default:
		if len(b) == 0 {
			return nil
		}
		if err := json.Unmarshal(b, fv.Addr().Interface()); err != nil {
			return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: field %s: %w", fieldName, err))
		}
	}
	return nil
}

func setHeader(fv reflect.Value, values []string, limit int, fieldName string) error {
	if len(values) == 0 {
		return nil
	}
	for _, s := range values {
		if limit > 0 && len(s) > limit {
			return newEndpointError(http.StatusBadRequest, "", fmt.Errorf("endpoint: decode: field %s: value exceeds %d bytes", fieldName, limit))
		}
	}
	switch {
	case fv.Kind() == reflect.String:
		fv.SetString(values[0])
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		fv.Set(reflect.ValueOf(append([]string(nil), values...)).Convert(fv.Type()))
	default:
		return newEndpointError(http.StatusInternalServerError, "", fmt.Errorf("endpoint: decode: field %s: unsupported header type %s", fieldName, fv.Type()))
	}
	return nil
}

func fieldLengthLimit(sf reflect.StructField) (int, error) {
	val, has := sf.Tag.Lookup("maxLength")
	if !has {
		return defaultFieldLimit, nil
	}
	val = strings.TrimSpace(val)
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("maxLength: invalid integer %q", val)
	}
	if n < 0 {
		return 0, fmt.Errorf("maxLength: must be >= 0")
	}
	return n, nil
}
