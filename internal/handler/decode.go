package handler

import (
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const maxBodySize = 1 << 20

const dateLayout = "2006-01-02"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// decodeObject reads a JSON object from the request body and hands each
// field to fn. Unknown fields must be skipped by fn.
func decodeObject(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	d := jx.Decode(body, 4096)
	if d.Next() != jx.Object {
		return badRequest("request body must be a JSON object")
	}
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		return fn(d, string(key))
	}); err != nil {
		var reqErr *requestError
		if errors.As(err, &reqErr) {
			return reqErr
		}
		return badRequest("malformed request body")
	}
	return nil
}

// validateStruct runs struct tag validation and reports the first failure.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.Wrap(err, "validate")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return badRequest(fe.Field() + " is required")
	case "gt", "gte", "min":
		return badRequest(fmt.Sprintf("%s must be at least %s", fe.Field(), minimum(fe)))
	case "max", "lte":
		return badRequest(fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param()))
	default:
		return badRequest(fe.Field() + " is invalid")
	}
}

func minimum(fe validator.FieldError) string {
	if fe.Tag() != "gt" {
		return fe.Param()
	}
	n, err := strconv.Atoi(fe.Param())
	if err != nil {
		return fe.Param()
	}
	return strconv.Itoa(n + 1)
}

// Field readers accept JSON null as "absent".

func readString(d *jx.Decoder, field string, dst **string) error {
	var v string
	if d.Next() == jx.Null {
		return d.Null()
	}
	if err := readStr(d, field, &v); err != nil {
		return err
	}
	*dst = &v
	return nil
}

func readStr(d *jx.Decoder, field string, dst *string) error {
	switch d.Next() {
	case jx.Null:
		return d.Null()
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return err
		}
		*dst = v
		return nil
	default:
		return badRequest(field + " must be a string")
	}
}

func readInt(d *jx.Decoder, field string, dst **int) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	if d.Next() != jx.Number {
		return badRequest(field + " must be a number")
	}
	v, err := d.Int()
	if err != nil {
		return badRequest(field + " must be an integer")
	}
	*dst = &v
	return nil
}

func readInt64(d *jx.Decoder, field string, dst *int64) error {
	if d.Next() != jx.Number {
		return badRequest(field + " must be a number")
	}
	v, err := d.Int64()
	if err != nil {
		return badRequest(field + " must be an integer")
	}
	*dst = v
	return nil
}

func readBool(d *jx.Decoder, field string, dst **bool) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	if d.Next() != jx.Bool {
		return badRequest(field + " must be a boolean")
	}
	v, err := d.Bool()
	if err != nil {
		return err
	}
	*dst = &v
	return nil
}

func readDecimal(d *jx.Decoder, field string, dst **decimal.Decimal) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	if d.Next() != jx.Number {
		return badRequest(field + " must be a number")
	}
	n, err := d.Num()
	if err != nil {
		return err
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return badRequest(field + " must be a decimal number")
	}
	*dst = &v
	return nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp.
func parseDate(field, v string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, badRequest(field + " must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
	}
	return t, nil
}

func parseID(value, field string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(field + " must be a positive integer")
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest(name + " must be an integer")
	}
	return n, nil
}
