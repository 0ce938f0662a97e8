package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// writeOK writes {"isSuccess":true,"message":...,"result":...}. A nil
// result omits the field.
func writeOK(w http.ResponseWriter, status int, message string, result func(e *jx.Encoder)) {
	writeEnvelope(w, status, true, message, result)
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeEnvelope(w, status, false, message, nil)
}

func writeEnvelope(w http.ResponseWriter, status int, ok bool, message string, result func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("isSuccess")
	e.Bool(ok)
	e.FieldStart("message")
	e.Str(message)
	if result != nil {
		e.FieldStart("result")
		result(e)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}
