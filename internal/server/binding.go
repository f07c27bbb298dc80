// Fills request structs from the JSON body, the path and the query string.

package server

import (
	"bytes"
	"context"
	"encoding"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"

	"github.com/maruel/ksid"
	"github.com/maruel/pantry/internal/server/dto"
	"github.com/maruel/pantry/internal/server/handlers"
)

// bind decodes r into a new In and validates it. On failure the error has
// already been written to w and nil is returned.
//
// Fields tagged `path:"name"` receive r.PathValue(name) and fields tagged
// `query:"name"` the first query value. Both override the body.
func bind[In any, PtrIn interface {
	*In
	dto.Validatable
}](ctx context.Context, w http.ResponseWriter, r *http.Request, cfg *handlers.Config) PtrIn {
	in := PtrIn(new(In))
	if err := decodeBody(w, r, in, cfg.Quotas.MaxRequestBodyBytes); err != nil {
		slog.InfoContext(ctx, "Bad request body", "err", err)
		writeAPIError(w, dto.AsError(err))
		return nil
	}
	bindTags(r, in)
	if err := in.Validate(); err != nil {
		var ews dto.ErrorWithStatus
		if !errors.As(err, &ews) {
			ews = dto.BadRequest(err.Error())
		}
		slog.InfoContext(ctx, "Validation error", "err", err, "code", ews.Code())
		writeAPIError(w, ews)
		return nil
	}
	return in
}

// decodeBody reads at most limit bytes of JSON into v. An empty body leaves v
// untouched. Unknown fields are rejected.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, limit int64) error {
	body := io.Reader(r.Body)
	if limit > 0 {
		body = http.MaxBytesReader(w, r.Body, limit)
	}
	raw, err := io.ReadAll(body)
	_ = r.Body.Close()
	if err != nil {
		if mbe := (*http.MaxBytesError)(nil); errors.As(err, &mbe) {
			return dto.PayloadTooLarge(mbe.Limit)
		}
		return dto.InvalidFormat("Failed to read request body").Wrap(err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	if err := d.Decode(v); err != nil {
		return dto.InvalidFormat("Invalid request body").Wrap(err)
	}
	return nil
}

var idType = reflect.TypeFor[ksid.ID]()

// bindTags copies path and query values into the tagged fields of the struct
// pointed to by v. Values that do not parse are ignored and left for Validate
// to reject.
func bindTags(r *http.Request, v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return
	}
	s := rv.Elem()
	query := r.URL.Query()
	for _, f := range reflect.VisibleFields(s.Type()) {
		if !f.IsExported() {
			continue
		}
		var raw string
		if name := f.Tag.Get("path"); name != "" {
			raw = r.PathValue(name)
		} else if name := f.Tag.Get("query"); name != "" {
			raw = query.Get(name)
		}
		if raw != "" {
			setField(s.FieldByIndex(f.Index), raw)
		}
	}
}

func setField(fv reflect.Value, raw string) {
	switch {
	case fv.Type() == idType:
		if id, err := ksid.Parse(raw); err == nil {
			fv.Set(reflect.ValueOf(id))
		}
	case fv.Kind() == reflect.String:
		fv.SetString(raw)
	case fv.Kind() == reflect.Int || fv.Kind() == reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fv.SetInt(n)
		}
	default:
		if u, ok := fv.Addr().Interface().(encoding.TextUnmarshaler); ok {
			_ = u.UnmarshalText([]byte(raw))
		}
	}
}
