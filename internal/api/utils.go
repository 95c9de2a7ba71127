package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

var (
	queryDecoder = newQueryDecoder()
	validate     = newValidator()
)

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"schema", "json"} {
			if name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]; name != "" && name != "-" {
				return name
			}
		}
		return fld.Name
	})
	return v
}

func validateRequest(data any) error {
	if err := validate.Struct(data); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				if fe.Param() != "" {
					msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
				} else {
					msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
				}
			}
			return CodedErrorf(http.StatusBadRequest, "invalid request: %s", strings.Join(msgs, "; "))
		}
		return CodedErrorf(http.StatusBadRequest, "invalid request: %v", err)
	}
	return nil
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, validateRequest(data)
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	if err := queryDecoder.Decode(&data, r.Form); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params: %v", err)
	}

	return data, validateRequest(data)
}

func writeError(w http.ResponseWriter, err error) {
	var cerr *codedError
	if errors.As(err, &cerr) {
		http.Error(w, err.Error(), cerr.code)
		if cerr.code == http.StatusInternalServerError {
			slog.Error("internal server error received in endpoint", "error", err)
		}
		return
	}
	slog.Error("recieved non coded error from endpoint", "error", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

// FileResponse is a download produced by Write directly into the response.
type FileResponse struct {
	Name        string
	ContentType string
	Write       func(w io.Writer) error
}

type trackingWriter struct {
	http.ResponseWriter
	header  func()
	written bool
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if !t.written {
		t.header()
		t.written = true
	}
	return t.ResponseWriter.Write(p)
}

// FileHandler streams a download. Headers are only sent with the first byte,
// so a failure before any output still produces a normal error response.
func FileHandler(handler func(r *http.Request) (FileResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := handler(r)
		if err != nil {
			writeError(w, err)
			return
		}

		tw := &trackingWriter{ResponseWriter: w, header: func() {
			w.Header().Set("Content-Type", file.ContentType)
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
			w.WriteHeader(http.StatusOK)
		}}

		if err := file.Write(tw); err != nil {
			if !tw.written {
				writeError(w, err)
				return
			}
			slog.Error("error streaming file response", "file", file.Name, "error", err)
			return
		}

		if !tw.written {
			tw.header()
		}
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
	}
}
