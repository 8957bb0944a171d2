package httpx

import (
	"context"
	"encoding/json"
)

// Fake is a Context implementation for handler tests.
type Fake struct {
	QueryParams map[string]string
	FormParams  map[string]string
	Headers     map[string]string
	Values      map[string]any

	StatusCode   int
	Body         any
	RedirectedTo string
	BindBody     []byte
}

func (f *Fake) RequestContext() context.Context {
	return context.Background()
}

func (f *Fake) Query(key string) string {
	return f.QueryParams[key]
}

func (f *Fake) PostForm(key string) string {
	return f.FormParams[key]
}

func (f *Fake) Header(key string) string {
	return f.Headers[key]
}

func (f *Fake) JSON(status int, value any) {
	f.StatusCode = status
	f.Body = value
}

func (f *Fake) Redirect(status int, location string) {
	f.StatusCode = status
	f.RedirectedTo = location
}

func (f *Fake) Status(status int) {
	f.StatusCode = status
}

func (f *Fake) BindJSON(value any) error {
	if len(f.BindBody) == 0 {
		return nil
	}
	return json.Unmarshal(f.BindBody, value)
}

func (f *Fake) Set(key string, value any) {
	if f.Values == nil {
		f.Values = make(map[string]any)
	}
	f.Values[key] = value
}

func (f *Fake) Get(key string) (any, bool) {
	value, ok := f.Values[key]
	return value, ok
}
