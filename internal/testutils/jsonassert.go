package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value.
const PresencePlaceholder = "<<PRESENCE>>"

// MustJSON marshals v or panics.
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

type JSONAssertOptions struct {
	IgnoreExtraKeys          bool     `default:"true"`
	AllowPresencePlaceholder bool     `default:"true"`
	IgnoredFields            []string `default:""`
}

// Option is a functional option for configuring JSONAsserter
type Option func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a readable diff.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates a new JSONAsserter with default options
func NewJSONAsserter(t TestingT) *JSONAsserter {
	opts := JSONAssertOptions{}
	defaults.SetDefaults(&opts)
	return &JSONAsserter{t: t, options: opts}
}

// WithOptions applies functional options to the JSONAsserter
func (ja *JSONAsserter) WithOptions(opts ...Option) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert compares actualJSON against expectedJSON
func (ja *JSONAsserter) Assert(actualJSON, expectedJSON string) {
	if diff := ja.diff(actualJSON, expectedJSON); diff != "" {
		ja.t.Errorf("JSON assertion failed:\n%s", diff)
	}
}

func (ja *JSONAsserter) diff(actualJSON, expectedJSON string) string {
	var expected, actual interface{}
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &actual); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff only compares objects at the root
	if _, ok := expected.([]interface{}); ok {
		expected = map[string]interface{}{"array": expected}
		actual = map[string]interface{}{"array": actual}
	}

	walkPair(expected, actual, func(exp, act map[string]interface{}) {
		for _, f := range ja.options.IgnoredFields {
			delete(exp, f)
			delete(act, f)
		}
		for k, v := range exp {
			if s, ok := v.(string); ok && s == PresencePlaceholder && ja.options.AllowPresencePlaceholder {
				if av, present := act[k]; present {
					exp[k] = av
				}
			}
		}
		if ja.options.IgnoreExtraKeys {
			for k := range act {
				if _, ok := exp[k]; !ok {
					delete(act, k)
				}
			}
		}
	})

	expectedBytes, _ := json.Marshal(expected)
	actualBytes, _ := json.Marshal(actual)

	d, err := gojsondiff.New().Compare(expectedBytes, actualBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !d.Modified() {
		return ""
	}

	f := formatter.NewAsciiFormatter(expected, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(d)
	return out
}

// walkPair visits every object present at the same path on both sides.
func walkPair(expected, actual interface{}, fn func(exp, act map[string]interface{})) {
	switch exp := expected.(type) {
	case map[string]interface{}:
		act, ok := actual.(map[string]interface{})
		if !ok {
			return
		}
		fn(exp, act)
		for k := range exp {
			walkPair(exp[k], act[k], fn)
		}
	case []interface{}:
		act, ok := actual.([]interface{})
		if !ok {
			return
		}
		for i := range exp {
			if i < len(act) {
				walkPair(exp[i], act[i], fn)
			}
		}
	}
}

// WithIgnoreExtraKeys drops keys of actual that expected does not mention.
func WithIgnoreExtraKeys(ignore bool) Option {
	return func(opts *JSONAssertOptions) { opts.IgnoreExtraKeys = ignore }
}

// WithIgnoredFields removes the named keys on both sides before comparing.
func WithIgnoredFields(fields ...string) Option {
	return func(opts *JSONAssertOptions) { opts.IgnoredFields = fields }
}
