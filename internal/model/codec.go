// Package model defines the archive entities and their document codecs.
//
// Codecs are written by hand. Attribute names come from globalconst and empty strings and lists are
// left out of the document. Numbers and flags are always written, so a stored 0 or false is a value
// filters can match. Dates are stored as fixed-width UTC strings. Decoding rejects top-level keys
// the entity does not define and fractional values in integer fields.
package model

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"pride-store/internal/globalconst"
	"pride-store/internal/store"
)

// CvParam is a controlled-vocabulary term.
type CvParam struct {
	CvLabel   string
	Accession string
	Name      string
	Value     string
}

const (
	cvLabel     = "cvLabel"
	cvAccession = "accession"
	cvName      = "name"
	cvValue     = "value"
)

func (p CvParam) document() map[string]any {
	out := make(map[string]any, 4)
	putString(out, cvLabel, p.CvLabel)
	putString(out, cvAccession, p.Accession)
	putString(out, cvName, p.Name)
	putString(out, cvValue, p.Value)
	return out
}

func decodeCvParam(d *decoder) CvParam {
	return CvParam{
		CvLabel:   d.str(cvLabel),
		Accession: d.str(cvAccession),
		Name:      d.str(cvName),
		Value:     d.str(cvValue),
	}
}

// IsZero reports whether no attribute of the term is set.
func (p CvParam) IsZero() bool {
	return p == CvParam{}
}

// FormatDate renders t in the storage layout.
func FormatDate(t time.Time) string {
	return t.UTC().Format(globalconst.DateLayout)
}

func putString(doc map[string]any, key, v string) {
	if v != "" {
		doc[key] = v
	}
}

func putStrings(doc map[string]any, key string, v []string) {
	if len(v) == 0 {
		return
	}
	out := make([]any, len(v))
	for i, s := range v {
		out[i] = s
	}
	doc[key] = out
}

func putFloat(doc map[string]any, key string, v float64) {
	doc[key] = v
}

func putInt(doc map[string]any, key string, v int) {
	doc[key] = float64(v)
}

func putBool(doc map[string]any, key string, v bool) {
	doc[key] = v
}

func putDate(doc map[string]any, key string, t time.Time) {
	if !t.IsZero() {
		doc[key] = FormatDate(t)
	}
}

func putCv(doc map[string]any, key string, p CvParam) {
	if !p.IsZero() {
		doc[key] = p.document()
	}
}

func putCvs(doc map[string]any, key string, ps []CvParam) {
	if len(ps) == 0 {
		return
	}
	out := make([]any, len(ps))
	for i, p := range ps {
		out[i] = p.document()
	}
	doc[key] = out
}

// decoder reads typed attributes out of a document and keeps the first type error. It remembers
// which keys were asked for so finish can report the rest.
type decoder struct {
	doc  map[string]any
	path string
	err  error
	seen map[string]struct{}
}

func newDecoder(doc store.Document) *decoder {
	return &decoder{doc: doc}
}

func (d *decoder) fail(key string, want string, got any) {
	if d.err == nil {
		d.err = fmt.Errorf("field %s%s: expected %s, got %T", d.path, key, want, got)
	}
}

// get marks key as known and returns its value, treating null as absent.
func (d *decoder) get(key string) (any, bool) {
	if d.seen == nil {
		d.seen = make(map[string]struct{}, len(d.doc))
	}
	d.seen[key] = struct{}{}
	v, ok := d.doc[key]
	return v, ok && v != nil
}

// finish returns the first type error, or an error naming the keys no accessor read.
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	var unknown []string
	for k := range d.doc {
		if _, ok := d.seen[k]; !ok {
			unknown = append(unknown, d.path+k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	slices.Sort(unknown)
	return fmt.Errorf("unknown fields: %s", strings.Join(unknown, ", "))
}

func (d *decoder) str(key string) string {
	v, ok := d.get(key)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, "string", v)
	}
	return s
}

func (d *decoder) strs(key string) []string {
	v, ok := d.get(key)
	if !ok {
		return nil
	}
	switch arr := v.(type) {
	case []string:
		return append([]string(nil), arr...)
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				d.fail(key, "string array", item)
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		d.fail(key, "string array", v)
		return nil
	}
}

func (d *decoder) num(key string) float64 {
	v, ok := d.get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case int32:
		return float64(n)
	default:
		d.fail(key, "number", v)
		return 0
	}
}

func (d *decoder) integer(key string) int {
	return int(d.whole(key))
}

func (d *decoder) long(key string) int64 {
	return int64(d.whole(key))
}

// whole reads a number that must have no fractional part.
func (d *decoder) whole(key string) float64 {
	n := d.num(key)
	if n != math.Trunc(n) {
		if d.err == nil {
			d.err = fmt.Errorf("field %s%s: expected integer, got %v", d.path, key, n)
		}
		return 0
	}
	return n
}

func (d *decoder) flag(key string) bool {
	v, ok := d.get(key)
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.fail(key, "bool", v)
	}
	return b
}

func (d *decoder) date(key string) time.Time {
	s := d.str(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(globalconst.DateLayout, s)
	if err != nil {
		d.fail(key, "date", s)
		return time.Time{}
	}
	return t
}

func (d *decoder) object(key string) (*decoder, bool) {
	v, ok := d.get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	if !ok {
		d.fail(key, "object", v)
		return nil, false
	}
	return &decoder{doc: m, path: d.path + key + "."}, true
}

func (d *decoder) objects(key string) []*decoder {
	v, ok := d.get(key)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		d.fail(key, "object array", v)
		return nil
	}
	out := make([]*decoder, 0, len(arr))
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			d.fail(key, "object array", item)
			return nil
		}
		out = append(out, &decoder{doc: m, path: fmt.Sprintf("%s%s[%d].", d.path, key, i)})
	}
	return out
}

// collect records the first error of a nested decoder.
func (d *decoder) collect(sub *decoder) {
	if d.err == nil && sub.err != nil {
		d.err = sub.err
	}
}

func (d *decoder) cv(key string) CvParam {
	sub, ok := d.object(key)
	if !ok {
		return CvParam{}
	}
	p := decodeCvParam(sub)
	d.collect(sub)
	return p
}

func (d *decoder) cvs(key string) []CvParam {
	subs := d.objects(key)
	if len(subs) == 0 {
		return nil
	}
	out := make([]CvParam, 0, len(subs))
	for _, sub := range subs {
		out = append(out, decodeCvParam(sub))
		d.collect(sub)
	}
	return out
}

func (d *decoder) id() string {
	v, _ := d.get(globalconst.ID)
	s, _ := v.(string)
	return s
}
