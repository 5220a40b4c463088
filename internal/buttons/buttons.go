// Package buttons implements the line-oriented mini-language that turns
// user text into inline keyboard layouts for published posts.
//
// Each non-empty line produces one button:
//
//	Label - https://example.com          URL button on a new row
//	Label - https://example.com:same     URL button appended to the previous row
//	Label - Some text:alert:true         popup button showing "Some text"
package buttons

import (
	"errors"
	"net/url"
	"strings"
)

// Kind discriminates button variants.
type Kind string

const (
	// KindURL opens a link when pressed.
	KindURL Kind = "url"
	// KindAlert shows a popup or toast with stored text when pressed.
	KindAlert Kind = "alert"
)

// Spec describes a single parsed button.
type Spec struct {
	Kind      Kind
	Label     string
	URL       string
	AlertText string
	ShowAlert bool
}

var (
	// ErrInvalidFormat reports a line that matches none of the supported shapes.
	ErrInvalidFormat = errors.New("buttons: invalid format, expected \"Label - URL\" or \"Label - Text:alert:<bool>\"")
	// ErrBadAlert reports alert syntax with a missing text or flag segment.
	ErrBadAlert = errors.New("buttons: invalid alert format, expected \"Label - Text:alert:true\"")
	// ErrBadURL reports a target that looks like a URL but does not parse as one.
	ErrBadURL = errors.New("buttons: target is not a valid absolute URL")
)

const (
	labelDelimiter = " - "
	sameRowSuffix  = ":same"
	alertMarker    = ":alert:"
)

// Parse appends the buttons described by text to a copy of rows and returns
// the copy. The input rows are never mutated: if any line fails to parse, the
// caller's accumulated layout stays intact.
func Parse(text string, rows [][]Spec) ([][]Spec, error) {
	out := cloneRows(rows)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var err error
		out, err = parseLine(line, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseLine(line string, rows [][]Spec) ([][]Spec, error) {
	// Split on the first delimiter only: labels and targets may contain '-'.
	label, target, found := strings.Cut(line, labelDelimiter)
	label = strings.TrimSpace(label)
	target = strings.TrimSpace(target)
	if !found || label == "" || target == "" {
		return nil, ErrInvalidFormat
	}

	if strings.Contains(target, alertMarker) {
		text, flag, _ := strings.Cut(target, alertMarker)
		text = strings.TrimSpace(text)
		flag = strings.TrimSpace(flag)
		if text == "" || flag == "" {
			return nil, ErrBadAlert
		}
		spec := Spec{
			Kind:      KindAlert,
			Label:     label,
			AlertText: text,
			ShowAlert: strings.EqualFold(flag, "true"),
		}
		return append(rows, []Spec{spec}), nil
	}

	sameRow := false
	if strings.HasSuffix(target, sameRowSuffix) {
		target = strings.TrimSuffix(target, sameRowSuffix)
		sameRow = true
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return nil, ErrInvalidFormat
	}
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return nil, ErrBadURL
	}

	spec := Spec{Kind: KindURL, Label: label, URL: target}
	if sameRow && len(rows) > 0 {
		last := len(rows) - 1
		rows[last] = append(rows[last], spec)
		return rows, nil
	}
	return append(rows, []Spec{spec}), nil
}

// Count returns the total number of buttons across all rows.
func Count(rows [][]Spec) int {
	n := 0
	for _, row := range rows {
		n += len(row)
	}
	return n
}

func cloneRows(rows [][]Spec) [][]Spec {
	out := make([][]Spec, len(rows))
	for i, row := range rows {
		out[i] = append([]Spec(nil), row...)
	}
	return out
}
