package buttons

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseURLButton(t *testing.T) {
	rows, err := Parse("Go - https://example.com", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := [][]Spec{{{Kind: KindURL, Label: "Go", URL: "https://example.com"}}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSameRowAppendsToPreviousRow(t *testing.T) {
	rows, err := Parse("First - https://a.example", nil)
	if err != nil {
		t.Fatalf("Parse first: %v", err)
	}
	rows, err = Parse("Go - https://example.com:same", rows)
	if err != nil {
		t.Fatalf("Parse same-row: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if len(rows[0]) != 2 {
		t.Fatalf("expected 2 buttons in row, got %d", len(rows[0]))
	}
	if rows[0][1].URL != "https://example.com" {
		t.Errorf("suffix not stripped, url = %q", rows[0][1].URL)
	}
}

func TestParseSameRowWithoutPreviousRowStartsNewRow(t *testing.T) {
	rows, err := Parse("Go - https://example.com:same", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 1 || len(rows[0]) != 1 {
		t.Fatalf("expected a single one-button row, got %v", rows)
	}
}

func TestParseAlertButton(t *testing.T) {
	tests := []struct {
		name      string
		line      string
		alertText string
		showAlert bool
	}{
		{"true flag", "Show - Hello World:alert:true", "Hello World", true},
		{"true flag uppercase", "Show - Hello:alert:TRUE", "Hello", true},
		{"non-true flag is false", "Show - Hello World:alert:banana", "Hello World", false},
		{"false flag", "Show - Hi:alert:false", "Hi", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := Parse(tt.line, nil)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(rows) != 1 || len(rows[0]) != 1 {
				t.Fatalf("expected a single one-button row, got %v", rows)
			}
			got := rows[0][0]
			if got.Kind != KindAlert {
				t.Errorf("kind = %q, want %q", got.Kind, KindAlert)
			}
			if got.AlertText != tt.alertText {
				t.Errorf("alert text = %q, want %q", got.AlertText, tt.alertText)
			}
			if got.ShowAlert != tt.showAlert {
				t.Errorf("show alert = %v, want %v", got.ShowAlert, tt.showAlert)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"no delimiter", "NoDelimiterHere", ErrInvalidFormat},
		{"empty label", " - https://example.com", ErrInvalidFormat},
		{"empty target", "Label - ", ErrInvalidFormat},
		{"not a url", "Label - ftp://example.com", ErrInvalidFormat},
		{"plain text target", "Label - just words", ErrInvalidFormat},
		{"alert missing flag", "Label - Text:alert:", ErrBadAlert},
		{"alert missing text", "Label - :alert:true", ErrBadAlert},
		{"url without host", "Label - https://", ErrBadURL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.line, nil); !errors.Is(err, tt.want) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.line, err, tt.want)
			}
		})
	}
}

func TestParseFailureLeavesAccumulatedRowsUntouched(t *testing.T) {
	rows, err := Parse("Go - https://example.com", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	before := cloneRows(rows)

	if _, err := Parse("Go - https://ok.example\nNoDelimiterHere", rows); err == nil {
		t.Fatal("expected parse error")
	}
	if diff := cmp.Diff(before, rows); diff != "" {
		t.Errorf("input rows mutated (-want +got):\n%s", diff)
	}
}

func TestParseMultiLine(t *testing.T) {
	text := "One - https://a.example\nTwo - https://b.example:same\n\nShow - Hey:alert:true"
	rows, err := Parse(text, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if len(rows[0]) != 2 {
		t.Errorf("expected first row to hold 2 buttons, got %d", len(rows[0]))
	}
	if Count(rows) != 3 {
		t.Errorf("Count = %d, want 3", Count(rows))
	}
}

func TestMarkup(t *testing.T) {
	rows := [][]Spec{
		{{Kind: KindURL, Label: "Go", URL: "https://example.com"}},
		{{Kind: KindAlert, Label: "Show", AlertText: "Hello", ShowAlert: true}},
	}
	m := Markup(rows)
	if m == nil {
		t.Fatal("Markup returned nil for non-empty rows")
	}
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("expected 2 keyboard rows, got %d", len(m.InlineKeyboard))
	}
	if m.InlineKeyboard[0][0].URL != "https://example.com" {
		t.Errorf("url button = %+v", m.InlineKeyboard[0][0])
	}
	alert := m.InlineKeyboard[1][0]
	if alert.Unique != AlertCallbackKey {
		t.Errorf("alert unique = %q, want %q", alert.Unique, AlertCallbackKey)
	}
	text, show := DecodeAlert(alert.Data)
	if text != "Hello" || !show {
		t.Errorf("DecodeAlert(%q) = (%q, %v), want (Hello, true)", alert.Data, text, show)
	}
}

func TestMarkupEmpty(t *testing.T) {
	if m := Markup(nil); m != nil {
		t.Errorf("Markup(nil) = %+v, want nil", m)
	}
}
