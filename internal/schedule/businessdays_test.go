package schedule

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddBusinessDaysSkipsWeekends(t *testing.T) {
	monday := date(2024, time.June, 3)
	got := AddBusinessDays(monday, 5)
	want := date(2024, time.June, 10) // following Monday
	if !got.Equal(want) {
		t.Fatalf("monday+5 = %s, want %s", got, want)
	}
	friday := date(2024, time.June, 7)
	if got := AddBusinessDays(friday, 1); !got.Equal(date(2024, time.June, 10)) {
		t.Fatalf("friday+1 = %s", got)
	}
	if got := AddBusinessDays(monday, 0); !got.Equal(monday) {
		t.Fatalf("n=0 must be a no-op, got %s", got)
	}
	if got := AddBusinessDays(monday, -1); !got.Equal(date(2024, time.May, 31)) {
		t.Fatalf("monday-1 = %s, want previous Friday", got)
	}
}

func TestParseTimeline(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2 weeks", 10},
		{"1 month", 20},
		{"3 days", 3},
		{"1 wk", 5},
		{"2mo", 40},
		{"10d", 10},
		{"Roughly 4 Weeks of work", 20},
	}
	for _, c := range cases {
		got, err := ParseTimeline(c.in)
		if err != nil {
			t.Fatalf("ParseTimeline(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ParseTimeline(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if _, err := ParseTimeline("bogus"); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable, got %v", err)
	}
	if _, err := ParseTimeline(""); !errors.Is(err, ErrUnparseable) {
		t.Fatalf("expected ErrUnparseable for empty input, got %v", err)
	}
}

func TestFormatTimeline(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, ""},
		{-3, ""},
		{1, "1 day"},
		{3, "3 days"},
		{5, "1 week"},
		{10, "2 weeks"},
		{20, "1 month"},
		{40, "2 months"},
		{7, "7 days"},
	}
	for _, c := range cases {
		if got := FormatTimeline(c.in); got != c.want {
			t.Fatalf("FormatTimeline(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseFormatDate(t *testing.T) {
	d, err := ParseDate("2024-06-03")
	if err != nil {
		t.Fatal(err)
	}
	if FormatDate(d) != "2024-06-03" {
		t.Fatalf("round trip failed: %s", FormatDate(d))
	}
	if _, err := ParseDate("03/06/2024"); err == nil {
		t.Fatal("expected parse error")
	}
}
