package core

import "testing"

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-05", "2024-01-05"},
		{" 2024-01-05 ", "2024-01-05"},
		{"2024-01-05T10:30:00Z", "2024-01-05"},
		{"2024-01-05T23:30:00-02:00", "2024-01-06"},
		{"2024-01-05T10:30:00.123456789Z", "2024-01-05"},
		{"2024-01-05 08:00:00", "2024-01-05"},
		{"2024/01/05", "2024-01-05"},
		{"01/05/2024", "2024-01-05"},
		{"yesterday", "yesterday"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeDate(tt.in); got != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2024-02-29")
	if !ok {
		t.Fatal("ParseDate(2024-02-29) should succeed")
	}
	if d.Year() != 2024 || d.Month() != 2 || d.Day() != 29 || d.Hour() != 0 {
		t.Errorf("ParseDate(2024-02-29) = %v", d)
	}

	for _, bad := range []string{"2023-02-29", "2024-13-01", "05.01.2024", "   "} {
		if _, ok := ParseDate(bad); ok {
			t.Errorf("ParseDate(%q) should fail", bad)
		}
	}
}
