package cmd

import "testing"

func TestFormatSize(t *testing.T) {
	tests := []struct {
		mb   float64
		want string
	}{
		{0, "0.0 KB"},
		{0.5, "512.0 KB"},
		{1, "1.0 MB"},
		{12.34, "12.3 MB"},
		{1536, "1.5 GB"},
	}
	for _, tt := range tests {
		if got := formatSize(tt.mb); got != tt.want {
			t.Errorf("formatSize(%v) = %q, want %q", tt.mb, got, tt.want)
		}
	}
}

func TestShortenPath(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		maxLen int
		want   string
	}{
		{"short", "/a/b.png", 40, "/a/b.png"},
		{"long dir", "/very/long/directory/name/photo.png", 20, "...y/name/photo.png"},
		{"long file", "/x/averyveryverylongfilename.png", 10, "...ame.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shortenPath(tt.path, tt.maxLen)
			if got != tt.want {
				t.Errorf("shortenPath(%q, %d) = %q, want %q", tt.path, tt.maxLen, got, tt.want)
			}
			if len(got) > tt.maxLen {
				t.Errorf("len = %d exceeds %d", len(got), tt.maxLen)
			}
		})
	}
}
