package main

import "testing"

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		text string
		cmd  string
		rest string
	}{
		{"/run", "/run", ""},
		{"/run  print(1)", "/run", "print(1)"},
		{"/run\nprint(1)", "/run", "print(1)"},
		{"  /help  ", "/help", ""},
		{"", "", ""},
		{"plain text here", "plain", "text here"},
	}
	for _, c := range cases {
		cmd, rest := splitCommand(c.text)
		if cmd != c.cmd || rest != c.rest {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", c.text, cmd, rest, c.cmd, c.rest)
		}
	}
}

func TestNormalizeSlashCommand(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/run", "/run"},
		{"/RUN", "/run"},
		{"/run@PyRunXBot", "/run"},
		{"/cancel@PyRunXBot", "/cancel"},
		{"run", ""},
		{"", ""},
		{"  /start ", "/start"},
	}
	for _, c := range cases {
		if got := normalizeSlashCommand(c.in); got != c.want {
			t.Errorf("normalizeSlashCommand(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
