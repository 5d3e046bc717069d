package cmd

import (
	"testing"
)

func TestCommandTree(t *testing.T) {
	want := map[string]bool{
		"serve":    false,
		"analyze":  false,
		"status":   false,
		"snapshot": false,
		"version":  false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %s not registered", name)
		}
	}
}

func TestSnapshotSubcommands(t *testing.T) {
	want := map[string]bool{
		"list": false, "capture": false, "compare": false,
		"verify": false, "export": false, "import": false,
	}
	for _, c := range snapshotCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("snapshot subcommand %s not registered", name)
		}
	}
}

func TestShortCommit(t *testing.T) {
	if got := shortCommit("0123456789abcdef"); got != "01234567" {
		t.Errorf("shortCommit = %s", got)
	}
	if got := shortCommit("abc"); got != "abc" {
		t.Errorf("shortCommit = %s", got)
	}
}
