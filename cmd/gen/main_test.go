package main

import (
	"testing"
)

// every subcommand owns its FlagSet, so klog flags must be registered on
// each of them to be reachable
func TestSubcommandsAcceptLogFlags(t *testing.T) {
	dir := t.TempDir()

	if code := cmdInit([]string{"-v=1", dir}); code != 0 {
		t.Fatalf("init exit = %d", code)
	}
	if code := cmdDryRun([]string{"-v=1", "-root", dir}); code != 0 {
		t.Errorf("dry-run exit = %d", code)
	}
}
