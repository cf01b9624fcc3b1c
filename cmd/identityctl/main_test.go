package main

import (
	"reflect"
	"testing"
)

func TestParseArgs(t *testing.T) {
	opts, rest := parseArgs([]string{"alice", "--email=a@example.com", "--force", "admin"})

	wantOpts := map[string]string{"email": "a@example.com", "force": "true"}
	if !reflect.DeepEqual(opts, wantOpts) {
		t.Errorf("opts = %v, want %v", opts, wantOpts)
	}
	if want := []string{"alice", "admin"}; !reflect.DeepEqual(rest, want) {
		t.Errorf("rest = %v, want %v", rest, want)
	}
}
