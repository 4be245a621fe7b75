package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestWatchCmd_Help(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"watch", "--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("watch --help failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "watch daemon") {
		t.Errorf("expected help to mention 'watch daemon', got: %s", out)
	}
	if !strings.Contains(out, "--config") {
		t.Errorf("expected help to mention '--config' flag, got: %s", out)
	}
}

func TestNewWatchCmd(t *testing.T) {
	cmd := newWatchCmd()
	if cmd.Use != "watch" {
		t.Errorf("Use = %q, want %q", cmd.Use, "watch")
	}

	cfgFlag := cmd.Flags().Lookup("config")
	if cfgFlag == nil {
		t.Fatal("expected --config flag")
	}
	if cfgFlag.DefValue != "datagoal.yaml" {
		t.Errorf("--config default = %q, want %q", cfgFlag.DefValue, "datagoal.yaml")
	}
	if cfgFlag.Shorthand != "c" {
		t.Errorf("--config shorthand = %q, want %q", cfgFlag.Shorthand, "c")
	}
}

func TestWatchCmd_MissingConfig(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"watch", "--config", "/nonexistent/datagoal.yaml"})

	err := cmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
	if !strings.Contains(err.Error(), "load config") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "load config")
	}
}
