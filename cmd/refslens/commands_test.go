// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/refslens/cmd/refslens/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListen(t *testing.T) {
	tests := []struct {
		in          string
		wantNetwork string
		wantAddress string
		wantErr     bool
	}{
		{"unix:/tmp/refslens.sock", "unix", "/tmp/refslens.sock", false},
		{"tcp:127.0.0.1:7070", "tcp", "127.0.0.1:7070", false},
		{"udp:127.0.0.1:7070", "", "", true},
		{"unix:", "", "", true},
		{"/tmp/refslens.sock", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			network, address, err := parseListen(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNetwork, network)
			assert.Equal(t, tt.wantAddress, address)
		})
	}
}

func TestBuildRegistry(t *testing.T) {
	c := config.DefaultConfig()
	c.Services["refs"] = config.ServiceConfig{
		Mode:        config.ModeSocket,
		Network:     "unix",
		Address:     "/run/{hostGroup}.sock",
		DialTimeout: time.Second,
	}

	registry := buildRegistry(c, quietLogger())
	assert.Equal(t, []string{"analysis", "refs"}, registry.Services())
}

func TestResolveCommand(t *testing.T) {
	assert.Equal(t, "cat", resolveCommand("cat"))

	self := resolveCommand("refslens")
	assert.True(t, filepath.IsAbs(self), "refslens should resolve to the running executable, got %q", self)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "refslens "+version+"\n", out.String())
}

func TestRootCommand_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refslens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services:\n  analysis:\n    mode: grpc\n"), 0o644))

	var stderr bytes.Buffer
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"--config", path, "analysis"})
	t.Cleanup(func() {
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		configPath = ""
	})

	err := rootCmd.Execute()
	assert.True(t, errors.Is(err, config.ErrInvalidConfig), "got %v", err)
}

func TestStdioStream_CloseClosesBoth(t *testing.T) {
	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	defer inW.Close()
	defer outR.Close()

	s := &stdioStream{in: inR, out: outW}

	_, err = inW.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	_, err = s.Write([]byte("pong"))
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close returns the first result")

	_, err = s.Write([]byte("x"))
	assert.Error(t, err)
}
