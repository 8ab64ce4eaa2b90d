// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hub

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type nopStream struct {
	io.Reader
	io.Writer
}

func (nopStream) Close() error { return nil }

func TestServiceDescriptor_String(t *testing.T) {
	tests := []struct {
		desc ServiceDescriptor
		want string
	}{
		{ServiceDescriptor{Name: "analysis"}, "analysis"},
		{ServiceDescriptor{Name: "analysis", HostGroup: "g1"}, "analysis@g1"},
	}
	for _, tt := range tests {
		if got := tt.desc.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestRegistry_RequestService(t *testing.T) {
	reg := NewRegistry()
	var gotDesc ServiceDescriptor
	reg.Register("analysis", BrokerFunc(func(ctx context.Context, desc ServiceDescriptor) (io.ReadWriteCloser, error) {
		gotDesc = desc
		return nopStream{Reader: strings.NewReader(""), Writer: io.Discard}, nil
	}))

	desc := ServiceDescriptor{Name: "analysis", HostGroup: "group-1"}
	stream, err := reg.RequestService(context.Background(), desc)
	if err != nil {
		t.Fatalf("RequestService() error = %v", err)
	}
	defer stream.Close()

	if gotDesc != desc {
		t.Errorf("broker received %+v, want %+v", gotDesc, desc)
	}
}

func TestRegistry_UnknownService(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.RequestService(context.Background(), ServiceDescriptor{Name: "missing"})
	if !errors.Is(err, ErrUnknownService) {
		t.Errorf("error = %v, want ErrUnknownService", err)
	}
}

func TestRegistry_PropagatesBrokerError(t *testing.T) {
	boom := errors.New("boom")
	reg := NewRegistry()
	reg.Register("analysis", BrokerFunc(func(context.Context, ServiceDescriptor) (io.ReadWriteCloser, error) {
		return nil, boom
	}))

	_, err := reg.RequestService(context.Background(), ServiceDescriptor{Name: "analysis"})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
}

func TestRegistry_RequiresContext(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.RequestService(nil, ServiceDescriptor{Name: "analysis"}) //nolint:staticcheck
	if err == nil {
		t.Error("expected error for nil context")
	}
}

func TestRegistry_Services(t *testing.T) {
	reg := NewRegistry()
	reg.Register("zeta", &SocketBroker{})
	reg.Register("analysis", &SocketBroker{})

	got := reg.Services()
	if len(got) != 2 || got[0] != "analysis" || got[1] != "zeta" {
		t.Errorf("Services() = %v, want [analysis zeta]", got)
	}
}

func TestSocketBroker_RequestService(t *testing.T) {
	dir := t.TempDir()
	ln, err := net.Listen("unix", filepath.Join(dir, "g1.sock"))
	if err != nil {
		t.Skipf("unix sockets unavailable: %v", err)
	}
	defer ln.Close()

	accepted := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		accepted <- line
	}()

	broker := &SocketBroker{
		Network: "unix",
		Address: filepath.Join(dir, "{hostGroup}.sock"),
	}
	stream, err := broker.RequestService(context.Background(), ServiceDescriptor{Name: "analysis", HostGroup: "g1"})
	if err != nil {
		t.Fatalf("RequestService() error = %v", err)
	}
	defer stream.Close()

	if _, err := stream.Write([]byte("hello\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	select {
	case got := <-accepted:
		if got != "hello\n" {
			t.Errorf("server read %q, want %q", got, "hello\n")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not receive data")
	}
}

func TestSocketBroker_Unavailable(t *testing.T) {
	broker := &SocketBroker{
		Network: "unix",
		Address: filepath.Join(t.TempDir(), "missing.sock"),
	}
	_, err := broker.RequestService(context.Background(), ServiceDescriptor{Name: "analysis"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error = %v, want ErrServiceUnavailable", err)
	}
}

func TestSocketBroker_ResolveAddress(t *testing.T) {
	broker := &SocketBroker{Address: "/run/refslens/{hostGroup}.sock"}
	got := broker.ResolveAddress(ServiceDescriptor{HostGroup: "abc"})
	if got != "/run/refslens/abc.sock" {
		t.Errorf("ResolveAddress() = %q", got)
	}
}

func TestProcessBroker_Echo(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not installed")
	}

	broker := &ProcessBroker{Command: "cat"}
	stream, err := broker.RequestService(context.Background(), ServiceDescriptor{Name: "analysis", HostGroup: "g1"})
	if err != nil {
		t.Fatalf("RequestService() error = %v", err)
	}

	if _, err := stream.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	line, err := bufio.NewReader(stream).ReadString('\n')
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if line != "ping\n" {
		t.Errorf("read %q, want %q", line, "ping\n")
	}

	if err := stream.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestProcessBroker_Environment(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}

	broker := &ProcessBroker{
		Command: "sh",
		Args:    []string{"-c", `echo "$REFSLENS_SERVICE $REFSLENS_HOST_GROUP $EXTRA"; cat >/dev/null`},
		Env:     []string{"EXTRA=yes"},
	}
	stream, err := broker.RequestService(context.Background(), ServiceDescriptor{Name: "analysis", HostGroup: "g7"})
	if err != nil {
		t.Fatalf("RequestService() error = %v", err)
	}
	defer stream.Close()

	line, err := bufio.NewReader(stream).ReadString('\n')
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if line != "analysis g7 yes\n" {
		t.Errorf("environment line = %q", line)
	}
}

func TestProcessBroker_KillsStuckProcess(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not installed")
	}

	broker := &ProcessBroker{
		Command:     "sleep",
		Args:        []string{"30"},
		StopTimeout: 100 * time.Millisecond,
	}
	stream, err := broker.RequestService(context.Background(), ServiceDescriptor{Name: "analysis"})
	if err != nil {
		t.Fatalf("RequestService() error = %v", err)
	}

	start := time.Now()
	_ = stream.Close()
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Close() took %v, want prompt kill", elapsed)
	}
}

func TestProcessBroker_CommandNotInstalled(t *testing.T) {
	broker := &ProcessBroker{Command: "refslens-no-such-command-xyz"}
	_, err := broker.RequestService(context.Background(), ServiceDescriptor{Name: "analysis"})
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error = %v, want ErrServiceUnavailable", err)
	}
}

func TestProcessBroker_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	broker := &ProcessBroker{Command: "cat"}
	_, err := broker.RequestService(ctx, ServiceDescriptor{Name: "analysis"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}
