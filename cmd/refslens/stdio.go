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
	"errors"
	"io"
	"os"
	"sync"
)

// stdioStream joins a reader and a writer into the stream a JSON-RPC
// channel runs over. Close closes both.
type stdioStream struct {
	in  io.ReadCloser
	out io.WriteCloser

	closeOnce sync.Once
	closeErr  error
}

// newStdio returns the process stdin and stdout as one stream.
func newStdio() *stdioStream {
	return &stdioStream{in: os.Stdin, out: os.Stdout}
}

func (s *stdioStream) Read(p []byte) (int, error) {
	return s.in.Read(p)
}

func (s *stdioStream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *stdioStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = errors.Join(s.in.Close(), s.out.Close())
	})
	return s.closeErr
}
