// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command refslens serves reference-count code lenses.
//
// The editor starts `refslens serve` and speaks JSON-RPC over its stdio.
// Each code lens data point connects to an analysis service, either a
// child `refslens analysis` process or a listening socket, which watches
// the tracked document and pushes invalidations when it changes.
//
// Usage:
//
//	refslens serve --config ~/.refslens/refslens.yaml
//	refslens analysis --listen unix:/run/refslens/analysis.sock
//	refslens version
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
