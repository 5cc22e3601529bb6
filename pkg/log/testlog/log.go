// Copyright 2025 Packetd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testlog provides loggers for use in tests.
package testlog

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/packetd/packetd/pkg/log"
)

// NewLogger builds a Logger that forwards all messages to the given test.
func NewLogger(t testing.TB, opts ...zaptest.LoggerOption) log.Logger {
	return log.NewFromZap(zaptest.NewLogger(t, opts...))
}
