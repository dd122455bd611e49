// Package mocks provides test doubles for the log package.
//
// The real nanogit generates this file with counterfeiter; since this repo
// never invokes code generation, FakeLogger is hand-maintained instead but
// keeps the same call-recording shape so existing tests built against it
// still compile.
package mocks

import "sync"

type logCall struct {
	Msg           string
	KeysAndValues []any
}

// FakeLogger is a log.Logger that records every call instead of emitting
// output, for use in tests that assert on logging behavior.
type FakeLogger struct {
	mu sync.Mutex

	DebugCalls []logCall
	InfoCalls  []logCall
	WarnCalls  []logCall
	ErrorCalls []logCall
}

func (f *FakeLogger) Debug(msg string, keysAndValues ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DebugCalls = append(f.DebugCalls, logCall{Msg: msg, KeysAndValues: keysAndValues})
}

func (f *FakeLogger) Info(msg string, keysAndValues ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.InfoCalls = append(f.InfoCalls, logCall{Msg: msg, KeysAndValues: keysAndValues})
}

func (f *FakeLogger) Warn(msg string, keysAndValues ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WarnCalls = append(f.WarnCalls, logCall{Msg: msg, KeysAndValues: keysAndValues})
}

func (f *FakeLogger) Error(msg string, keysAndValues ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ErrorCalls = append(f.ErrorCalls, logCall{Msg: msg, KeysAndValues: keysAndValues})
}
