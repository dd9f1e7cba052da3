// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package rhi

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// Severity grades a validation message delivered to a MessageCallback.
type Severity int

// Message severities.
const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// MessageCallback receives validation diagnostics from rhi and, when
// enabled with [WithDriverMessages], from the native driver layer.
// Messages never alter control flow.
type MessageCallback func(sev Severity, msg string)

func severityFromLevel(l slog.Level) Severity {
	switch {
	case l >= slog.LevelError:
		return SeverityError
	case l >= slog.LevelWarn:
		return SeverityWarn
	}
	return SeverityInfo
}

// callbackHandler formats slog records from the hal layer and hands them
// to emit. Records for which enabled reports false are dropped.
type callbackHandler struct {
	emit    func(level slog.Level, msg string)
	enabled func(level slog.Level) bool
	attrs   []slog.Attr
	group   string
}

func newCallbackHandler(cb MessageCallback, minLevel slog.Level) *callbackHandler {
	return &callbackHandler{
		emit:    func(l slog.Level, msg string) { cb(severityFromLevel(l), msg) },
		enabled: func(l slog.Level) bool { return l >= minLevel },
	}
}

func (h *callbackHandler) Enabled(_ context.Context, l slog.Level) bool {
	return h.enabled(l)
}

func (h *callbackHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.group, a)
		return true
	})
	h.emit(r.Level, sb.String())
	return nil
}

// WithAttrs stores attrs with the current group already applied to
// their keys.
func (h *callbackHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *callbackHandler) WithGroup(name string) slog.Handler {
	c := *h
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return &c
}

func writeAttr(sb *strings.Builder, group string, a slog.Attr) {
	sb.WriteByte(' ')
	if group != "" {
		sb.WriteString(group)
		sb.WriteByte('.')
	}
	sb.WriteString(a.Key)
	sb.WriteByte('=')
	sb.WriteString(a.Value.String())
}

// driverSink is one device's subscription to hal driver messages.
type driverSink struct {
	dev      *Device
	cb       MessageCallback
	minLevel slog.Level
}

// driverRouter owns hal's process-wide logger while at least one device
// forwards driver messages. Records fan out to every registered sink whose
// level admits them; the logger found before the first registration is
// restored when the last sink leaves.
type driverRouter struct {
	mu    sync.Mutex
	sinks []driverSink
	prev  *slog.Logger
}

var driverMessages driverRouter

func (r *driverRouter) register(d *Device, cb MessageCallback, minLevel slog.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sinks) == 0 {
		r.prev = hal.Logger()
		hal.SetLogger(slog.New(&callbackHandler{emit: r.dispatch, enabled: r.enabled}))
	}
	r.sinks = append(r.sinks, driverSink{dev: d, cb: cb, minLevel: minLevel})
}

// unregister removes d's sink and reports whether it had one.
func (r *driverRouter) unregister(d *Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.sinks, func(s driverSink) bool { return s.dev == d })
	if i < 0 {
		return false
	}
	r.sinks = slices.Delete(r.sinks, i, i+1)
	if len(r.sinks) == 0 {
		hal.SetLogger(r.prev)
		r.prev = nil
	}
	return true
}

func (r *driverRouter) enabled(l slog.Level) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sinks {
		if l >= s.minLevel {
			return true
		}
	}
	return false
}

// dispatch calls the callbacks outside the lock so a callback may close
// its device.
func (r *driverRouter) dispatch(l slog.Level, msg string) {
	r.mu.Lock()
	sinks := slices.Clone(r.sinks)
	r.mu.Unlock()
	sev := severityFromLevel(l)
	for _, s := range sinks {
		if l >= s.minLevel {
			s.cb(sev, msg)
		}
	}
}
