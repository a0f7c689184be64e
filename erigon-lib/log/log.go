// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package log is a small structured logger in the style of erigon-lib's
// log/v3: leveled methods taking alternating key/value pairs, with a
// Root() logger usable when no *Logger has been threaded through yet.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Lvl int

const (
	LvlError Lvl = iota
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?"
	}
}

// Logger is a structured, leveled logger. A Logger from New writes to
// os.Stderr at LvlInfo; the zero value has no writer set.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	lvl    Lvl
	ctx    []interface{}
	name   string
}

func New(ctx ...interface{}) *Logger {
	return &Logger{out: os.Stderr, lvl: LvlInfo, ctx: ctx}
}

// New returns a child logger with additional persistent key/value context.
func (l *Logger) New(ctx ...interface{}) *Logger {
	child := &Logger{out: l.out, lvl: l.lvl, name: l.name}
	child.ctx = append(append([]interface{}{}, l.ctx...), ctx...)
	return child
}

func (l *Logger) SetLevel(lvl Lvl) { l.mu.Lock(); l.lvl = lvl; l.mu.Unlock() }

func (l *Logger) log(lvl Lvl, msg string, ctx []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl > l.lvl {
		return
	}
	line := fmt.Sprintf("[%s] %-5s %s", time.Now().UTC().Format(time.RFC3339), lvl, msg)
	all := append(append([]interface{}{}, l.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		line += fmt.Sprintf(" %v=%v", all[i], all[i+1])
	}
	fmt.Fprintln(l.out, line)
}

func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LvlError, msg, ctx) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LvlWarn, msg, ctx) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LvlInfo, msg, ctx) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LvlDebug, msg, ctx) }
func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LvlTrace, msg, ctx) }

var root = New()

// Root returns the process-wide default logger, used only by code that has
// no NodeContext to thread a *Logger through (see design note on avoiding
// process-wide singletons — Root is reserved for init-time diagnostics
// before a NodeContext exists).
func Root() *Logger { return root }

func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
