/*
 * Copyright 2019-2020 by Nedim Sabic Sabic
 * https://www.fibratus.io
 * All Rights Reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package ilog is the process-wide logger singleton (§9: "the logger is
// process-global with registered callbacks"). It is explicitly
// initialized (Init) rather than constructed implicitly, and callback
// registration is append-only - embedders that drive the inspector from
// multiple goroutines must treat their own callbacks as thread-safe.
package ilog

import (
	"sync"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

// Callback receives every log entry emitted through the package logger,
// mirroring sinsp_logger_callback / sinsp::set_log_callback.
type Callback func(level logrus.Level, msg string, fields logrus.Fields)

var (
	mu        sync.Mutex
	log       = logrus.New()
	callbacks []Callback
	hook      = &callbackHook{}
)

func init() {
	log.SetLevel(logrus.InfoLevel)
	log.AddHook(hook)
}

type callbackHook struct{}

func (callbackHook) Levels() []logrus.Level { return logrus.AllLevels }

func (callbackHook) Fire(e *logrus.Entry) error {
	mu.Lock()
	cbs := make([]Callback, len(callbacks))
	copy(cbs, callbacks)
	mu.Unlock()
	for _, cb := range cbs {
		cb(e.Level, e.Message, e.Data)
	}
	return nil
}

// Init configures the logger's output path and level. logPath == "" keeps
// logging on stderr. Safe to call once at process startup, before any
// Inspector is opened.
func Init(logPath string, level logrus.Level) error {
	mu.Lock()
	defer mu.Unlock()
	log.SetLevel(level)
	if logPath == "" {
		return nil
	}
	h, err := lfshook.NewHook(lfshook.PathMap{
		logrus.InfoLevel:  logPath,
		logrus.WarnLevel:  logPath,
		logrus.ErrorLevel: logPath,
		logrus.FatalLevel: logPath,
		logrus.DebugLevel: logPath,
	}, &logrus.TextFormatter{FullTimestamp: true})
	if err != nil {
		return err
	}
	log.AddHook(h)
	return nil
}

// AddCallback registers a callback invoked on every subsequent log entry.
// Registration is set-once-append-only: there is no removal (§9's
// "registered callback list" framing).
func AddCallback(cb Callback) {
	mu.Lock()
	defer mu.Unlock()
	callbacks = append(callbacks, cb)
}

// Debugf logs at debug level.
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }

// Infof logs at info level.
func Infof(format string, args ...interface{}) { log.Infof(format, args...) }

// Warnf logs at warn level.
func Warnf(format string, args ...interface{}) { log.Warnf(format, args...) }

// Errorf logs at error level.
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }

// WithFields returns an entry pre-populated with structured fields.
func WithFields(fields logrus.Fields) *logrus.Entry { return log.WithFields(fields) }
