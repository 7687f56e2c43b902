/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout, nil)
}

// SetupWithWriter configures zerolog writing to out, plus capture when set.
// Development gets a console writer at debug level; anything else writes
// JSON at info level. The capture writer always receives JSON.
func SetupWithWriter(environment string, out io.Writer, capture io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if out == nil {
		out = os.Stdout
	}

	level := zerolog.InfoLevel
	primary := out
	if strings.EqualFold(environment, "development") {
		level = zerolog.DebugLevel
		primary = zerolog.ConsoleWriter{Out: out}
	}

	writer := primary
	if capture != nil {
		writer = zerolog.MultiLevelWriter(primary, capture)
	}

	logger := zerolog.New(writer).With().Timestamp().Str("service", "lectern").Logger().Level(level)
	log.Logger = logger
	return logger
}
