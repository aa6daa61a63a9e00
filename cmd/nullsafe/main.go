//  Copyright (c) 2025 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// main package builds the nullsafe command, which assembles the methods of one or more
// Jasmin-style source files and reports, per method, the instructions that may dereference null.
//
// Usage:
//
//	nullsafe [-config FILE] [-unannotated-params nullable|nonnull|null] [-dump] [-debug] FILE.j...
//
// Each analyzed method prints one line, "Owner.name(desc): POS...", listing the flagged positions
// (the line ends at the colon when the method is clean). A method whose body is malformed is logged
// and skipped; the command still exits with a non-zero status.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"go.uber.org/nullsafe"
	"go.uber.org/nullsafe/config"
	"go.uber.org/nullsafe/jasm"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			log.Error(err)
		}
		os.Exit(1)
	}
}

// run parses args, analyzes every file they name and writes the results to out.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("nullsafe", flag.ContinueOnError)
	var (
		confPath string
		debug    bool
	)
	fs.StringVar(&confPath, "config", "", fmt.Sprintf("TOML configuration file (default %s if present).", config.DefaultConfigFile))
	fs.BoolVar(&debug, "debug", false, "Enable debug logging.")

	// The configuration file provides the defaults that explicit flags override, so it is loaded
	// before the flags are bound.
	conf := config.Default()
	path, err := configPath(args)
	if err != nil {
		return err
	}
	if path != "" {
		if err := conf.Load(path); err != nil {
			return err
		}
	}
	conf.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if path != "" {
		log.Debugf("loaded configuration from %s", path)
	}
	if fs.NArg() == 0 {
		return errors.New("no input files")
	}

	var errs []error
	for _, file := range fs.Args() {
		if err := analyzeFile(file, conf, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// configPath finds the configuration file to load: the value of -config if given, otherwise the
// default file in the working directory if it exists.
func configPath(args []string) (string, error) {
	for i, a := range args {
		if a == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value, nil
		}
		if i+1 >= len(args) {
			return "", errors.New("flag needs an argument: -config")
		}
		return args[i+1], nil
	}
	if _, err := os.Stat(config.DefaultConfigFile); err == nil {
		return config.DefaultConfigFile, nil
	}
	return "", nil
}

// analyzeFile diagnoses every method of file. Methods that cannot be analyzed are logged and
// reported in the returned error once the rest of the file is done.
func analyzeFile(file string, conf *config.Config, out io.Writer) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	methods, err := jasm.Parse(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}
	log.Debugf("%s: %d method(s)", file, len(methods))

	var errs []error
	for _, m := range methods {
		res, err := nullsafe.Analyze(m, conf)
		if err != nil {
			log.WithField("file", file).Warnf("skipping method: %v", err)
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			continue
		}
		positions := res.Positions()
		log.WithFields(log.Fields{
			"method":       m.String(),
			"instructions": len(m.Instructions),
			"flagged":      len(positions),
		}).Debug("analyzed")

		var b strings.Builder
		b.WriteString(m.String())
		b.WriteByte(':')
		for _, p := range positions {
			b.WriteByte(' ')
			b.WriteString(strconv.Itoa(p))
		}
		fmt.Fprintln(out, b.String())

		if conf.Dump {
			for _, l := range res.Dump() {
				fmt.Fprintf(out, "\t%s\n", l)
			}
		}
	}
	return errors.Join(errs...)
}
