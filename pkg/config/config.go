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

package config

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/evgeni/sysdig/pkg/ierrors"
)

// BufferFormat selects how a captured I/O buffer is rendered (spec §6
// "set_buffer_format(normal|eols|json|hex|hex+ascii)").
type BufferFormat string

const (
	BufferNormal   BufferFormat = "normal"
	BufferEols     BufferFormat = "eols"
	BufferJSON     BufferFormat = "json"
	BufferHex      BufferFormat = "hex"
	BufferHexAscii BufferFormat = "hex+ascii"
)

// CycleWriterConfig mirrors setup_cycle_writer's parameters (spec §6).
type CycleWriterConfig struct {
	BaseName   string `mapstructure:"base_name"`
	RolloverMB int64  `mapstructure:"rollover_mb"`
	DurationS  int64  `mapstructure:"duration_s"`
	FileLimit  int    `mapstructure:"file_limit"`
	DoCycle    bool   `mapstructure:"do_cycle"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig configures the optional capture-stats exporters
// (§9 "Capture statistics").
type TelemetryConfig struct {
	Interval time.Duration `mapstructure:"interval"`

	AMQPEnabled  bool   `mapstructure:"amqp_enabled"`
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`

	ElasticEnabled bool     `mapstructure:"elastic_enabled"`
	ElasticURLs    []string `mapstructure:"elastic_urls"`
	ElasticIndex   string   `mapstructure:"elastic_index"`
}

// Config is the Inspector's full configuration surface (spec §6
// "Configuration (pre-open where noted)").
type Config struct {
	Snaplen              int          `mapstructure:"snaplen"`
	BufferFormat         BufferFormat `mapstructure:"buffer_format"`
	DebugMode            bool         `mapstructure:"debug_mode"`
	FatfileDumpMode      bool         `mapstructure:"fatfile_dump_mode"`
	ReservedThreadMemory int          `mapstructure:"reserved_thread_memory"`
	FilterExpr           string       `mapstructure:"filter_expr"`

	MaxThreadTableSize    int           `mapstructure:"max_thread_table_size"`
	ThreadTimeout         time.Duration `mapstructure:"thread_timeout"`
	InactiveScanEvery     time.Duration `mapstructure:"inactive_thread_scan_time"`
	MaxNProcLookups       int           `mapstructure:"max_n_proc_lookups"`
	MaxNProcSocketLookups int           `mapstructure:"max_n_proc_socket_lookups"`

	CycleWriter CycleWriterConfig `mapstructure:"cycle_writer"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

// Default returns the Config used when no config file is loaded. Its zero
// lookup caps (MaxNProcLookups, MaxNProcSocketLookups) mean no cap.
func Default() Config {
	return Config{
		Snaplen:               80,
		BufferFormat:          BufferNormal,
		MaxThreadTableSize:    65536,
		ThreadTimeout:         30 * time.Second,
		InactiveScanEvery:     10 * time.Second,
		MaxNProcLookups:       0,
		MaxNProcSocketLookups: 0,
	}
}

// schema is the gojsonschema validation document for a decoded Config,
// rejecting bad setup before a capture ever starts (spec §7 kind 1
// "setup errors").
const schema = `{
  "type": "object",
  "properties": {
    "snaplen": {"type": "integer", "minimum": 0},
    "buffer_format": {"enum": ["normal", "eols", "json", "hex", "hex+ascii"]},
    "max_thread_table_size": {"type": "integer", "minimum": 1},
    "max_n_proc_lookups": {"type": "integer", "minimum": 0},
    "max_n_proc_socket_lookups": {"type": "integer", "minimum": 0}
  }
}`

// Load reads path (YAML or Java-properties, per its extension) via
// spf13/viper, decodes it into a Config with mitchellh/mapstructure, and
// validates the result against schema with xeipuuv/gojsonschema before
// returning it.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigFile(path)
	if strings.HasSuffix(path, ".properties") {
		v.SetConfigType("properties")
	}
	if err := v.ReadInConfig(); err != nil {
		return cfg, ierrors.New(ierrors.KindSetup, err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return cfg, ierrors.New(ierrors.KindSetup, err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return cfg, ierrors.New(ierrors.KindSetup, err)
	}

	if err := validate(v.AllSettings()); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validate(settings map[string]interface{}) error {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewGoLoader(settings)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return ierrors.New(ierrors.KindSetup, err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return ierrors.Newf(ierrors.KindSetup, "invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}
