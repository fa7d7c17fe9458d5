// Copyright 2023 AI Redefined Inc. <dev+cogment@ai-r.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("debug")
	assert.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, level)

	level, err = parseLogLevel(LogLevelOff)
	assert.NoError(t, err)
	assert.Equal(t, logrus.PanicLevel, level)

	_, err = parseLogLevel("verbose")
	assert.Error(t, err)
}

func TestConfigureLog(t *testing.T) {
	defer func() {
		logrus.SetLevel(logrus.InfoLevel)
		logrus.SetFormatter(&logrus.TextFormatter{})
	}()

	cfg := viper.New()
	cfg.Set(servicesLogLevelKey, "warning")
	cfg.Set(servicesLogFormatKey, "json")
	assert.NoError(t, configureLog(cfg))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg = viper.New()
	cfg.Set(servicesLogLevelKey, "trace")
	assert.NoError(t, configureLog(cfg))
	assert.Equal(t, logrus.TraceLevel, logrus.GetLevel())
}

func TestConfigureLogInvalid(t *testing.T) {
	cfg := viper.New()
	cfg.Set(servicesLogLevelKey, "info")
	cfg.Set(servicesLogFormatKey, "xml")
	assert.ErrorContains(t, configureLog(cfg), "invalid log format")

	cfg = viper.New()
	cfg.Set(servicesLogLevelKey, "loud")
	assert.ErrorContains(t, configureLog(cfg), "invalid log level")

	cfg = viper.New()
	cfg.Set(servicesLogLevelKey, "info")
	cfg.Set(servicesLogFileKey, filepath.Join(t.TempDir(), "missing", "dir", "file.log"))
	assert.ErrorContains(t, configureLog(cfg), "unable to open log file")
}
