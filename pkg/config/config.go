/*
 * Copyright 2022 CECTC, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package config

import (
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/cectc/cubrid-go/pkg/driver"
	"github.com/cectc/cubrid-go/pkg/lb"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/resource"
)

type Configuration struct {
	Log *log.Config `yaml:"log" json:"log"`

	Driver *DriverContext `yaml:"driver" json:"driver"`

	DataSources []*DataSource `yaml:"data_sources" json:"data_sources"`

	// MetricsListenPort exposes the prometheus collectors over http when set.
	MetricsListenPort *int `yaml:"metrics_listen_port" json:"metrics_listen_port"`
}

type (
	// DriverContext configures what every connection of the process
	// shares.
	DriverContext struct {
		UnreachableTTL time.Duration `yaml:"unreachable_ttl" json:"unreachable_ttl"`
		SweepInterval  time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
		ProbeInterval  time.Duration `yaml:"probe_interval" json:"probe_interval"`
		// ProbeHosts runs a background ping against hosts marked
		// unreachable so they rejoin before their TTL ends.
		ProbeHosts bool `yaml:"probe_hosts" json:"probe_hosts"`
	}

	// DataSource names a broker URL. The other fields override the
	// properties of the URL when set.
	DataSource struct {
		Name         string        `yaml:"name" json:"name"`
		URL          string        `yaml:"url" json:"url"`
		Password     string        `yaml:"password" json:"password"`
		LoadBalance  *lb.Policy    `yaml:"load_balance" json:"load_balance"`
		FetchSize    int32         `yaml:"fetch_size" json:"fetch_size"`
		QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
	}
)

// Options translates the driver block into driver context options.
func (d *DriverContext) Options(dialer driver.Dialer) resource.Options {
	if d == nil {
		return resource.Options{}
	}
	opts := resource.Options{
		UnreachableTTL: d.UnreachableTTL,
		SweepInterval:  d.SweepInterval,
		ProbeInterval:  d.ProbeInterval,
	}
	if d.ProbeHosts {
		opts.Prober = driver.Prober(dialer)
	}
	return opts
}

// DriverConfig parses the URL of the data source and applies its
// overrides.
func (ds *DataSource) DriverConfig() (*driver.Config, error) {
	cfg, err := driver.ParseURL(ds.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "data source %s", ds.Name)
	}
	if ds.Password != "" {
		// keeps colons out of the URL
		cfg.Password = ds.Password
	}
	if ds.LoadBalance != nil {
		cfg.LoadBalance = *ds.LoadBalance
	}
	if ds.FetchSize > 0 {
		cfg.FetchSize = ds.FetchSize
	}
	if ds.QueryTimeout > 0 {
		cfg.QueryTimeout = ds.QueryTimeout
	}
	return cfg, nil
}

// DataSource returns the data source called name; the first one when name
// is empty.
func (c *Configuration) DataSource(name string) (*DataSource, error) {
	if len(c.DataSources) == 0 {
		return nil, errors.New("no data source configured")
	}
	if name == "" {
		return c.DataSources[0], nil
	}
	for _, ds := range c.DataSources {
		if ds.Name == name {
			return ds, nil
		}
	}
	return nil, errors.Errorf("data source %s not found", name)
}

func parse(content []byte) (*Configuration, error) {
	cfg := &Configuration{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, errors.Wrap(err, "yaml unmarshal config failed")
	}
	seen := make(map[string]bool, len(cfg.DataSources))
	for i, ds := range cfg.DataSources {
		if ds.URL == "" {
			return nil, errors.Errorf("data source %d has no url", i)
		}
		if seen[ds.Name] {
			return nil, errors.Errorf("data source %s is defined twice", ds.Name)
		}
		seen[ds.Name] = true
	}
	return cfg, nil
}

// Load config file and parse
func Load(path string) (*Configuration, error) {
	configPath, _ := filepath.Abs(path)
	log.Infof("load config from :  %s", configPath)
	content, err := ioutil.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "load config failed")
	}
	return parse(content)
}
