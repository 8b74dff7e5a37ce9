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

package driver

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/cectc/cubrid-go/pkg/cache"
	"github.com/cectc/cubrid-go/pkg/constant"
	err2 "github.com/cectc/cubrid-go/pkg/errors"
	"github.com/cectc/cubrid-go/pkg/lb"
	"github.com/cectc/cubrid-go/pkg/misc"
)

const (
	urlPrefix     = "cubrid:"
	jdbcURLPrefix = "jdbc:cubrid:"

	defaultHost = "localhost"
	defaultPort = 33000
)

type Config struct {
	Hosts    []string // host:port, primary first
	DBName   string   // Database name
	User     string   // Username, dba when empty
	Password string   // Password
	URL      string   // URL as given, sent in the handshake

	Charset string // Charset of character data

	ConnectTimeout time.Duration // Bound of a whole connect or failover pass
	QueryTimeout   time.Duration // Bound of a single request, zero for none
	PollInterval   time.Duration // Socket read slice before a keep-alive ping
	ReconnectTime  time.Duration // Period after which an alternate host gives way to the primary
	UnreachableTTL time.Duration // How long a failed host stays excluded

	LoadBalance lb.Policy // Order in which hosts are tried
	FetchSize   int32     // Rows per FETCH
	ResultCache bool      // Serve repeated queries from the client side cache
	HoldCursor  bool      // Keep cursors open across commits

	LogSlowQueries     bool
	SlowQueryThreshold time.Duration
	LogFile            string
	LogLevel           string

	charset *misc.Charset
}

// NewConfig creates a new Config and sets default values.
func NewConfig() *Config {
	return &Config{
		User:               "dba",
		ConnectTimeout:     constant.DefaultConnectTimeout,
		PollInterval:       constant.SocketTimeout,
		ReconnectTime:      constant.DefaultReconnectTime,
		UnreachableTTL:     constant.DefaultUnreachableTTL,
		FetchSize:          constant.DefaultFetchSize,
		HoldCursor:         true,
		SlowQueryThreshold: time.Minute,
		charset:            misc.UTF8,
	}
}

func (cfg *Config) Clone() *Config {
	cp := *cfg
	if len(cfg.Hosts) > 0 {
		cp.Hosts = make([]string, len(cfg.Hosts))
		copy(cp.Hosts, cfg.Hosts)
	}
	return &cp
}

// CharsetCodec returns the resolved charset.
func (cfg *Config) CharsetCodec() *misc.Charset {
	if cfg.charset == nil {
		return misc.UTF8
	}
	return cfg.charset
}

// URLKey identifies the result cache the connection shares.
func (cfg *Config) URLKey() cache.URLKey {
	host, port := defaultHost, defaultPort
	if len(cfg.Hosts) > 0 {
		if h, p, err := net.SplitHostPort(cfg.Hosts[0]); err == nil {
			host = h
			if n, err := strconv.Atoi(p); err == nil {
				port = n
			}
		}
	}
	return cache.URLKey{Host: host, Port: port, DBName: cfg.DBName, User: cfg.User}
}

func (cfg *Config) normalize() error {
	if cfg.DBName == "" {
		return err2.NewDriverError(constant.ErInvalidURL, "database name is required")
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{net.JoinHostPort(defaultHost, strconv.Itoa(defaultPort))}
	}
	for i, host := range cfg.Hosts {
		cfg.Hosts[i] = ensureHavePort(host)
	}
	if cfg.User == "" {
		cfg.User = "dba"
	}
	if len(cfg.DBName) >= constant.DBNameSize || len(cfg.User) >= constant.UserSize ||
		len(cfg.Password) >= constant.PasswordSize {
		return err2.NewDriverError(constant.ErInvalidURL, "database name, user or password too long")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = constant.DefaultConnectTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constant.SocketTimeout
	}
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = constant.DefaultFetchSize
	}
	charset, err := misc.LookupCharset(cfg.Charset)
	if err != nil {
		return err2.WrapDriverError(constant.ErInvalidURL, err)
	}
	cfg.charset = charset
	return nil
}

// ParseURL parses a connection URL to a Config.
//
//	[jdbc:]cubrid:host:port:dbname:[user]:[password]:[?property1=value1&propertyN=valueN]
//
// An empty host means localhost and an empty port 33000. The password
// cannot contain a colon.
func ParseURL(url string) (cfg *Config, err error) {
	cfg = NewConfig()
	cfg.URL = url

	rest := url
	switch {
	case strings.HasPrefix(rest, jdbcURLPrefix):
		rest = rest[len(jdbcURLPrefix):]
	case strings.HasPrefix(rest, urlPrefix):
		rest = rest[len(urlPrefix):]
	default:
		return nil, err2.NewDriverError(constant.ErInvalidURL, "invalid url %q: missing cubrid: prefix", url)
	}

	var params string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		params = rest[i+1:]
		rest = rest[:i]
	}

	// host:port:dbname:user:password: with the last three optional
	fields := strings.Split(rest, ":")
	if len(fields) < 3 || len(fields) > 6 {
		return nil, err2.NewDriverError(constant.ErInvalidURL, "invalid url %q", url)
	}
	for len(fields) < 6 {
		fields = append(fields, "")
	}
	if fields[5] != "" {
		return nil, err2.NewDriverError(constant.ErInvalidURL, "invalid url %q: password cannot contain ':'", url)
	}

	host := fields[0]
	if host == "" {
		host = defaultHost
	}
	port := defaultPort
	if fields[1] != "" {
		if port, err = strconv.Atoi(fields[1]); err != nil || port <= 0 || port > 65535 {
			return nil, err2.NewDriverError(constant.ErInvalidURL, "invalid port %q", fields[1])
		}
	}
	cfg.Hosts = []string{net.JoinHostPort(host, strconv.Itoa(port))}
	cfg.DBName = fields[2]
	cfg.User = fields[3]
	cfg.Password = fields[4]

	if params != "" {
		if err = parseURLParams(cfg, params); err != nil {
			return nil, err
		}
	}

	if err = cfg.normalize(); err != nil {
		return nil, err
	}
	return
}

// parseURLParams parses the URL "query string"
func parseURLParams(cfg *Config, params string) (err error) {
	for _, v := range strings.Split(params, "&") {
		if v == "" {
			continue
		}
		param := strings.SplitN(v, "=", 2)
		if len(param) != 2 {
			return invalidProperty(v, "missing value")
		}

		switch value := param[1]; param[0] {
		case "altHosts":
			for _, alt := range strings.Split(value, ",") {
				alt = strings.TrimSpace(alt)
				if alt == "" {
					continue
				}
				if _, _, err := net.SplitHostPort(alt); err != nil {
					return invalidProperty(v, err.Error())
				}
				cfg.Hosts = append(cfg.Hosts, alt)
			}

		case "charset":
			cfg.Charset = value

		// Timeouts are given in seconds
		case "connectTimeout":
			if cfg.ConnectTimeout, err = parseSeconds(value); err != nil {
				return invalidProperty(v, err.Error())
			}
		case "queryTimeout":
			if cfg.QueryTimeout, err = parseSeconds(value); err != nil {
				return invalidProperty(v, err.Error())
			}
		case "rcTime":
			if cfg.ReconnectTime, err = parseSeconds(value); err != nil {
				return invalidProperty(v, err.Error())
			}
		case "unreachableTTL":
			if cfg.UnreachableTTL, err = parseSeconds(value); err != nil {
				return invalidProperty(v, err.Error())
			}
		case "slowQueryThresholdMillis":
			ms, err := strconv.Atoi(value)
			if err != nil || ms < 0 {
				return invalidProperty(v, "not a duration")
			}
			cfg.SlowQueryThreshold = time.Duration(ms) * time.Millisecond

		case "loadBalance":
			if err = cfg.LoadBalance.UnmarshalText([]byte(value)); err != nil {
				return invalidProperty(v, err.Error())
			}

		case "fetchSize":
			size, err := strconv.ParseInt(value, 10, 32)
			if err != nil || size < 0 {
				return invalidProperty(v, "not a fetch size")
			}
			cfg.FetchSize = int32(size)

		case "resultCache":
			if cfg.ResultCache, err = parseBool(value); err != nil {
				return invalidProperty(v, err.Error())
			}
		case "holdCursor":
			if cfg.HoldCursor, err = parseBool(value); err != nil {
				return invalidProperty(v, err.Error())
			}
		case "logSlowQueries":
			if cfg.LogSlowQueries, err = parseBool(value); err != nil {
				return invalidProperty(v, err.Error())
			}

		case "logFile":
			cfg.LogFile = value
		case "logLevel":
			cfg.LogLevel = value

		default:
			return invalidProperty(v, "unknown property")
		}
	}
	return
}

func invalidProperty(param, reason string) error {
	return err2.NewDriverError(constant.ErInvalidURL, "invalid url property %q: %s", param, reason)
}

func parseSeconds(value string) (time.Duration, error) {
	sec, err := strconv.Atoi(value)
	if err != nil {
		return 0, errors.Wrap(err, "not a number of seconds")
	}
	if sec < 0 {
		return 0, errors.New("negative duration")
	}
	return time.Duration(sec) * time.Second, nil
}

func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errors.Errorf("invalid bool value: %s", value)
}

// ensureHavePort adds the default port if addr has none.
func ensureHavePort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return net.JoinHostPort(addr, strconv.Itoa(defaultPort))
	}
	return addr
}
