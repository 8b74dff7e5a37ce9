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


package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cectc/cubrid-go/pkg/config"
	"github.com/cectc/cubrid-go/pkg/constant"
	"github.com/cectc/cubrid-go/pkg/driver"
	http2 "github.com/cectc/cubrid-go/pkg/http"
	"github.com/cectc/cubrid-go/pkg/listener"
	"github.com/cectc/cubrid-go/pkg/log"
	"github.com/cectc/cubrid-go/pkg/monitor"
	"github.com/cectc/cubrid-go/pkg/resource"
	"github.com/cectc/cubrid-go/pkg/server"
)

func main() {
	if err := rootCommand.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

var (
	Version = "0.1.0"

	configPath string
	sourceName string
	brokerURL  string
	timeout    time.Duration
	interval   time.Duration
	adminAddr  string

	rootCommand = &cobra.Command{
		Use:           "casctl",
		Short:         "casctl talks to CUBRID brokers",
		Version:       Version,
		SilenceUsage: true,
	}

	pingCommand = &cobra.Command{
		Use:   "ping",
		Short: "check that every broker of the data sources answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			mon, err := newMonitor(conf)
			if err != nil {
				return err
			}
			statuses, err := mon.Check(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DATA SOURCE\tHOST\tSTATUS\tLATENCY")
			for _, st := range statuses {
				state := "up"
				if !st.Reachable {
					state = "down: " + st.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.DataSource, st.Host, state, st.Latency.Round(time.Microsecond))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !mon.Ready() {
				return errors.New("some data source has no reachable broker")
			}
			return nil
		},
	}

	versionCommand = &cobra.Command{
		Use:   "server-version",
		Short: "print the database version and broker capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer conn.Close()
			version, err := conn.DBVersion(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database: %s\n", version)
			fmt.Fprintf(out, "broker:   %s\n", conn.BrokerInfo())
			fmt.Fprintf(out, "host:     %s\n", conn.ActiveHost())
			return nil
		},
	}

	queryCommand = &cobra.Command{
		Use:   "query SQL",
		Short: "run one statement and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			conn, err := connect(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			stmt, err := conn.Prepare(ctx, args[0], 0)
			if err != nil {
				return err
			}
			defer stmt.Close(ctx)
			if err = stmt.Execute(ctx, driver.ExecuteOptions{}); err != nil {
				return err
			}
			if !stmt.CommandType().IsQuery() {
				fmt.Fprintf(cmd.OutOrStdout(), "%d rows affected\n", stmt.ExecuteResult())
				return conn.Commit(ctx)
			}
			return printRows(ctx, cmd, stmt)
		},
	}

	monitorCommand = &cobra.Command{
		Use:   "monitor",
		Short: "ping the brokers periodically and serve their health over http",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			mon, err := newMonitor(conf)
			if err != nil {
				return err
			}
			address := adminAddr
			if conf.MetricsListenPort != nil {
				address = fmt.Sprintf(":%d", *conf.MetricsListenPort)
			}
			admin, err := listener.NewAdminListener(address, http2.NewRouter(mon))
			if err != nil {
				return err
			}
			srv := server.NewServer()
			srv.AddListener(admin)
			srv.Start()

			ctx, cancel := context.WithCancel(cmd.Context())
			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-c
				cancel()
				<-c
				os.Exit(1) // second signal. Exit directly.
			}()

			mon.Run(ctx, interval)
			srv.Stop()
			return nil
		},
	}
)

func init() {
	rootCommand.PersistentFlags().StringVarP(&configPath, constant.ConfigPathKey, "c", os.Getenv(constant.EnvCASConfig), "Load configuration from `FILE`")
	rootCommand.PersistentFlags().StringVarP(&sourceName, "source", "s", "", "data source `NAME`, the first one when empty")
	rootCommand.PersistentFlags().StringVarP(&brokerURL, "url", "u", "", "connect to `URL` instead of the configured data sources")
	rootCommand.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "ping timeout")
	monitorCommand.Flags().DurationVar(&interval, "interval", 10*time.Second, "ping interval")
	monitorCommand.Flags().StringVar(&adminAddr, "listen", ":18080", "admin http `ADDRESS`")

	rootCommand.AddCommand(pingCommand, versionCommand, queryCommand, monitorCommand)
}

// loadConfig reads the configuration file, or builds a single data source
// from --url.
func loadConfig() (*config.Configuration, error) {
	if brokerURL != "" {
		return &config.Configuration{
			DataSources: []*config.DataSource{{Name: "default", URL: brokerURL}},
		}, nil
	}
	if configPath == "" {
		return nil, errors.Errorf("either --%s or --url is required", constant.ConfigPathKey)
	}
	conf, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if conf.Log != nil {
		log.Init(conf.Log)
	}
	resource.Init(conf.Driver.Options(driver.NewNetDialer()))
	return conf, nil
}

func newMonitor(conf *config.Configuration) (*monitor.Monitor, error) {
	targets := make([]monitor.Target, 0, len(conf.DataSources))
	for _, ds := range conf.DataSources {
		if sourceName != "" && ds.Name != sourceName {
			continue
		}
		cfg, err := ds.DriverConfig()
		if err != nil {
			return nil, err
		}
		targets = append(targets, monitor.Target{DataSource: ds.Name, Hosts: cfg.Hosts})
	}
	if len(targets) == 0 {
		return nil, errors.Errorf("data source %s not found", sourceName)
	}
	return monitor.New(nil, targets, timeout), nil
}

func connect(ctx context.Context) (*driver.Connection, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ds, err := conf.DataSource(sourceName)
	if err != nil {
		return nil, err
	}
	cfg, err := ds.DriverConfig()
	if err != nil {
		return nil, err
	}
	return driver.NewConnectorWithConfig(cfg, resource.Default(), nil).Connect(ctx)
}

func printRows(ctx context.Context, cmd *cobra.Command, stmt *driver.Statement) error {
	columns := stmt.ColumnInfo()
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(names, "\t"))

	rows := 0
	fields := make([]string, len(columns))
	for {
		ok, err := stmt.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		for i := range columns {
			v, err := stmt.GetObject(i)
			if err != nil {
				return err
			}
			if v == nil {
				fields[i] = "NULL"
				continue
			}
			fields[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
		rows++
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "(%d rows)\n", rows)
	return nil
}
