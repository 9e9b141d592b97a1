// Copyright 2024 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package main

import "testing"

func validConfig() *Config {
	return &Config{
		UpstreamEndpoint: "ws://localhost:8080",
		DataDir:          "/tmp/shfill",
		DBEngine:         "pebble",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing endpoint", mutate: func(c *Config) { c.UpstreamEndpoint = "" }, wantErr: true},
		{name: "missing datadir", mutate: func(c *Config) { c.DataDir = "" }, wantErr: true},
		{name: "bad engine", mutate: func(c *Config) { c.DBEngine = "mysql" }, wantErr: true},
		{name: "stop-before not greater than skip-to", mutate: func(c *Config) {
			c.SkipTo = 10
			c.StopBefore = 5
		}, wantErr: true},
		{name: "stop-before greater than skip-to", mutate: func(c *Config) {
			c.SkipTo = 10
			c.StopBefore = 20
		}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
