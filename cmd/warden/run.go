// Copyright 2025 Blink Labs Software
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

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/blinklabs-io/warden"
	"github.com/blinklabs-io/warden/internal/config"
	"github.com/blinklabs-io/warden/internal/node"
	"github.com/blinklabs-io/warden/internal/scenario"
	"github.com/spf13/cobra"
)

func runCommand() *cobra.Command {
	var persist bool
	var start string
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Play a scenario file against a runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				return errors.New("no config found in context")
			}
			s, err := scenario.Load(args[0])
			if err != nil {
				return err
			}
			startTime := time.Now().UTC()
			if start != "" {
				startTime, err = time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid start time: %w", err)
				}
			}
			logger := commonRun()
			runCfg := *cfg
			if !persist {
				// In-memory stores
				runCfg.DatabasePath = ""
			}
			clock := scenario.NewClock(startTime)
			rt, err := node.NewRuntime(&runCfg, logger, nil, warden.WithClock(clock.Now))
			if err != nil {
				return err
			}
			runErr := scenario.NewRunner(rt, clock, cmd.OutOrStdout()).Run(cmd.Context(), s)
			return errors.Join(runErr, rt.Stop())
		},
	}
	cmd.Flags().
		BoolVar(&persist, "persist", false, "use the configured database instead of in-memory stores")
	cmd.Flags().
		StringVar(&start, "start", "", "scenario start time (RFC3339), defaults to now")
	return cmd
}
