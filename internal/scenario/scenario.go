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

// Package scenario drives a runtime from a YAML script of genesis funds,
// contract instances and calls
package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/blinklabs-io/warden"
	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"gopkg.in/yaml.v3"
)

var ErrExpectation = errors.New("scenario expectation failed")

type Scenario struct {
	Genesis   []Account  `yaml:"genesis"`
	Contracts []Instance `yaml:"contracts"`
	Steps     []Step     `yaml:"steps"`
}

type Account struct {
	Address string      `yaml:"address"`
	Coins   []bank.Coin `yaml:"coins"`
}

type Instance struct {
	Kind    string    `yaml:"kind"`
	Address string    `yaml:"address"`
	Creator string    `yaml:"creator"`
	Config  yaml.Node `yaml:"config"`
}

// Step is one action. Exactly one of Advance, Execute, Query or Balance
// is set.
type Step struct {
	Name        string        `yaml:"name"`
	Advance     time.Duration `yaml:"advance"`
	Contract    string        `yaml:"contract"`
	Caller      string        `yaml:"caller"`
	Execute     string        `yaml:"execute"`
	Query       string        `yaml:"query"`
	Msg         yaml.Node     `yaml:"msg"`
	Balance     *BalanceCheck `yaml:"balance"`
	ExpectError string        `yaml:"expect_error"`
}

type BalanceCheck struct {
	Address string `yaml:"address"`
	Denom   string `yaml:"denom"`
	Equals  string `yaml:"equals"`
}

// Load reads a scenario file
func Load(path string) (*Scenario, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading scenario: %w", err)
	}
	return Parse(buf)
}

func Parse(buf []byte) (*Scenario, error) {
	var ret Scenario
	if err := yaml.Unmarshal(buf, &ret); err != nil {
		return nil, fmt.Errorf("error parsing scenario: %w", err)
	}
	for i, step := range ret.Steps {
		set := 0
		if step.Advance != 0 {
			set++
		}
		if step.Execute != "" {
			set++
		}
		if step.Query != "" {
			set++
		}
		if step.Balance != nil {
			set++
		}
		if set != 1 {
			return nil, fmt.Errorf("step %d: exactly one of advance, execute, query, balance is required", i+1)
		}
	}
	return &ret, nil
}

// Clock is the scenario's notion of time, moved only by advance steps
type Clock struct {
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	return c.now
}

// Runner plays a scenario against a runtime and reports each step to out
type Runner struct {
	rt    *warden.Runtime
	clock *Clock
	out   io.Writer
	// kinds maps instance addresses to their kinds for message decoding
	kinds map[string]string
}

// NewRunner returns a runner for rt. clock must be the clock rt was
// configured with.
func NewRunner(rt *warden.Runtime, clock *Clock, out io.Writer) *Runner {
	return &Runner{
		rt:    rt,
		clock: clock,
		out:   out,
		kinds: make(map[string]string),
	}
}

// Run plays every part of s in order and stops at the first unexpected
// outcome
func (r *Runner) Run(ctx context.Context, s *Scenario) error {
	for _, acct := range s.Genesis {
		if err := r.rt.Mint(acct.Address, acct.Coins...); err != nil {
			return fmt.Errorf("genesis %s: %w", acct.Address, err)
		}
	}
	for _, inst := range s.Contracts {
		if err := r.instantiate(ctx, inst); err != nil {
			return fmt.Errorf("instantiate %s: %w", inst.Address, err)
		}
	}
	for i, step := range s.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		if err := r.step(ctx, step); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (r *Runner) instantiate(ctx context.Context, inst Instance) error {
	def, ok := contract.Lookup(inst.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", warden.ErrUnknownKind, inst.Kind)
	}
	cfg := def.Config()
	if !inst.Config.IsZero() {
		if err := inst.Config.Decode(cfg); err != nil {
			return fmt.Errorf("decode config: %w", err)
		}
	}
	if err := r.rt.Instantiate(ctx, inst.Kind, inst.Address, inst.Creator, cfg); err != nil {
		return err
	}
	r.kinds[inst.Address] = inst.Kind
	fmt.Fprintf(r.out, "instantiated %s at %s\n", inst.Kind, inst.Address)
	return nil
}

func (r *Runner) step(ctx context.Context, step Step) error {
	switch {
	case step.Advance != 0:
		if step.Advance < 0 {
			return fmt.Errorf("advance must be positive: %s", step.Advance)
		}
		r.clock.now = r.clock.now.Add(step.Advance)
		fmt.Fprintf(r.out, "advanced to %s\n", r.clock.now.Format(time.RFC3339))
		return nil
	case step.Balance != nil:
		return r.balance(step.Balance)
	}
	def, err := r.definition(step.Contract)
	if err != nil {
		return err
	}
	if step.Execute != "" {
		msg, err := decode(def.Messages, step.Execute, &step.Msg)
		if err != nil {
			return err
		}
		err = r.rt.Execute(ctx, step.Contract, step.Caller, msg)
		if err := expect(err, step.ExpectError); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "%s %s by %s: %s\n", step.Contract, step.Execute, step.Caller, outcome(err))
		return nil
	}
	q, err := decode(def.Queries, step.Query, &step.Msg)
	if err != nil {
		return err
	}
	res, err := r.rt.Query(ctx, step.Contract, q)
	if err := expect(err, step.ExpectError); err != nil {
		return err
	}
	if err != nil {
		fmt.Fprintf(r.out, "%s %s: %s\n", step.Contract, step.Query, outcome(err))
		return nil
	}
	out, err := yaml.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	fmt.Fprintf(r.out, "%s %s:\n%s", step.Contract, step.Query, indent(string(out)))
	return nil
}

func (r *Runner) balance(check *BalanceCheck) error {
	amount, err := r.rt.Balance(check.Address, check.Denom)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "balance %s: %s%s\n", check.Address, amount, check.Denom)
	if check.Equals != "" && check.Equals != amount.String() {
		return fmt.Errorf(
			"%w: balance of %s is %s%s, want %s",
			ErrExpectation,
			check.Address,
			amount,
			check.Denom,
			check.Equals,
		)
	}
	return nil
}

func (r *Runner) definition(address string) (contract.Definition, error) {
	kind, ok := r.kinds[address]
	if !ok {
		return contract.Definition{}, fmt.Errorf("%w: contract %s", contract.ErrNotFound, address)
	}
	def, _ := contract.Lookup(kind)
	return def, nil
}

func decode(ctors map[string]func() any, name string, node *yaml.Node) (any, error) {
	ctor, ok := ctors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contract.ErrUnknownMessage, name)
	}
	ret := ctor()
	if !node.IsZero() {
		if err := node.Decode(ret); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
	}
	return ret, nil
}

// expect checks err against an expected error substring. An empty
// expectation means the call must succeed.
func expect(err error, want string) error {
	switch {
	case want == "" && err != nil:
		return err
	case want != "" && err == nil:
		return fmt.Errorf("%w: expected error %q, call succeeded", ErrExpectation, want)
	case want != "" && !strings.Contains(err.Error(), want):
		return fmt.Errorf("%w: expected error %q, got %q", ErrExpectation, want, err)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "rejected (" + err.Error() + ")"
	}
	return "ok"
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = "  " + line
	}
	return strings.Join(lines, "\n") + "\n"
}
