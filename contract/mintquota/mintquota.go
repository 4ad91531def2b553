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

// Package mintquota is a token collection with a per-user mint cap. The cap
// counts mints, not holdings, so moving tokens away does not free quota.
package mintquota

import (
	"fmt"

	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/database"
	"github.com/blinklabs-io/warden/database/types"
)

const Kind = "mintquota"

const DefaultMintPerUser = 3

func init() {
	types.RegisterNamespace(types.NamespaceMintConfig, "mintquota/config")
	types.RegisterNamespace(types.NamespaceMintWhitelist, "mintquota/whitelist")
	types.RegisterNamespace(types.NamespaceMintCount, "mintquota/minted")
	types.RegisterNamespace(types.NamespaceMintToken, "mintquota/tokens")
	types.RegisterNamespace(types.NamespaceMintSequence, "mintquota/sequence")
	contract.Register(contract.Definition{
		Contract: New(),
		Config:   func() any { c := DefaultConfig(); return &c },
		Messages: contract.Merge(
			ownership.Messages(),
			map[string]func() any{
				"mint":                  func() any { return &Mint{} },
				"transfer":              func() any { return &Transfer{} },
				"add_to_whitelist":      func() any { return &AddToWhitelist{} },
				"remove_from_whitelist": func() any { return &RemoveFromWhitelist{} },
			},
		),
		Queries: contract.Merge(
			ownership.Queries(),
			map[string]func() any{
				"config":    func() any { return &GetConfig{} },
				"whitelist": func() any { return &GetWhitelist{} },
				"token":     func() any { return &GetToken{} },
				"minted":    func() any { return &GetMinted{} },
			},
		),
	})
}

type Config struct {
	Owner            string   `yaml:"owner"`
	WhitelistedUsers []string `yaml:"whitelisted_users"`
	MintPerUser      uint64   `yaml:"mint_per_user"`
}

func DefaultConfig() Config {
	return Config{MintPerUser: DefaultMintPerUser}
}

// Info is returned by the config query
type Info struct {
	MintPerUser uint64
	TotalTokens uint64
}

type Whitelist struct {
	Users []string
}

type Token struct {
	Owner  string
	Minter string
	ID     uint64
}

// Mint issues the next token to the caller
type Mint struct{}

type Transfer struct {
	Recipient string `yaml:"recipient"`
	TokenID   uint64 `yaml:"token_id"`
}

// AddToWhitelist allows an address to mint. Owner only.
type AddToWhitelist struct {
	Address string `yaml:"address"`
}

// RemoveFromWhitelist stops an address from minting. Owner only.
type RemoveFromWhitelist struct {
	Address string `yaml:"address"`
}

type GetConfig struct{}

type GetWhitelist struct{}

type GetToken struct {
	ID uint64 `yaml:"id"`
}

// GetMinted returns how many tokens an address has minted
type GetMinted struct {
	Owner string `yaml:"owner"`
}

var (
	mintPerUser = database.NewItem[uint64](types.NamespaceMintConfig, "mint_per_user")
	// totalTokens doubles as the id sequence; ids start at 1
	totalTokens = database.NewItem[uint64](types.NamespaceMintSequence, "total")
	whitelist   = database.NewMap[bool](types.NamespaceMintWhitelist)
	minted      = database.NewMap[uint64](types.NamespaceMintCount)
	tokens      = database.NewMap[Token](types.NamespaceMintToken)
)

type Collection struct {
	owner ownership.Manager
}

func New() *Collection {
	m := &Collection{}
	m.owner = ownership.NewManager(ownership.FreeFunds(m))
	return m
}

func (m *Collection) Kind() string {
	return Kind
}

func (m *Collection) Instantiate(c *contract.Ctx, config any) error {
	cfg, ok := config.(*Config)
	if !ok {
		return fmt.Errorf("%w: %T", contract.ErrInvalidConfig, config)
	}
	if cfg.MintPerUser == 0 {
		return fmt.Errorf("%w: mint per user must be positive", contract.ErrInvalidConfig)
	}
	owner := cfg.Owner
	if owner == "" {
		owner = c.Caller
	}
	if err := m.owner.Init(c, owner, ""); err != nil {
		return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
	}
	for _, user := range cfg.WhitelistedUsers {
		if err := contract.ValidateAddress(user); err != nil {
			return fmt.Errorf("%w: %w", contract.ErrInvalidConfig, err)
		}
		if err := whitelist.Save(c.Store, types.StringKey(user), true); err != nil {
			return err
		}
	}
	if err := mintPerUser.Save(c.Store, cfg.MintPerUser); err != nil {
		return err
	}
	return totalTokens.Save(c.Store, 0)
}

func (m *Collection) Execute(c *contract.Ctx, msg any) error {
	switch msg := msg.(type) {
	case *Mint:
		_, err := m.Mint(c)
		return err
	case *Transfer:
		return m.Transfer(c, msg.TokenID, msg.Recipient)
	case *AddToWhitelist:
		return m.setWhitelisted(c, msg.Address, true)
	case *RemoveFromWhitelist:
		return m.setWhitelisted(c, msg.Address, false)
	}
	if ok, err := m.owner.Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(Kind, msg)
}

func (m *Collection) Query(c *contract.Ctx, q any) (any, error) {
	switch q := q.(type) {
	case *GetConfig:
		return m.info(c)
	case *GetWhitelist:
		return m.whitelist(c)
	case *GetToken:
		return m.token(c, q.ID)
	case *GetMinted:
		count, _, err := minted.Load(c.Store, types.StringKey(q.Owner))
		return count, err
	}
	if res, ok, err := m.owner.HandleQuery(c, q); ok {
		return res, err
	}
	return nil, contract.UnknownMessage(Kind, q)
}

// Reserved is always zero, the collection holds no coins of its own
func (m *Collection) Reserved(*contract.Ctx, string) (types.Uint128, error) {
	return types.Uint128{}, nil
}

func (m *Collection) Mint(c *contract.Ctx) (uint64, error) {
	listed, err := whitelist.Has(c.Store, types.StringKey(c.Caller))
	if err != nil {
		return 0, err
	}
	if !listed {
		return 0, fmt.Errorf("%w: %s", contract.ErrNotWhitelisted, c.Caller)
	}
	limit, err := mintPerUser.MustLoad(c.Store)
	if err != nil {
		return 0, err
	}
	count, _, err := minted.Load(c.Store, types.StringKey(c.Caller))
	if err != nil {
		return 0, err
	}
	if count >= limit {
		return 0, fmt.Errorf("%w: %s has minted %d of %d", contract.ErrQuotaExceeded, c.Caller, count, limit)
	}
	total, err := totalTokens.MustLoad(c.Store)
	if err != nil {
		return 0, err
	}
	id := total + 1
	tok := Token{ID: id, Owner: c.Caller, Minter: c.Caller}
	if err := tokens.Save(c.Store, types.Uint64Key(id), tok); err != nil {
		return 0, err
	}
	if err := minted.Save(c.Store, types.StringKey(c.Caller), count+1); err != nil {
		return 0, err
	}
	if err := totalTokens.Save(c.Store, id); err != nil {
		return 0, err
	}
	c.Emit(
		"token_minted",
		contract.Attr("id", id),
		contract.Attr("owner", c.Caller),
	)
	return id, nil
}

// Transfer hands a token to recipient. The mint counts of both parties are
// left alone.
func (m *Collection) Transfer(c *contract.Ctx, id uint64, recipient string) error {
	if err := contract.ValidateAddress(recipient); err != nil {
		return err
	}
	tok, err := m.token(c, id)
	if err != nil {
		return err
	}
	if tok.Owner != c.Caller {
		return fmt.Errorf("token %d: %w", id, contract.ErrNotOwner)
	}
	tok.Owner = recipient
	if err := tokens.Save(c.Store, types.Uint64Key(id), tok); err != nil {
		return err
	}
	c.Emit(
		"token_transferred",
		contract.Attr("id", id),
		contract.Attr("from", c.Caller),
		contract.Attr("to", recipient),
	)
	return nil
}

func (m *Collection) setWhitelisted(c *contract.Ctx, addr string, listed bool) error {
	if err := m.owner.AssertOwner(c); err != nil {
		return err
	}
	if err := contract.ValidateAddress(addr); err != nil {
		return err
	}
	if !listed {
		return whitelist.Remove(c.Store, types.StringKey(addr))
	}
	return whitelist.Save(c.Store, types.StringKey(addr), true)
}

func (m *Collection) info(c *contract.Ctx) (Info, error) {
	limit, err := mintPerUser.MustLoad(c.Store)
	if err != nil {
		return Info{}, err
	}
	total, err := totalTokens.MustLoad(c.Store)
	if err != nil {
		return Info{}, err
	}
	return Info{MintPerUser: limit, TotalTokens: total}, nil
}

func (m *Collection) whitelist(c *contract.Ctx) (Whitelist, error) {
	var ret Whitelist
	err := whitelist.Range(c.Store, nil, func(key []byte, _ bool) error {
		user, _, err := types.KeyString(key)
		if err != nil {
			return err
		}
		ret.Users = append(ret.Users, user)
		return nil
	})
	return ret, err
}

func (m *Collection) token(c *contract.Ctx, id uint64) (Token, error) {
	tok, ok, err := tokens.Load(c.Store, types.Uint64Key(id))
	if err != nil {
		return Token{}, err
	}
	if !ok {
		return Token{}, fmt.Errorf("%w: token %d", contract.ErrNotFound, id)
	}
	return tok, nil
}
