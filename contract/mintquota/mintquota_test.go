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

package mintquota_test

import (
	"testing"

	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/contracttest"
	"github.com/blinklabs-io/warden/contract/mintquota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "collection1"

func setup(t *testing.T) *contracttest.Harness {
	h := contracttest.New(t)
	cfg := mintquota.DefaultConfig()
	cfg.WhitelistedUsers = []string{"user1", "user2", "user3"}
	h.MustInstantiate(mintquota.New(), addr, "admin", &cfg)
	return h
}

func TestMintUpToQuota(t *testing.T) {
	h := setup(t)
	wl := contracttest.MustQuery[mintquota.Whitelist](h, addr, &mintquota.GetWhitelist{})
	assert.ElementsMatch(t, []string{"user1", "user2", "user3"}, wl.Users)

	err := h.Execute(addr, "user4", &mintquota.Mint{})
	require.ErrorIs(t, err, contract.ErrNotWhitelisted)

	for range 3 {
		h.MustExecute(addr, "user1", &mintquota.Mint{})
	}
	err = h.Execute(addr, "user1", &mintquota.Mint{})
	require.ErrorIs(t, err, contract.ErrQuotaExceeded)
	h.MustExecute(addr, "user2", &mintquota.Mint{})

	info := contracttest.MustQuery[mintquota.Info](h, addr, &mintquota.GetConfig{})
	assert.Equal(t, uint64(3), info.MintPerUser)
	assert.Equal(t, uint64(4), info.TotalTokens)
}

func TestTransferDoesNotResetQuota(t *testing.T) {
	h := setup(t)
	for range 3 {
		h.MustExecute(addr, "user1", &mintquota.Mint{})
	}
	// Park the tokens somewhere else and try again
	for id := uint64(1); id <= 3; id++ {
		h.MustExecute(addr, "user1", &mintquota.Transfer{TokenID: id, Recipient: "stash"})
	}
	err := h.Execute(addr, "user1", &mintquota.Mint{})
	require.ErrorIs(t, err, contract.ErrQuotaExceeded)

	tok := contracttest.MustQuery[mintquota.Token](h, addr, &mintquota.GetToken{ID: 2})
	assert.Equal(t, "stash", tok.Owner)
	assert.Equal(t, "user1", tok.Minter)
	count := contracttest.MustQuery[uint64](h, addr, &mintquota.GetMinted{Owner: "user1"})
	assert.Equal(t, uint64(3), count)
}

func TestTransferRequiresTokenOwner(t *testing.T) {
	h := setup(t)
	h.MustExecute(addr, "user1", &mintquota.Mint{})
	err := h.Execute(addr, "user2", &mintquota.Transfer{TokenID: 1, Recipient: "user2"})
	require.ErrorIs(t, err, contract.ErrNotOwner)
	err = h.Execute(addr, "user1", &mintquota.Transfer{TokenID: 9, Recipient: "user2"})
	require.ErrorIs(t, err, contract.ErrNotFound)
}

func TestWhitelistIsOwnerManaged(t *testing.T) {
	h := setup(t)
	err := h.Execute(addr, "user4", &mintquota.AddToWhitelist{Address: "user4"})
	require.ErrorIs(t, err, contract.ErrNotOwner)
	h.MustExecute(addr, "admin", &mintquota.AddToWhitelist{Address: "user4"})
	h.MustExecute(addr, "user4", &mintquota.Mint{})
	h.MustExecute(addr, "admin", &mintquota.RemoveFromWhitelist{Address: "user1"})
	err = h.Execute(addr, "user1", &mintquota.Mint{})
	require.ErrorIs(t, err, contract.ErrNotWhitelisted)
}
