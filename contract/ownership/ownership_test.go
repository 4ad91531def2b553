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

package ownership_test

import (
	"testing"

	"github.com/blinklabs-io/warden/bank"
	"github.com/blinklabs-io/warden/contract"
	"github.com/blinklabs-io/warden/contract/contracttest"
	"github.com/blinklabs-io/warden/contract/ownership"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ownedContract reserves a fixed amount of every denom and otherwise only
// handles ownership messages
type ownedContract struct {
	reserved uint64
}

func (o *ownedContract) Kind() string { return "owned" }

func (o *ownedContract) manager() ownership.Manager {
	return ownership.NewManager(ownership.FreeFunds(o))
}

func (o *ownedContract) Reserved(*contract.Ctx, string) (types.Uint128, error) {
	return types.NewUint128(o.reserved), nil
}

func (o *ownedContract) Instantiate(c *contract.Ctx, config any) error {
	governor, _ := config.(string)
	return o.manager().Init(c, c.Caller, governor)
}

func (o *ownedContract) Execute(c *contract.Ctx, msg any) error {
	if ok, err := o.manager().Handle(c, msg); ok {
		return err
	}
	return contract.UnknownMessage(o.Kind(), msg)
}

func (o *ownedContract) Query(c *contract.Ctx, q any) (any, error) {
	res, ok, err := o.manager().HandleQuery(c, q)
	if !ok {
		return nil, contract.UnknownMessage(o.Kind(), q)
	}
	return res, err
}

func setup(t *testing.T, governor string) *contracttest.Harness {
	h := contracttest.New(t)
	h.MustInstantiate(&ownedContract{reserved: 100}, "owned1", "owner", governor)
	return h
}

func ownershipState(h *contracttest.Harness) ownership.State {
	return contracttest.MustQuery[ownership.State](h, "owned1", &ownership.GetOwnership{})
}

func TestTwoPhaseHandover(t *testing.T) {
	h := setup(t, "")
	h.MustExecute("owned1", "owner", &ownership.ProposeOwner{NewOwner: "new_owner"})
	assert.Equal(t, "new_owner", ownershipState(h).Proposed)

	h.MustExecute("owned1", "new_owner", &ownership.AcceptOwner{})
	state := ownershipState(h)
	assert.Equal(t, "new_owner", state.Owner)
	assert.Empty(t, state.Proposed)
	assert.Equal(t, []string{"ownership_proposed", "ownership_transferred"}, h.EventTypes())

	// The previous owner lost its rights
	err := h.Execute("owned1", "owner", &ownership.ProposeOwner{NewOwner: "owner"})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
}

func TestForeignAcceptFails(t *testing.T) {
	h := setup(t, "")
	h.MustExecute("owned1", "owner", &ownership.ProposeOwner{NewOwner: "new_owner"})
	err := h.Execute("owned1", "hacker", &ownership.AcceptOwner{})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	state := ownershipState(h)
	assert.Equal(t, "owner", state.Owner)
	assert.Equal(t, "new_owner", state.Proposed)
}

func TestAcceptWithoutProposal(t *testing.T) {
	h := setup(t, "")
	err := h.Execute("owned1", "owner", &ownership.AcceptOwner{})
	require.ErrorIs(t, err, contract.ErrNoPendingOwner)
}

func TestOnlyOwnerProposes(t *testing.T) {
	h := setup(t, "")
	err := h.Execute("owned1", "hacker", &ownership.ProposeOwner{NewOwner: "hacker"})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	assert.Empty(t, ownershipState(h).Proposed)
}

func TestGovernorProposes(t *testing.T) {
	h := setup(t, "gov1")
	h.MustExecute("owned1", "gov1", &ownership.ProposeOwner{NewOwner: "elected"})
	assert.Equal(t, "elected", ownershipState(h).Proposed)
	// The governor cannot accept on anyone's behalf
	err := h.Execute("owned1", "gov1", &ownership.AcceptOwner{})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
}

func TestCancelTransfer(t *testing.T) {
	h := setup(t, "")
	h.MustExecute("owned1", "owner", &ownership.ProposeOwner{NewOwner: "new_owner"})
	err := h.Execute("owned1", "new_owner", &ownership.CancelOwnershipTransfer{})
	require.ErrorIs(t, err, contract.ErrUnauthorized)
	h.MustExecute("owned1", "owner", &ownership.CancelOwnershipTransfer{})
	assert.Empty(t, ownershipState(h).Proposed)
	err = h.Execute("owned1", "new_owner", &ownership.AcceptOwner{})
	require.ErrorIs(t, err, contract.ErrNoPendingOwner)
}

func TestProposeRejectsNonCanonicalAddress(t *testing.T) {
	h := setup(t, "")
	err := h.Execute("owned1", "owner", &ownership.ProposeOwner{NewOwner: "New_Owner"})
	require.ErrorIs(t, err, contract.ErrInvalidAddress)
}

func TestOwnerActionPaysOnlyFreeFunds(t *testing.T) {
	h := setup(t, "")
	h.Mint("owned1", bank.NewCoin("uatom", 150))
	send := func(amount uint64) *ownership.OwnerAction {
		return &ownership.OwnerAction{Send: &ownership.Send{
			Recipient: "treasurer",
			Coins:     []bank.Coin{bank.NewCoin("uatom", amount)},
		}}
	}
	err := h.Execute("owned1", "hacker", send(10))
	require.ErrorIs(t, err, contract.ErrUnauthorized)

	// 100 of the 150 are reserved
	err = h.Execute("owned1", "owner", send(51))
	require.ErrorIs(t, err, contract.ErrInsufficientFunds)
	h.MustExecute("owned1", "owner", send(50))
	assert.Equal(t, "50", h.Balance("treasurer", "uatom").String())
	assert.Equal(t, "100", h.Balance("owned1", "uatom").String())

	err = h.Execute("owned1", "owner", &ownership.OwnerAction{})
	require.ErrorIs(t, err, contract.ErrInvalidRequest)
}
