/* Copyright (c) 2020 OpenCraft <https://opencraft.com>
 * SPDX-License-Identifier: AGPL-3.0 */
package dashboard

// UserIdentity identifies a row owner. Work without a real owner is bucketed
// under the Unassigned or OtherTeam sentinels instead of being dropped.
type UserIdentity struct {
    kind int
    name string
}

const (
    kindReal = iota
    kindUnassigned
    kindOtherTeam
)

var (
    Unassigned = UserIdentity{kind: kindUnassigned, name: "Unassigned"}
    OtherTeam  = UserIdentity{kind: kindOtherTeam, name: "Other team"}
)

func RealUser(name string) UserIdentity { return UserIdentity{kind: kindReal, name: name} }

func (u UserIdentity) IsReal() bool { return u.kind == kindReal }

func (u UserIdentity) Name() string { return u.name }
