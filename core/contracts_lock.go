package core

import (
	"fmt"
	"time"
)

// NewLockAction proposes an escrow over a mix of NFTs and FTs.
type NewLockAction struct {
	Name       string        `json:"name"`
	Proposer   PublicKey     `json:"proposer"`
	UnlockTime int64         `json:"unlock_time"`
	Deadline   int64         `json:"deadline"`
	Assets     []LockAsset   `json:"assets"`
	Condition  LockCondition `json:"condition"`
	Succeed    []Address     `json:"succeed"`
	Failed     []Address     `json:"failed"`
}

func HandleNewLock(ac *ApplyContext) error {
	act, err := decodeAction[NewLockAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	if ac.DB.ExistsToken(TokenTypeLock, Name128{}, name) {
		return ErrDuplicateLock
	}
	if err := act.Condition.Validate(); err != nil {
		return err
	}
	if len(act.Succeed) == 0 || len(act.Failed) == 0 {
		return fmt.Errorf("%w: lock requires non-empty succeed and failed address lists", ErrInvalidArgument)
	}
	hasFT := false
	for _, a := range act.Assets {
		if a.Kind == LockAssetFT {
			hasFT = true
			if a.FT.Sym.IsPinned() {
				return fmt.Errorf("%w: pinned native token cannot be locked", ErrAssetType)
			}
		}
	}
	if hasFT && (len(act.Succeed) != 1 || len(act.Failed) != 1) {
		return fmt.Errorf("%w: locking a fungible asset requires singleton succeed/failed lists", ErrInvalidArgument)
	}
	lockAddr := LockAddress(name)
	for _, a := range act.Assets {
		switch a.Kind {
		case LockAssetNFT:
			for _, tn := range a.Names {
				t, err := GetTokenDef(ac.Cache, a.Domain, tn)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrUnknownToken, err)
				}
				if t.Destroyed() {
					return ErrTokenDestroyed
				}
				if t.Locked() {
					return ErrTokenLocked
				}
				if err := ac.Authorize(PermissionDef{Threshold: 0}, t.Owner); err != nil {
					return err
				}
				t.Owner = []Address{lockAddr}
				if err := PutTokenDef(ac.Cache, PutUpdate, t); err != nil {
					return err
				}
			}
		case LockAssetFT:
			f, err := GetFungible(ac.Cache, a.FT.Sym.ID())
			if err != nil {
				return fmt.Errorf("%w: %v", ErrUnknownFungible, err)
			}
			if err := ac.Authorize(f.Transfer, []Address{a.From}); err != nil {
				return err
			}
			// Bonus collection is deferred until the escrowed funds are
			// released.
			if err := debitAddress(ac, a.From, a.FT); err != nil {
				return err
			}
			if err := creditAddress(ac, lockAddr, a.FT, 0); err != nil {
				return err
			}
		}
	}
	l := LockDef{
		Name: name, Proposer: act.Proposer, Status: LockProposed,
		UnlockTime: time.Unix(act.UnlockTime, 0).UTC(), Deadline: time.Unix(act.Deadline, 0).UTC(),
		Assets: act.Assets, Condition: act.Condition, Succeed: act.Succeed, Failed: act.Failed,
	}
	return PutLock(ac.Cache, PutAdd, l)
}

// AprvLockAction records one approver's signature toward Condition.
type AprvLockAction struct {
	Name     string    `json:"name"`
	Approver PublicKey `json:"approver"`
}

func HandleAprvLock(ac *ApplyContext) error {
	act, err := decodeAction[AprvLockAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	l, err := GetLock(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownLock, err)
	}
	if l.Status != LockProposed {
		return ErrLockNotProposed
	}
	for _, k := range l.SignedKeys {
		if k.Equal(act.Approver) {
			return fmt.Errorf("%w: approver already recorded", ErrInvalidArgument)
		}
	}
	l.SignedKeys = append(l.SignedKeys, act.Approver)
	return PutLock(ac.Cache, PutUpdate, l)
}

// TryUnlockAction evaluates the condition/timing and, if resolved, releases
// assets to succeed or failed.
type TryUnlockAction struct {
	Name string `json:"name"`
}

func HandleTryUnlock(ac *ApplyContext) error {
	act, err := decodeAction[TryUnlockAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	l, err := GetLock(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownLock, err)
	}
	if l.Status != LockProposed {
		return ErrLockNotProposed
	}
	if ac.Now.Before(l.UnlockTime) {
		return fmt.Errorf("%w: unlock_time not yet reached", ErrLockTiming)
	}
	signed := NewKeySet(l.SignedKeys...)
	satisfied := l.Condition.Satisfied(signed)
	if satisfied {
		if err := releaseLock(ac, l, l.Succeed); err != nil {
			return err
		}
		l.Status = LockSucceed
		return PutLock(ac.Cache, PutUpdate, l)
	}
	if ac.Now.After(l.Deadline) {
		if err := releaseLock(ac, l, l.Failed); err != nil {
			return err
		}
		l.Status = LockFailed
		return PutLock(ac.Cache, PutUpdate, l)
	}
	return fmt.Errorf("%w: condition unmet and deadline not reached", ErrLockCondition)
}

func releaseLock(ac *ApplyContext, l LockDef, dest []Address) error {
	lockAddr := LockAddress(l.Name)
	for _, a := range l.Assets {
		switch a.Kind {
		case LockAssetNFT:
			for _, tn := range a.Names {
				t, err := GetTokenDef(ac.Cache, a.Domain, tn)
				if err != nil {
					return fmt.Errorf("%w: %v", ErrUnknownToken, err)
				}
				t.Owner = append([]Address{}, dest...)
				if err := PutTokenDef(ac.Cache, PutUpdate, t); err != nil {
					return err
				}
			}
		case LockAssetFT:
			if err := debitAddress(ac, lockAddr, a.FT); err != nil {
				return err
			}
			if err := creditAddress(ac, dest[0], a.FT, 0); err != nil {
				return err
			}
		}
	}
	return nil
}
