package core

import (
	"encoding/json"
	"fmt"
)

// NewDomainAction is newdomain's payload.
type NewDomainAction struct {
	Name     string        `json:"name"`
	Creator  PublicKey     `json:"creator"`
	Issue    PermissionDef `json:"issue"`
	Transfer PermissionDef `json:"transfer"`
	Manage   PermissionDef `json:"manage"`
}

func decodeAction[T any](a Action) (T, error) {
	var v T
	if err := json.Unmarshal(a.Data, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrInvalidBinary, err)
	}
	return v, nil
}

// HandleNewDomain creates a domain: validates the three permission sets
// (issue/transfer require threshold>0; the transfer permission may name
// the "owner" pseudo-group; manage may have threshold 0), checks for
// duplicates, and stores the record.
func HandleNewDomain(ac *ApplyContext) error {
	act, err := decodeAction[NewDomainAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	if name.Reserved() {
		return fmt.Errorf("%w: domain name is reserved", ErrInvalidArgument)
	}
	if ac.DB.ExistsToken(TokenTypeDomain, Name128{}, name) {
		return ErrDuplicateDomain
	}
	if err := act.Issue.Validate(true); err != nil {
		return err
	}
	if err := act.Transfer.Validate(true); err != nil {
		return err
	}
	if err := act.Manage.Validate(false); err != nil {
		return err
	}
	if err := ac.Authorize(act.Issue, nil); err != nil {
		return err
	}
	d := DomainDef{
		Name: name, Creator: act.Creator, CreateTime: ac.Now,
		Issue: act.Issue, Transfer: act.Transfer, Manage: act.Manage,
	}
	return PutDomain(ac.Cache, PutAdd, d)
}

// domainMetaFlag reads a boolean flag stored as a domain meta entry (e.g.
// ".disable_destroy"), defaulting to false when absent.
func domainMetaFlag(d DomainDef, key string) bool {
	for _, m := range d.Metas {
		if m.Key == key {
			return m.Value == "true" || m.Value == "1"
		}
	}
	return false
}
