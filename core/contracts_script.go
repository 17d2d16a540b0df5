package core

import "fmt"

// ScriptDef stores a script body used by the (out-of-scope) filter engine;
// this core only persists and versions it.
type ScriptDef struct {
	Name    Name128
	Creator PublicKey
	Body    []byte
}

func PutScript(c *Cache, op PutOp, s ScriptDef) error {
	var zero Name128
	return PutToken(c, TokenTypeScript, op, zero, s.Name, s, marshalJSON[ScriptDef])
}

func GetScript(c *Cache, name Name128) (ScriptDef, error) {
	var zero Name128
	return ReadToken(c, TokenTypeScript, zero, name, unmarshalJSON[ScriptDef])
}

// NewScriptAction stores a fresh script body.
type NewScriptAction struct {
	Name    string    `json:"name"`
	Creator PublicKey `json:"creator"`
	Body    []byte    `json:"body"`
}

func HandleNewScript(ac *ApplyContext) error {
	act, err := decodeAction[NewScriptAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	if ac.DB.ExistsToken(TokenTypeScript, Name128{}, name) {
		return fmt.Errorf("%w: script %q already exists", ErrInvalidArgument, act.Name)
	}
	s := ScriptDef{Name: name, Creator: act.Creator, Body: act.Body}
	return PutScript(ac.Cache, PutAdd, s)
}

// UpdScriptAction replaces an existing script's body.
type UpdScriptAction struct {
	Name string `json:"name"`
	Body []byte `json:"body"`
}

func HandleUpdScript(ac *ApplyContext) error {
	act, err := decodeAction[UpdScriptAction](ac.Action)
	if err != nil {
		return err
	}
	name, err := ParseName128(act.Name)
	if err != nil {
		return err
	}
	s, err := GetScript(ac.Cache, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownScript, err)
	}
	if err := ac.Authorize(PermissionDef{Threshold: 1, Authorizers: []WeightedAuthorizer{{Weight: 1, Ref: AuthorizerRef{Kind: AuthorizerAccount, Account: s.Creator}}}}, nil); err != nil {
		return err
	}
	s.Body = act.Body
	return PutScript(ac.Cache, PutUpdate, s)
}
