package core

import "testing"

func TestHandleNewScriptThenUpdScript(t *testing.T) {
	creator, _ := GeneratePrivateKey()
	ac, cache := newTestApplyContext(t, creator.Public())

	ac.Action = actionWith("newscript", NewScriptAction{Name: "myscript", Creator: creator.Public(), Body: []byte("v1")})
	if err := HandleNewScript(ac); err != nil {
		t.Fatalf("HandleNewScript: %v", err)
	}
	s, err := GetScript(cache, MustName128("myscript"))
	if err != nil {
		t.Fatalf("GetScript: %v", err)
	}
	if string(s.Body) != "v1" {
		t.Fatalf("got body %q, want v1", s.Body)
	}

	ac.Action = actionWith("updscript", UpdScriptAction{Name: "myscript", Body: []byte("v2")})
	if err := HandleUpdScript(ac); err != nil {
		t.Fatalf("HandleUpdScript: %v", err)
	}
	s, err = GetScript(cache, MustName128("myscript"))
	if err != nil {
		t.Fatalf("GetScript after update: %v", err)
	}
	if string(s.Body) != "v2" {
		t.Fatalf("got body %q, want v2", s.Body)
	}
}

func TestHandleNewScriptRejectsDuplicateName(t *testing.T) {
	creator, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, creator.Public())
	act := NewScriptAction{Name: "myscript", Creator: creator.Public(), Body: []byte("v1")}
	ac.Action = actionWith("newscript", act)
	if err := HandleNewScript(ac); err != nil {
		t.Fatalf("HandleNewScript: %v", err)
	}
	ac.Action = actionWith("newscript", act)
	if err := HandleNewScript(ac); err == nil {
		t.Fatal("expected error creating a script with a name already in use")
	}
}

func TestHandleUpdScriptRejectsNonCreator(t *testing.T) {
	creator, _ := GeneratePrivateKey()
	other, _ := GeneratePrivateKey()
	ac, _ := newTestApplyContext(t, creator.Public(), other.Public())
	ac.Action = actionWith("newscript", NewScriptAction{Name: "myscript", Creator: creator.Public(), Body: []byte("v1")})
	if err := HandleNewScript(ac); err != nil {
		t.Fatalf("HandleNewScript: %v", err)
	}
	ac.SigningKeys = NewKeySet(other.Public())
	ac.Action = actionWith("updscript", UpdScriptAction{Name: "myscript", Body: []byte("v2")})
	if err := HandleUpdScript(ac); err == nil {
		t.Fatal("expected error: only the script's creator can update it")
	}
}
