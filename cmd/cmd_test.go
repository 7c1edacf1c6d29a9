package cmd

import "testing"

func TestCurrentUser(t *testing.T) {
	t.Cleanup(func() { userFlag = "" })

	t.Run("flag wins", func(t *testing.T) {
		userFlag = "alice"
		t.Setenv("SENSEI_USER", "bob")

		got, err := currentUser()
		if err != nil {
			t.Fatalf("currentUser() error = %v", err)
		}
		if got != "alice" {
			t.Errorf("currentUser() = %q, want alice", got)
		}
	})

	t.Run("env fallback", func(t *testing.T) {
		userFlag = ""
		t.Setenv("SENSEI_USER", "bob")

		got, err := currentUser()
		if err != nil {
			t.Fatalf("currentUser() error = %v", err)
		}
		if got != "bob" {
			t.Errorf("currentUser() = %q, want bob", got)
		}
	})

	t.Run("no identity", func(t *testing.T) {
		userFlag = ""
		t.Setenv("SENSEI_USER", "")
		t.Setenv("USER", "")

		if _, err := currentUser(); err == nil {
			t.Fatal("currentUser() = nil error, want error")
		}
	})
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{
		"explain": false, "quota": false, "history": false,
		"index": false, "serve": false, "version": false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}
