package main

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestCommandsRegistered(t *testing.T) {
	root := &cobra.Command{Use: "test"}
	root.AddCommand(migrateCmd, approveAllCmd, seedDemoCmd, setRoleCmd, reindexCmd, publishScheduledCmd)

	for _, name := range []string{"migrate", "approve-all", "seed-demo", "set-role", "reindex", "publish-scheduled"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered (got %v, err %v)", name, cmd, err)
		}
	}
}

func TestSetRoleRequiresTwoArgs(t *testing.T) {
	if err := setRoleCmd.Args(setRoleCmd, []string{"usr-1"}); err == nil {
		t.Fatalf("expected an error for a missing role argument")
	}
	if err := setRoleCmd.Args(setRoleCmd, []string{"usr-1", "admin"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFlagDefaults(t *testing.T) {
	if got := approveAllCmd.Flags().Lookup("reviewer").DefValue; got != "admin-cli" {
		t.Fatalf("reviewer default = %q", got)
	}
	if got := seedDemoCmd.Flags().Lookup("password").DefValue; len(got) < 8 {
		t.Fatalf("demo password default %q is shorter than the signup minimum", got)
	}
}
