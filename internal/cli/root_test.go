package cli

import "testing"

func TestRootCommandHasSubcommands(t *testing.T) {
	want := map[string]bool{"run": false, "disasm": false, "watch": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("rootCmd missing subcommand %q", name)
		}
	}
}

func TestRunCommandRequiresAtLeastOneArg(t *testing.T) {
	if err := runCmd.Args(runCmd, nil); err == nil {
		t.Error("run with no arguments should fail validation")
	}
	if err := runCmd.Args(runCmd, []string{"Hello"}); err != nil {
		t.Errorf("run with one argument should validate, got %v", err)
	}
}

func TestDisasmCommandRequiresExactlyOneArg(t *testing.T) {
	if err := disasmCmd.Args(disasmCmd, []string{"a", "b"}); err == nil {
		t.Error("disasm with two arguments should fail validation")
	}
	if err := disasmCmd.Args(disasmCmd, []string{"Hello.class"}); err != nil {
		t.Errorf("disasm with one argument should validate, got %v", err)
	}
}
