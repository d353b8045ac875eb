package cmd

import "testing"

func TestCollect_RejectsInvalidSubjectID(t *testing.T) {
	for _, arg := range []string{"0", "-3", "abc", "1.5"} {
		if err := collectCmd.RunE(collectCmd, []string{arg}); err == nil {
			t.Errorf("subject id %q: expected an error, got nil", arg)
		}
	}
}
