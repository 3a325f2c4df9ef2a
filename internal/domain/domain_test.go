package domain

import "testing"

func TestVerdictNormalize(t *testing.T) {
	cases := []struct {
		in      Verdict
		want    Verdict
		wantOk  bool
	}{
		{VerdictGood, VerdictGood, true},
		{VerdictSuspect, VerdictSuspect, true},
		{VerdictBad, VerdictBad, true},
		{VerdictUnknown, VerdictSuspect, true},
		{Verdict("garbage"), VerdictSuspect, false},
	}
	for _, c := range cases {
		got, ok := c.in.Normalize()
		if got != c.want || ok != c.wantOk {
			t.Errorf("Normalize(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.wantOk)
		}
	}
}

func TestPatchNotFoundErrorUnwraps(t *testing.T) {
	err := &PatchNotFoundError{PatchId: "p1"}
	if err.Unwrap() != ErrPatchNotFound {
		t.Error("Unwrap() should return ErrPatchNotFound")
	}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}

func TestSchemaVersionErrorMessage(t *testing.T) {
	err := &SchemaVersionError{Expected: "2.0", Found: "1.0"}
	if err.Error() == "" {
		t.Error("Error() should not be empty")
	}
}
