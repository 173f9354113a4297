package safe

import (
	"errors"
	"strings"
	"testing"
)

func TestRun(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("boom")
	tests := []struct {
		name       string
		fn         func() error
		wantErr    bool
		wantIs     error
		wantSubstr string
		wantPanic  bool
	}{
		{
			name: "success",
			fn:   func() error { return nil },
		},
		{
			name:       "error is wrapped with scope",
			fn:         func() error { return sentinel },
			wantErr:    true,
			wantIs:     sentinel,
			wantSubstr: "scope: boom",
		},
		{
			name:       "panic is recovered",
			fn:         func() error { panic("exploded") },
			wantErr:    true,
			wantSubstr: "scope: panic recovered: exploded",
			wantPanic:  true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := Run("scope", testCase.fn)
			if !testCase.wantErr {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error")
			}
			if testCase.wantIs != nil && !errors.Is(err, testCase.wantIs) {
				t.Fatalf("error %v does not wrap %v", err, testCase.wantIs)
			}
			if !strings.Contains(err.Error(), testCase.wantSubstr) {
				t.Fatalf("error = %q, want substring %q", err.Error(), testCase.wantSubstr)
			}
			var panicErr *PanicError
			if got := errors.As(err, &panicErr); got != testCase.wantPanic {
				t.Fatalf("errors.As(*PanicError) = %v, want %v", got, testCase.wantPanic)
			}
			if panicErr != nil && (panicErr.Scope != "scope" || len(panicErr.Stack) == 0) {
				t.Fatalf("panic error = %+v, want scope and stack", panicErr)
			}
		})
	}
}
