package action_test

import (
	"errors"
	"strconv"
	"testing"

	"msgbridge/pkg/action"
	"msgbridge/pkg/protocol"
)

func TestDecode_RoundTripEveryCode(t *testing.T) {
	for _, code := range action.Codes() {
		got, err := action.Decode(strconv.Itoa(code.Int()))
		if err != nil {
			t.Fatalf("Decode(%d) failed: %v", code.Int(), err)
		}
		single, ok := got.Single()
		if !ok {
			t.Fatalf("Decode(%d) shape = %v, want single", code.Int(), got.Shape())
		}
		if single != code {
			t.Errorf("Decode(%d) = %v, want %v", code.Int(), single, code)
		}
	}
}

func TestDecode_MultipleKeepsOrder(t *testing.T) {
	got, err := action.Decode("0, 3")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got.Shape() != action.Multiple {
		t.Fatalf("shape = %v, want multiple", got.Shape())
	}
	codes := got.Codes()
	want := []action.ResultCode{action.ActionPerformed, action.NotRegistered}
	if len(codes) != len(want) {
		t.Fatalf("got %d codes, want %d", len(codes), len(want))
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("codes[%d] = %v, want %v", i, codes[i], want[i])
		}
	}

	reversed, err := action.Decode("3, 0")
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if c := reversed.Codes(); c[0] != action.NotRegistered || c[1] != action.ActionPerformed {
		t.Errorf("order not preserved: %v", c)
	}
}

func TestDecode_EmptyIsAbsent(t *testing.T) {
	for _, raw := range []string{"", "   ", "\r\n"} {
		got, err := action.Decode(raw)
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", raw, err)
		}
		if !got.Absent() || got.Shape() != action.None {
			t.Errorf("Decode(%q) = %v, want absent", raw, got.Shape())
		}
		if got.Codes() != nil {
			t.Errorf("Decode(%q).Codes() = %v, want nil", raw, got.Codes())
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		raw   string
		token string
	}{
		{"abc", "abc"},
		{"0, abc", "abc"},
		{"0,3", "0,3"},
		{"99", "99"},
		{"-1", "-1"},
		{"0, 42", "42"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := action.Decode(tt.raw)
			if err == nil {
				t.Fatalf("Decode(%q) = %v, want MalformedResultError", tt.raw, got.Codes())
			}
			var malformed *protocol.MalformedResultError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedResultError, got %T: %v", err, err)
			}
			if malformed.Token != tt.token {
				t.Errorf("Token = %q, want %q", malformed.Token, tt.token)
			}
			if !got.Absent() {
				t.Error("failed decode must not return codes")
			}
		})
	}
}

func TestOutcome_Contains(t *testing.T) {
	o := action.NewOutcome(action.ActionPerformed, action.HandleNotFound, action.UiError)
	if !o.Contains(action.UiError) {
		t.Error("expected outcome to contain ui_error")
	}
	if o.Contains(action.NullMessage) {
		t.Error("did not expect null_message")
	}
	if _, ok := o.Single(); ok {
		t.Error("Single() must fail on a multiple outcome")
	}
}

func TestOutcome_EncodeDecode(t *testing.T) {
	o := action.NewOutcome(action.ChatNotFound, action.UiError)
	if got := o.Encode(); got != "4, 1" {
		t.Fatalf("Encode() = %q, want %q", got, "4, 1")
	}
	back, err := action.Decode(o.Encode())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if back.String() != "chat_not_found,ui_error" {
		t.Errorf("String() = %q", back.String())
	}
}

func TestOutcome_CodesIsCopy(t *testing.T) {
	o := action.NewOutcome(action.ActionPerformed)
	codes := o.Codes()
	codes[0] = action.UiError
	if o.Contains(action.UiError) {
		t.Error("mutating Codes() result leaked into the outcome")
	}
}
