package formatting_test

import (
	"errors"
	"testing"

	"github.com/JaimeStill/attest/pkg/formatting"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  envelope
	}{
		{"direct JSON", `{"success":true,"message":"ok"}`, envelope{true, "ok"}},
		{"padded JSON", "  {\"success\":true}\n", envelope{Success: true}},
		{"fenced JSON", "```json\n{\"success\":false,\"message\":\"no\"}\n```", envelope{false, "no"}},
		{"log noise", "DEBUG: saved\n{\"success\":true,\"message\":\"done\"}\n", envelope{true, "done"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := formatting.Decode[envelope]([]byte(tt.input))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeFailure(t *testing.T) {
	_, err := formatting.Decode[envelope]([]byte("<html>502 Bad Gateway</html>"))
	if !errors.Is(err, formatting.ErrDecodeFailed) {
		t.Fatalf("err = %v, want ErrDecodeFailed", err)
	}
}
