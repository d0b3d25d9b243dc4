package auth

import (
	"context"
	"errors"
	"testing"
)

func TestStaticValidator(t *testing.T) {
	v := StaticValidator{}
	ctx := context.Background()

	cases := []struct {
		token  string
		wantID int64
		wantOK bool
	}{
		{"user:42", 42, true},
		{"user:1", 1, true},
		{"user:0", 0, false},
		{"user:-5", 0, false},
		{"user:", 0, false},
		{"user:abc", 0, false},
		{"token:42", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		id, err := v.Validate(ctx, tc.token)
		if tc.wantOK {
			if err != nil || id != tc.wantID {
				t.Fatalf("Validate(%q) = %d, %v; want %d", tc.token, id, err, tc.wantID)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Validate(%q) = %d, %v; want ErrInvalidToken", tc.token, id, err)
		}
	}
}
