package verification

import (
	"strconv"
	"testing"
)

func TestGenerateCodeRange(t *testing.T) {
	for i := 0; i < 5000; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 4 || code[0] == '0' {
			t.Fatalf("bad code %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil || n < 1000 || n > 9999 {
			t.Fatalf("code %q out of range", code)
		}
	}
}
