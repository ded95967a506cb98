package intcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisassemble(t *testing.T) {
	tests := []struct {
		program string
		want    string
	}{
		{"99", "0000  HALT\n"},
		{"3,0,4,0,99", "0000  IN    ->[0]\n0002  OUT   [0]\n0004  HALT\n"},
		{"1002,4,3,4,33", "0000  MUL   [4] #3 ->[4]\n0004  DATA  33\n"},
		{"1105,1,7,-3", "0000  JNZ   #1 #7\n0003  DATA  -3\n"},
		// ADD needs four words.
		{"1,0", "0000  DATA  1\n0001  DATA  0\n"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Disassemble(MustParse(tt.program)), "program %s", tt.program)
	}
}
