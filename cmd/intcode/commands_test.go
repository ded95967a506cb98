package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	amp := writeFile(t, "amp.txt", "3,15,3,16,1002,16,10,16,1,16,15,15,4,15,99,0,0\n")

	t.Run("amplify", func(t *testing.T) {
		out, err := execute(t, "amplify", amp, "--phases", "4,3,2,1,0", "--scheduling", "sequential")
		require.NoError(t, err)
		require.Equal(t, "43210\n", out)
	})

	t.Run("search", func(t *testing.T) {
		out, err := execute(t, "search", amp, "--phases", "0-4", "--parallelism", "2")
		require.NoError(t, err)
		require.Equal(t, "43210 4,3,2,1,0\n", out)
	})

	t.Run("run", func(t *testing.T) {
		prog := writeFile(t, "eq.txt", "3,9,8,9,10,9,4,9,99,-1,8")
		out, err := execute(t, "run", prog, "--input", "8")
		require.NoError(t, err)
		require.Equal(t, "1\n", out)
	})

	t.Run("exec", func(t *testing.T) {
		prog := writeFile(t, "add.txt", "1,0,0,0,99")
		out, err := execute(t, "exec", prog)
		require.NoError(t, err)
		require.Equal(t, "2\n", out)

		prog = writeFile(t, "patch.txt", "1,0,0,0,99,40,2")
		out, err = execute(t, "exec", prog, "--noun", "5", "--verb", "6")
		require.NoError(t, err)
		require.Equal(t, "42\n", out)
	})

	t.Run("disasm", func(t *testing.T) {
		prog := writeFile(t, "halt.txt", "99")
		out, err := execute(t, "disasm", prog)
		require.NoError(t, err)
		require.Equal(t, "0000  HALT\n", out)
	})

	t.Run("faults are reported", func(t *testing.T) {
		prog := writeFile(t, "bad.txt", "42")
		_, err := execute(t, "disasm", prog)
		require.NoError(t, err)
		_, err = execute(t, "exec", prog)
		require.Error(t, err)
	})
}
