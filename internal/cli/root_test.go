package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "chatshape", cmd.Use)
	assert.Contains(t, cmd.Long, "synthetic datasets")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"sample", "calibrate", "generate", "load", "teardown", "validate-fidelity", "verify-perf", "prune"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("settings"))
}

func TestSampleCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	sampleCmd, _, err := cmd.Find([]string{"sample"})
	require.NoError(t, err)

	windowFlag := sampleCmd.Flags().Lookup("window-days")
	require.NotNil(t, windowFlag)
	assert.Equal(t, "30", windowFlag.DefValue)

	outputFlag := sampleCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestGenerateCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	genCmd, _, err := cmd.Find([]string{"generate"})
	require.NoError(t, err)

	bandFlag := genCmd.Flags().Lookup("band")
	require.NotNil(t, bandFlag)
	assert.Equal(t, "dev", bandFlag.DefValue)
	assert.Contains(t, bandFlag.Usage, "dev|perf|smoke|staging")

	for _, name := range []string{"seed", "config", "report"} {
		assert.NotNil(t, genCmd.Flags().Lookup(name), name)
	}
}

func TestValidateFidelityCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	vfCmd, _, err := cmd.Find([]string{"validate-fidelity"})
	require.NoError(t, err)

	tolFlag := vfCmd.Flags().Lookup("tolerance")
	require.NotNil(t, tolFlag)
	assert.Equal(t, "0.15", tolFlag.DefValue)
}

func TestVerifyPerfCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	vpCmd, _, err := cmd.Find([]string{"verify-perf"})
	require.NoError(t, err)

	for _, name := range []string{"pre-optimization", "post-optimization", "compare", "apply-indexes", "runs"} {
		assert.NotNil(t, vpCmd.Flags().Lookup(name), name)
	}
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "calibrate", "--shape", "x", "--output", "y"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
