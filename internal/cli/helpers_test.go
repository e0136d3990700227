package cli

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

// newTestViper mirrors NewRootCmd's viper setup bound to cmd's flags.
func newTestViper(t *testing.T, cmd *cobra.Command) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetEnvPrefix("HIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.BindPFlags(cmd.Flags()))
	return v
}
