package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceTokensVerify(t *testing.T) {
	tokens := NewServiceTokens([]string{" crm-hook ", "", "batch-job"})
	require.True(t, tokens.Enabled())
	require.True(t, tokens.Verify("crm-hook"))
	require.True(t, tokens.Verify("batch-job"))
	require.False(t, tokens.Verify("crm-hook "))
	require.False(t, tokens.Verify(""))

	empty := NewServiceTokens(nil)
	require.False(t, empty.Enabled())
	require.False(t, empty.Verify("anything"))

	var nilTokens *ServiceTokens
	require.False(t, nilTokens.Verify("crm-hook"))
}
