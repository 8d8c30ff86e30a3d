package receiptvault_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/receipt-vault/pkg/receiptvault"
)

func TestHoldReasonIsValid(t *testing.T) {
	valid := []receiptvault.HoldReason{
		receiptvault.HoldReasonLitigation,
		receiptvault.HoldReasonRegulatoryInquiry,
		receiptvault.HoldReasonInternalInvestigation,
		receiptvault.HoldReasonSecurityIncident,
		receiptvault.HoldReasonTaxAudit,
	}
	for _, reason := range valid {
		assert.True(t, reason.IsValid(), string(reason))
	}

	invalid := []receiptvault.HoldReason{"", "because", "LITIGATION", "litigation "}
	for _, reason := range invalid {
		assert.False(t, reason.IsValid(), string(reason))
	}
}

func TestHashBytes(t *testing.T) {
	// Known SHA-256 vector
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		receiptvault.HashBytes(nil))
	assert.Equal(t,
		receiptvault.HashDocument("terms of service"),
		receiptvault.HashBytes([]byte("terms of service")))
}

func TestHashReader(t *testing.T) {
	got, err := receiptvault.HashReader(strings.NewReader("terms of service"))
	require.NoError(t, err)
	assert.Equal(t, receiptvault.HashDocument("terms of service"), got)
}

func TestStaticAuthorizer(t *testing.T) {
	ctx := context.Background()
	authz := receiptvault.NewStaticAuthorizer("legal-ops")
	assert.True(t, authz.HasElevatedPrivilege(ctx, "legal-ops"))
	assert.False(t, authz.HasElevatedPrivilege(ctx, "u1"))
	assert.False(t, authz.HasElevatedPrivilege(ctx, ""))
}
