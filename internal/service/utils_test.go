package service

import (
	"context"
	"testing"
	"time"

	"github.com/bmptec/ledger-core/internal/domain"
	"github.com/bmptec/ledger-core/internal/testutil/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistBalanceRequiresExistingAccount(t *testing.T) {
	store := memstore.New()
	account, err := domain.NewAccount(uuid.New(), "000042-1", domain.DefaultBranch, domain.AccountKindChecking, time.Now())
	require.NoError(t, err)

	err = persistBalance(context.Background(), store, account)
	assert.ErrorIs(t, err, errBalanceNotPersisted)
	assert.Contains(t, err.Error(), "000042-1")
}
