package service

import (
	"os"
	"testing"

	"github.com/bmptec/ledger-core/internal/observability"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	observability.Init()
	os.Exit(m.Run())
}
