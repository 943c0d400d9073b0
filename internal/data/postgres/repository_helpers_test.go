package postgres

import (
	"io"
	"log/slog"
	"testing"

	"github.com/pi-escrow-ledger/internal/security"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestCipher(t *testing.T) *security.AESGCM {
	t.Helper()
	c, err := security.NewCipherFromKey([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return c
}
