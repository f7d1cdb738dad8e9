package feed

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/deppfellow/abaita/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPort(t *testing.T) {
	assert.Equal(t, "ftp.example.com:21", withPort("ftp.example.com"))
	assert.Equal(t, "ftp.example.com:2121", withPort("ftp.example.com:2121"))
	assert.Equal(t, "10.0.0.1:21", withPort("10.0.0.1"))
}

func TestFetch_ConnectionRefused(t *testing.T) {
	// Grab a free port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	logger := zerolog.Nop()
	c := NewClient(config.FeedServerConfig{
		Address:  addr,
		User:     "admin",
		Filename: "btransaction.loc",
		Timeout:  time.Second,
	}, &logger)

	_, err = c.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not connect to the FTP server")
}
