// Package feed downloads the attendance export from the badge terminal's
// FTP server.
package feed

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/deppfellow/abaita/internal/config"
	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"
)

const defaultPort = "21"

// Client fetches one file over FTP.
type Client struct {
	address  string
	user     string
	password string
	filename string
	timeout  time.Duration

	logger *zerolog.Logger
}

// NewClient creates a Client for the feed server in cfg.
func NewClient(cfg config.FeedServerConfig, logger *zerolog.Logger) *Client {
	return &Client{
		address:  withPort(cfg.Address),
		user:     cfg.User,
		password: cfg.Password,
		filename: cfg.Filename,
		timeout:  cfg.Timeout,
		logger:   logger,
	}
}

func withPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, defaultPort)
}

// Fetch logs in and downloads the whole feed file.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	opts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if c.timeout > 0 {
		opts = append(opts, ftp.DialWithTimeout(c.timeout))
	}

	conn, err := ftp.Dial(c.address, opts...)
	if err != nil {
		return nil, fmt.Errorf("could not connect to the FTP server %s: %w", c.address, err)
	}
	defer func() {
		if err := conn.Quit(); err != nil {
			c.logger.Debug().Err(err).Msg("ftp quit failed")
		}
	}()

	if err := conn.Login(c.user, c.password); err != nil {
		return nil, fmt.Errorf("could not login to the FTP server: %w", err)
	}
	c.logger.Debug().Str("address", c.address).Msg("ftp login ok")

	resp, err := conn.Retr(c.filename)
	if err != nil {
		return nil, fmt.Errorf("could not download %s from the FTP server: %w", c.filename, err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", c.filename, err)
	}
	c.logger.Debug().Str("file", c.filename).Int("bytes", len(data)).Msg("ftp download ok")
	return data, nil
}
