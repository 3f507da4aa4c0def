package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryScan(ctx context.Context, req Request) (bool, []byte, error) {
	port, ok := DetectResidentPort(ctx)
	if !ok {
		return false, nil, nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addrFor(port))
	if err != nil {
		return false, nil, nil
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	line := scanRequest
	if req.Copy {
		line = scanCopyRequest
	}
	if _, err := io.WriteString(conn, line); err != nil {
		return true, nil, err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return true, nil, fmt.Errorf("read status: %w", err)
	}
	body, _ := io.ReadAll(br)
	switch status {
	case statusSuccess:
		return true, body, nil
	case statusEmpty:
		return true, nil, ErrNoTooltip
	case statusError:
		return true, nil, errors.New(string(body))
	}
	return true, nil, fmt.Errorf("unexpected response %q", status)
}
