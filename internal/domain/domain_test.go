package domain

import (
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
)

func TestPeer(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 51234}, "('127.0.0.1', 51234)"},
		{&net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 65000}, "('10.0.0.2', 65000)"},
		{nil, "('', 0)"},
	}
	for _, tt := range tests {
		if got := Peer(tt.addr); got != tt.want {
			t.Errorf("Peer(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", io.EOF, 1},
		{"socket", NewStepError(StepSocket, io.EOF), 1},
		{"bind", NewStepError(StepBind, io.EOF), 2},
		{"accept", NewStepError(StepAccept, io.EOF), 3},
		{"read", NewStepError(StepRead, io.EOF), 4},
		{"send", NewStepError(StepSend, io.EOF), 5},
		{"wrapped", fmt.Errorf("tcp server: %w", NewStepError(StepBind, io.EOF)), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStepError_Unwrap(t *testing.T) {
	err := NewStepError(StepRead, io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("errors.Is failed for %v", err)
	}
	if err.Error() != "read: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
	if NewStepError(StepRead, nil) != nil {
		t.Error("NewStepError(nil) should be nil")
	}
}
