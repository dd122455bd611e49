// Package ssh implements spec.md §4.12's SSH transport: the two exec
// commands `git-upload-pack '<path>'` and `git-receive-pack '<path>'`,
// driving the same pack-exchange state machine as transport/http but
// directly over an exec channel's stdin/stdout, with no "# service="
// preamble.
package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/grafana/monogit/log"
	"github.com/grafana/monogit/protocol"
	"github.com/grafana/monogit/store"
)

const hostKeyFilename = "ssh_host_ed25519_key"

// Server accepts SSH connections and services the two git exec commands.
type Server struct {
	Store      store.ObjectStore
	Logger     log.Logger
	HostKeyDir string
}

// Listen accepts connections on addr until ctx is cancelled or the
// listener errors.
//
// Authentication: spec.md's SSH surface names the two exec commands to
// honor but does not specify a client authentication scheme, so this
// accepts any client (auth, if needed, belongs in front of this listener —
// e.g. a bastion or key-mapping proxy). Tracked as an open scope decision,
// not an oversight.
func (s *Server) Listen(ctx context.Context, addr string) error {
	signer, err := s.loadOrCreateHostKey()
	if err != nil {
		return fmt.Errorf("loading host key: %w", err)
	}

	config := &ssh.ServerConfig{NoClientAuth: true}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn, config)
	}
}

func (s *Server) handleConn(ctx context.Context, nConn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(nConn, config)
	if err != nil {
		_ = nConn.Close()
		return
	}
	defer sshConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ctx, channel, requests)
	}
}

func (s *Server) handleSession(ctx context.Context, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
			continue
		}
		s.handleExec(ctx, channel, req)
		return
	}
}

// execPayload mirrors RFC 4254 §6.5's "exec" request payload: a single
// length-prefixed command string.
type execPayload struct {
	Command string
}

func (s *Server) handleExec(ctx context.Context, channel ssh.Channel, req *ssh.Request) {
	var payload execPayload
	if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
		return
	}

	service, path, ok := parseGitCommand(payload.Command)
	if !ok {
		if req.WantReply {
			_ = req.Reply(false, nil)
		}
		return
	}
	if req.WantReply {
		_ = req.Reply(true, nil)
	}

	err := s.runService(ctx, service, path, channel)

	exitCode := uint32(0)
	if err != nil {
		exitCode = 1
		if s.Logger != nil {
			s.Logger.Error("git exec command failed", "path", path, "error", err)
		}
	}
	_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{exitCode}))
}

func (s *Server) runService(ctx context.Context, service protocol.ServiceType, path string, channel ssh.Channel) error {
	var (
		advertisement []byte
		err           error
	)
	switch service {
	case protocol.ServiceUploadPack:
		advertisement, err = protocol.AdvertiseFetch(ctx, s.Store, path, false)
	case protocol.ServiceReceivePack:
		advertisement, err = protocol.AdvertisePush(ctx, s.Store, path, false)
	}
	if err != nil {
		return err
	}
	if _, err := channel.Write(advertisement); err != nil {
		return err
	}

	switch service {
	case protocol.ServiceUploadPack:
		return protocol.RunUploadPack(ctx, s.Store, path, channel, channel)
	case protocol.ServiceReceivePack:
		return protocol.RunReceivePack(ctx, s.Store, path, channel, channel)
	default:
		return nil
	}
}

// parseGitCommand extracts the service and repo path from an exec command
// string like `git-upload-pack '<path>'`.
func parseGitCommand(cmd string) (protocol.ServiceType, string, bool) {
	cmd = strings.TrimSpace(cmd)

	var service protocol.ServiceType
	var rest string
	switch {
	case strings.HasPrefix(cmd, "git-upload-pack "):
		service = protocol.ServiceUploadPack
		rest = strings.TrimPrefix(cmd, "git-upload-pack ")
	case strings.HasPrefix(cmd, "git-receive-pack "):
		service = protocol.ServiceReceivePack
		rest = strings.TrimPrefix(cmd, "git-receive-pack ")
	default:
		return 0, "", false
	}

	rest = strings.Trim(strings.TrimSpace(rest), "'")
	rest = strings.TrimPrefix(rest, "/")
	if rest == "" {
		return 0, "", false
	}
	return service, rest, true
}

// loadOrCreateHostKey reads the persisted ed25519 host key from HostKeyDir,
// generating and persisting one (mode 0600) on first start.
func (s *Server) loadOrCreateHostKey() (ssh.Signer, error) {
	path := filepath.Join(s.HostKeyDir, hostKeyFilename)

	if data, err := os.ReadFile(path); err == nil {
		return ssh.ParsePrivateKey(data)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling host key: %w", err)
	}
	encoded := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if err := os.MkdirAll(s.HostKeyDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating host key directory: %w", err)
	}
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, fmt.Errorf("writing host key: %w", err)
	}

	return ssh.ParsePrivateKey(encoded)
}
