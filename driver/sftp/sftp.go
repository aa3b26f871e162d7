package sftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/gobeaver/filescan"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Adapter is a filescan.PayloadStore on a remote host reached over SFTP.
type Adapter struct {
	mu       sync.Mutex
	client   *sftp.Client
	sshConn  *ssh.Client
	basePath string
	config   Config
}

// Config holds SFTP connection configuration
type Config struct {
	Host           string
	Port           int
	Username       string
	Password       string
	PrivateKey     []byte // PEM encoded private key
	KnownHostsFile string
	BasePath       string
}

// New connects to the host and returns a payload adapter rooted at
// cfg.BasePath.
func New(cfg Config) (*Adapter, error) {
	adapter := &Adapter{
		config:   cfg,
		basePath: path.Clean("/" + cfg.BasePath),
	}
	if cfg.BasePath == "" {
		adapter.basePath = ""
	}

	if _, err := adapter.conn(); err != nil {
		return nil, err
	}
	return adapter, nil
}

func (c Config) sshConfig() (*ssh.ClientConfig, error) {
	hostKey := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsFile != "" {
		cb, err := knownhosts.New(c.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKey = cb
	}

	sshConfig := &ssh.ClientConfig{
		User:            c.Username,
		HostKeyCallback: hostKey,
	}

	if len(c.PrivateKey) > 0 {
		signer, err := ssh.ParsePrivateKey(c.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		sshConfig.Auth = append(sshConfig.Auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		sshConfig.Auth = append(sshConfig.Auth, ssh.Password(c.Password))
	}
	if len(sshConfig.Auth) == 0 {
		return nil, fmt.Errorf("no authentication method provided")
	}
	return sshConfig, nil
}

// conn returns a live client, dialing again when the previous one was
// dropped.
func (a *Adapter) conn() (*sftp.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		if _, err := a.client.Getwd(); err == nil {
			return a.client, nil
		}
		a.closeLocked()
	}

	sshConfig, err := a.config.sshConfig()
	if err != nil {
		return nil, err
	}

	port := a.config.Port
	if port == 0 {
		port = 22
	}
	sshConn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", a.config.Host, port), sshConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SSH: %w", err)
	}

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	a.sshConn = sshConn
	a.client = client
	return client, nil
}

func (a *Adapter) closeLocked() error {
	var errs []error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			errs = append(errs, err)
		}
		a.client = nil
	}
	if a.sshConn != nil {
		if err := a.sshConn.Close(); err != nil {
			errs = append(errs, err)
		}
		a.sshConn = nil
	}
	return errors.Join(errs...)
}

// Close closes the SFTP and SSH connections
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closeLocked()
}

// fullPath joins key under the base path; keys cannot climb out of it.
func (a *Adapter) fullPath(key string) string {
	return path.Join(a.basePath, path.Clean("/"+key))
}

// Put implements filescan.PayloadStore
func (a *Adapter) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := a.conn()
	if err != nil {
		return &filescan.StoreError{Op: "put", Key: key, Err: err}
	}

	full := a.fullPath(key)
	if err := client.MkdirAll(path.Dir(full)); err != nil {
		return mapSFTPError("put", key, err)
	}

	tmp := full + ".part"
	f, err := client.Create(tmp)
	if err != nil {
		return mapSFTPError("put", key, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		client.Remove(tmp)
		return mapSFTPError("put", key, err)
	}
	if err := f.Close(); err != nil {
		client.Remove(tmp)
		return mapSFTPError("put", key, err)
	}
	if err := client.PosixRename(tmp, full); err != nil {
		client.Remove(tmp)
		return mapSFTPError("put", key, err)
	}
	return nil
}

// Get implements filescan.PayloadStore
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := a.conn()
	if err != nil {
		return nil, &filescan.StoreError{Op: "get", Key: key, Err: err}
	}

	f, err := client.Open(a.fullPath(key))
	if err != nil {
		return nil, mapSFTPError("get", key, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, mapSFTPError("get", key, err)
	}
	return data, nil
}

// Delete implements filescan.PayloadStore
func (a *Adapter) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := a.conn()
	if err != nil {
		return &filescan.StoreError{Op: "delete", Key: key, Err: err}
	}

	if err := client.Remove(a.fullPath(key)); err != nil && !isNotExist(err) {
		return mapSFTPError("delete", key, err)
	}
	return nil
}

// DeletePrefix implements filescan.PayloadSweeper by removing the
// submission directory.
func (a *Adapter) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := a.conn()
	if err != nil {
		return &filescan.StoreError{Op: "sweep", Key: prefix, Err: err}
	}

	dir := a.fullPath(prefix)
	if strings.TrimSuffix(dir, "/") == strings.TrimSuffix(a.basePath, "/") {
		return &filescan.StoreError{Op: "sweep", Key: prefix, Err: errors.New("refusing to sweep the base path")}
	}
	if err := client.RemoveAll(dir); err != nil && !isNotExist(err) {
		return mapSFTPError("sweep", prefix, err)
	}
	return nil
}

func isNotExist(err error) bool {
	if os.IsNotExist(err) {
		return true
	}
	var statusErr *sftp.StatusError
	return errors.As(err, &statusErr) && statusErr.FxCode() == sftp.ErrSSHFxNoSuchFile
}

// mapSFTPError maps SFTP errors to filescan errors
func mapSFTPError(op, key string, err error) error {
	if isNotExist(err) {
		return &filescan.StoreError{Op: op, Key: key, Err: filescan.ErrPayloadNotFound}
	}
	return &filescan.StoreError{Op: op, Key: key, Err: err}
}

var (
	_ filescan.PayloadStore   = (*Adapter)(nil)
	_ filescan.PayloadSweeper = (*Adapter)(nil)
)
