// Package mssql implements the connection lifecycle and exchange
// engine of a reactive TDS client for Microsoft SQL Server, built on
// the wire mechanics in pkg/tds.
package mssql

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	"github.com/ha1tch/godriver-mssql/internal/errors"
	"github.com/ha1tch/godriver-mssql/internal/log"
	"github.com/ha1tch/godriver-mssql/pkg/tds"
)

// State is a Connection's position in the TDS session lifecycle.
type State int32

const (
	StatePrelogin State = iota
	StateSSLNegotiation
	StateLogin
	StatePostLogin
	StateReady
	StateSending
	StateReceiving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePrelogin:
		return "PRELOGIN"
	case StateSSLNegotiation:
		return "SSL_NEGOTIATION"
	case StateLogin:
		return "LOGIN"
	case StatePostLogin:
		return "POST_LOGIN"
	case StateReady:
		return "READY"
	case StateSending:
		return "SENDING"
	case StateReceiving:
		return "RECEIVING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Option configures a Connection at Connect time.
type Option func(*config)

type config struct {
	database       string
	appName        string
	hostName       string
	packetSize     int
	dialTimeout    time.Duration
	loginTimeout   time.Duration
	tlsConfig      *tls.Config
	encrypt        uint8
	logger         *log.Logger
	readOnlyIntent bool
}

func defaultConfig() config {
	return config{
		packetSize:   tds.DefaultPacketSize,
		dialTimeout:  15 * time.Second,
		loginTimeout: 30 * time.Second,
		encrypt:      tds.EncryptOn,
		logger:       log.Default(),
	}
}

// WithDatabase sets the initial database for LOGIN7.
func WithDatabase(name string) Option { return func(c *config) { c.database = name } }

// WithAppName sets the application name reported in LOGIN7.
func WithAppName(name string) Option { return func(c *config) { c.appName = name } }

// WithPacketSize requests a non-default TDS packet size.
func WithPacketSize(size int) Option { return func(c *config) { c.packetSize = size } }

// WithDialTimeout bounds the TCP dial.
func WithDialTimeout(d time.Duration) Option { return func(c *config) { c.dialTimeout = d } }

// WithLoginTimeout bounds the whole PRELOGIN→LOGINACK handshake.
func WithLoginTimeout(d time.Duration) Option { return func(c *config) { c.loginTimeout = d } }

// WithTLSConfig supplies the TLS configuration used once encryption is
// negotiated. A nil config with encryption negotiated on uses Go's
// default verification behavior.
func WithTLSConfig(cfg *tls.Config) Option { return func(c *config) { c.tlsConfig = cfg } }

// WithEncryption overrides the PRELOGIN encryption byte the client
// offers (tds.EncryptOff/On/Req). Default is EncryptOn.
func WithEncryption(e uint8) Option { return func(c *config) { c.encrypt = e } }

// WithLogger supplies a non-default structured logger.
func WithLogger(l *log.Logger) Option { return func(c *config) { c.logger = l } }

// WithReadOnlyIntent sets the LOGIN7 read-only-intent flag, letting an
// Always On availability group route the session to a replica.
func WithReadOnlyIntent() Option { return func(c *config) { c.readOnlyIntent = true } }

// SessionState holds the fields ENVCHANGE tokens update over the life
// of a connection. Held in one struct behind atomic.Pointer so readers
// never observe a half-updated combination.
type SessionState struct {
	Database              string
	PacketSize            int
	Collation             tds.Collation
	TransactionDescriptor uint64
}

// Connection is one logical TDS session: a single TCP (optionally
// TLS-wrapped) connection to a SQL Server instance, its negotiated
// session state, and the exchange engine multiplexing requests and
// their token-stream responses over it.
type Connection struct {
	netConn  net.Conn
	framer   *tds.Framer
	logger   *log.Logger
	state    atomic.Int32
	session  atomic.Pointer[SessionState]
	spid     uint16
	tdsVer   uint32
	exchange *exchange
}

func (c *Connection) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	c.logger.Connection().WithFields("from", old.String(), "to", s.String()).
		Debug("connection state transition")
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Session returns a snapshot of the session state most recently
// reported by the server via ENVCHANGE tokens.
func (c *Connection) Session() SessionState { return *c.session.Load() }

// Connect dials addr, runs the PRELOGIN/TLS/LOGIN7 handshake, and
// returns a Connection ready to accept exchanges.
func Connect(ctx context.Context, addr string, user, password string, opts ...Option) (*Connection, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	dialer := net.Dialer{Timeout: cfg.dialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(errors.CodeConnectionRefused, err, "dialing SQL Server").
			Field("addr", addr).Build()
	}

	c := &Connection{
		netConn: netConn,
		framer:  tds.NewFramer(cfg.packetSize),
		logger:  cfg.logger,
	}
	c.state.Store(int32(StatePrelogin))
	c.session.Store(&SessionState{Database: cfg.database, PacketSize: cfg.packetSize})

	deadline := time.Now().Add(cfg.loginTimeout)
	netConn.SetDeadline(deadline)
	defer netConn.SetDeadline(time.Time{})

	if err := c.handshake(cfg, user, password); err != nil {
		netConn.Close()
		return nil, err
	}

	c.setState(StateReady)
	c.exchange = newExchange(c)
	return c, nil
}

// handshake runs PRELOGIN, optional TLS upgrade, LOGIN7 and consumes
// the response tokens up to and including LOGINACK.
func (c *Connection) handshake(cfg config, user, password string) error {
	req := tds.PreloginRequest{
		Version:    tds.ClientVersion{Major: 1, Minor: 0, Build: 0, SubBuild: 0},
		Encryption: cfg.encrypt,
		ThreadID:   1,
	}
	if err := c.framer.WriteMessage(c.netConn, tds.PacketPrelogin, req.Encode()); err != nil {
		return err
	}
	c.logger.Protocol().Debug("PRELOGIN sent", "encryption", cfg.encrypt)

	typ, data, err := c.framer.ReadMessage(c.netConn)
	if err != nil {
		return err
	}
	if typ != tds.PacketPrelogin {
		return errors.New(errors.CodeProtocolError, "expected PRELOGIN response").Build()
	}
	resp, err := tds.ParsePreloginResponse(data)
	if err != nil {
		return err
	}

	encrypt, err := tds.NegotiateEncryption(cfg.encrypt, resp.Encryption)
	if err != nil {
		return err
	}

	if encrypt {
		c.setState(StateSSLNegotiation)
		tlsCfg := cfg.tlsConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		tlsConn, err := tds.ClientHandshakeOverPrelogin(c.netConn, tlsCfg, cfg.loginTimeout)
		if err != nil {
			return err
		}
		c.netConn = tlsConn
		c.logger.Connection().Info("TLS negotiated for session")
	}

	c.setState(StateLogin)
	login := tds.Login7Request{
		TDSVersion:     tds.VerTDS74,
		PacketSize:     uint32(cfg.packetSize),
		ClientProgVer:  0x01000000,
		HostName:       cfg.hostName,
		UserName:       user,
		Password:       password,
		AppName:        cfg.appName,
		Database:       cfg.database,
		ReadOnlyIntent: cfg.readOnlyIntent,
	}
	if err := c.framer.WriteMessage(c.netConn, tds.PacketLogin7, login.Encode()); err != nil {
		return err
	}
	c.logger.Protocol().Debug("LOGIN7 sent", "user", user, "database", cfg.database)

	c.setState(StatePostLogin)
	return c.readLoginResponse()
}

// readLoginResponse consumes tokens after LOGIN7 until LOGINACK and
// the terminating DONE, applying ENVCHANGE updates as they arrive.
func (c *Connection) readLoginResponse() error {
	typ, data, err := c.framer.ReadMessage(c.netConn)
	if err != nil {
		return err
	}
	if typ != tds.PacketReply {
		return errors.New(errors.CodeProtocolError, "expected tabular result after LOGIN7").Build()
	}

	r := tds.NewTokenReader(data)
	var loggedIn bool
	for {
		tok, err := r.Next()
		if err == tds.ErrNoMoreTokens {
			break
		}
		if err != nil {
			return err
		}
		switch tok.Type {
		case tds.TokenEnvChange:
			c.applyEnvChange(tok.EnvChange)
		case tds.TokenLoginAck:
			loggedIn = true
			c.tdsVer = tok.LoginAck.TDSVersion
			c.logger.Connection().Info("login acknowledged",
				"interface", tok.LoginAck.Interface, "tds_version", tok.LoginAck.TDSVersion)
		case tds.TokenError:
			return errors.New(errors.CodeLoginRejected, tok.Error.Message).
				Field("number", tok.Error.Number).Field("state", tok.Error.State).Build()
		case tds.TokenDone:
			if !tok.Done.More() {
				if !loggedIn {
					return errors.New(errors.CodeLoginRejected, "server closed without LOGINACK").Build()
				}
				return nil
			}
		}
	}
	if !loggedIn {
		return errors.New(errors.CodeLoginRejected, "server closed without LOGINACK").Build()
	}
	return nil
}

// applyEnvChange folds one ENVCHANGE token into the session snapshot.
func (c *Connection) applyEnvChange(ec tds.EnvChange) {
	cur := *c.session.Load()
	switch ec.Type {
	case tds.EnvDatabase:
		cur.Database = ec.NewValueString()
	case tds.EnvPacketSize:
		var n int
		for _, r := range ec.NewValueString() {
			if r < '0' || r > '9' {
				break
			}
			n = n*10 + int(r-'0')
		}
		if n > 0 {
			cur.PacketSize = n
			c.framer.PacketSize = n
		}
	case tds.EnvSQLCollation:
		cur.Collation = tds.ParseCollation(ec.NewValue)
	case tds.EnvBeginTran, tds.EnvEnlistDTC:
		if len(ec.NewValue) >= 8 {
			cur.TransactionDescriptor = leUint64(ec.NewValue)
		}
	case tds.EnvCommitTran, tds.EnvRollbackTran, tds.EnvDefectTran:
		cur.TransactionDescriptor = 0
	}
	c.session.Store(&cur)
	c.logger.Connection().WithFields("env_type", ec.Type).Debug("ENVCHANGE applied")
}

func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8 && i < len(b); i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// Close sends no further traffic and releases the socket. Any
// exchange in flight is canceled.
func (c *Connection) Close() error {
	c.setState(StateClosed)
	if c.exchange != nil {
		c.exchange.closeAll()
	}
	return c.netConn.Close()
}
